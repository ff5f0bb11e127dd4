// errors/auth_errors.go
package errors

import "errors"

var (
	// ErrTokenReuseDetected is a security event: a rotated or revoked
	// refresh token was presented again. The whole family is revoked as a
	// side effect before this error is returned.
	ErrTokenReuseDetected = errors.New("token reuse detected")

	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrTokenExpired      = errors.New("refresh token expired")
	ErrFamilyCompromised = errors.New("token family compromised")
	ErrFamilyNotFound    = errors.New("token family not found")

	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")

	ErrUnauthorized = errors.New("unauthorized")
)
