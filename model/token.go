// model/token.go
package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenState tracks the lifecycle of a single refresh token. A ROTATED or
// REVOKED token presented again is a reuse event.
type TokenState string

const (
	TokenActive  TokenState = "ACTIVE"
	TokenRotated TokenState = "ROTATED"
	TokenRevoked TokenState = "REVOKED"
)

// FamilyState tracks the lifecycle of a token family. COMPROMISED is
// terminal: every member token is revoked and no refresh succeeds.
type FamilyState string

const (
	FamilyActive      FamilyState = "ACTIVE"
	FamilyCompromised FamilyState = "COMPROMISED"
)

// RefreshToken is one opaque refresh credential. Exactly one token per
// family is ACTIVE at a time.
type RefreshToken struct {
	TokenID   string     `json:"token_id"`
	FamilyID  string     `json:"family_id"`
	UserID    string     `json:"user_id"`
	TenantID  string     `json:"tenant_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     TokenState `json:"state"`
}

// TokenFamily groups every refresh token descended from one login.
type TokenFamily struct {
	FamilyID  string      `json:"family_id"`
	UserID    string      `json:"user_id"`
	TenantID  string      `json:"tenant_id"`
	SessionID string      `json:"session_id,omitempty"`
	State     FamilyState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// Session is a sliding-expiration session. ExpiresAt is recomputed from
// LastActivityAt on every authenticated request, bounded by the absolute
// maximum lifetime measured from CreatedAt.
type Session struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	TenantID       string    `json:"tenant_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// AccessClaims are the claims carried by a short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	FamilyID  string `json:"family_id"`
}

// Credentials is the pair returned by login and refresh.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}
