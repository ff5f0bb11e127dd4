// errors/permission_errors.go
package errors

import "errors"

var (
	// ErrPermissionDenied is the explicit deny, including every fail-closed
	// default: store errors, inheritance cycles and exceeded walk depth all
	// surface as this error.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCycleDetected means the ACL parent-chain walk found a loop. It is
	// always wrapped in a deny; it never resolves to an allow.
	ErrCycleDetected = errors.New("cycle detected in resource hierarchy")

	ErrResourceNotFound = errors.New("resource not found")
	ErrGrantNotFound    = errors.New("acl grant not found")
	ErrInvalidGrantData = errors.New("invalid acl grant data")
)
