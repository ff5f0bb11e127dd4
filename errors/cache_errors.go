// errors/cache_errors.go
package errors

import "errors"

var (
	// ErrStoreUnavailable means the key-value store or the authoritative
	// store could not be reached. Cache read paths recover from it locally;
	// security paths treat it as a hard failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidCacheKey = errors.New("invalid cache key")

	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInternalServer    = errors.New("internal server error")
)
