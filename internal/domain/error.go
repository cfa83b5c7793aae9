package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflicting state")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// Export pipeline errors
	ErrExportUnsupported   = errors.New("export not supported")
	ErrUnsupportedFormat   = errors.New("unsupported export format")
	ErrAttemptsExhausted   = errors.New("maximum export attempts reached")
	ErrStorageUnavailable  = errors.New("object store unavailable")
	ErrProfileNotFound     = errors.New("export owner profile not found")
	ErrLockNotAcquired     = errors.New("lock held by another process")
	ErrNothingRequested    = errors.New("export request selects no data")
	ErrRetryExhausted      = errors.New("retry would leave request exhausted")
)
