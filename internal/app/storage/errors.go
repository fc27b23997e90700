package storage

import "errors"

// Sentinel errors surfaced by every store implementation. Callers match with
// errors.Is so driver-specific failures never leak past this package.
var (
	// ErrNotFound indicates the queried entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateName indicates a uniqueness constraint was violated.
	ErrDuplicateName = errors.New("storage: duplicate name")

	// ErrUnavailable indicates a transient connection or timeout failure.
	// Operations are idempotent upserts, so retrying is always safe.
	ErrUnavailable = errors.New("storage: unavailable")
)
