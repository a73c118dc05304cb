package cache

import "errors"

// Domain errors for the cache package.
var (
	// ErrNotFound is returned when no live record exists for a key.
	// Expired records report ErrNotFound without being deleted.
	ErrNotFound = errors.New("cache: record not found")

	// ErrInvalidRecord is returned when a stored payload cannot be
	// decoded. List skips such records; Get surfaces the error.
	ErrInvalidRecord = errors.New("cache: invalid record")
)
