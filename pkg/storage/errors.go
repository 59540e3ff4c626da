package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when no document matches a lookup.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a document with the given id already exists.
	ErrConflict = errors.New("document already exists")

	// ErrInvalidKey is returned for keys that are not dotted identifiers.
	ErrInvalidKey = errors.New("invalid document key")
)
