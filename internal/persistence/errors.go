package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when required fields are missing or
	// a storage constraint other than uniqueness rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
