package store

import "errors"

var (
	// ErrNotFound is returned when a referenced project, conversation,
	// message, or file-tree node does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a sibling of the same type already
	// carries the requested name.
	ErrConflict = errors.New("name conflict")
	// ErrTypeMismatch is returned when an operation expects a file and
	// gets a folder, or vice versa.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnauthorized is returned when an ownership or internal-key check fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is returned for malformed inputs.
	ErrValidation = errors.New("invalid input")
)
