package events

import "errors"

var (
	// ErrNotFound is returned when no event matches the public workshop ID.
	ErrNotFound = errors.New("event not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid event")
	// ErrConflict is returned when a unique identifier is already in use.
	ErrConflict = errors.New("event identifier conflict")
)
