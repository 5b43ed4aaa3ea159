package rbac

import "errors"

var (
	// ErrNotFound is returned when a role, permission or referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken is returned when a role or permission slug is already in use.
	ErrSlugTaken = errors.New("slug already taken")
	// ErrNameTaken is returned when a role or permission name is already in use.
	ErrNameTaken = errors.New("name already taken")
	// ErrConflict wraps any other uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned for blank names or resources.
	ErrInvalidInput = errors.New("invalid input")
)
