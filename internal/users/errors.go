package users

import "errors"

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnknownRole is returned when a role ID in an assignment does not exist.
	ErrUnknownRole = errors.New("unknown role id")
)
