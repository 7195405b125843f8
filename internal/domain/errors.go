package domain

import "errors"

var (
	// ErrNotFound means a room or user identifier does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the actor lacks the role, or the room is in the wrong state.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means a display name is already used in the room.
	ErrConflict = errors.New("conflict")

	ErrInvalidInput = errors.New("invalid input")
)
