package domain

import "errors"

var (
	// ErrNotFound is returned by record stores when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrForbidden is returned when the identity does not own the record it
	// tries to change.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned when a new comment or post fails validation.
	ErrInvalidInput = errors.New("invalid input")
)
