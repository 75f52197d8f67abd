package repository

import "errors"

var (
	// ErrNotFound is returned when a requested item doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost a compare-and-swap race
	ErrConflict = errors.New("conflict: item was modified concurrently")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
