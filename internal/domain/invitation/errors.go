package invitation

import "errors"

var (
	// ErrNotFound indicates the invitation doesn't exist.
	ErrNotFound = errors.New("invitation not found")

	// ErrExpired indicates the invitation's TTL elapsed before it was resolved.
	ErrExpired = errors.New("invitation expired")

	// ErrForbidden indicates the acting principal is not the invited one.
	ErrForbidden = errors.New("invitation addressed to another principal")

	// ErrAlreadyResolved indicates the invitation already reached a terminal
	// status, including the losing side of a concurrent resolution race.
	ErrAlreadyResolved = errors.New("invitation already resolved")

	// ErrRateLimited indicates the inviter hit the creation ceiling for the
	// current window.
	ErrRateLimited = errors.New("invitation creation rate limit reached")

	// ErrValidation indicates a malformed role, TTL, or identifier.
	ErrValidation = errors.New("invalid invitation input")
)
