package mcp

import (
	"errors"
	"fmt"

	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
	"github.com/grovekit/grove/internal/repository"
)

// APIError is a tool error with a stable code.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// mapErr maps domain errors to stable tool error codes. Authorization denials
// carry no detail: a caller cannot tell a tree it may not touch from a tree
// that does not exist.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, grant.ErrDenied):
		return &APIError{Code: "ACCESS_DENIED", Message: "access denied"}
	case errors.Is(err, invitation.ErrRateLimited):
		return &APIError{Code: "RATE_LIMITED", Message: "invitation rate limit reached"}
	case errors.Is(err, invitation.ErrExpired):
		return &APIError{Code: "EXPIRED", Message: "invitation expired"}
	case errors.Is(err, invitation.ErrForbidden):
		return &APIError{Code: "FORBIDDEN", Message: "invitation addressed to another principal"}
	case errors.Is(err, invitation.ErrAlreadyResolved):
		return &APIError{Code: "ALREADY_RESOLVED", Message: "invitation already resolved"}
	case errors.Is(err, invitation.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: "invitation not found"}
	case errors.Is(err, grant.ErrConflict), errors.Is(err, repository.ErrConflict):
		return &APIError{Code: "CONFLICT", Message: "concurrent modification, re-read and retry"}
	case errors.Is(err, grant.ErrValidation), errors.Is(err, invitation.ErrValidation),
		errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return &APIError{Code: "INTERNAL", Message: "internal error"}
	}
}
