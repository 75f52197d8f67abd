package grant

import "errors"

var (
	// ErrDenied is the shared authorization denial. It deliberately carries no
	// detail, so callers cannot distinguish "tree does not exist" from "tree
	// exists but you lack access".
	ErrDenied = errors.New("access denied")

	// ErrConflict indicates a lost compare-and-swap race; the caller may
	// re-read and retry once.
	ErrConflict = errors.New("grant modified concurrently")

	// ErrValidation indicates a malformed role, capability, or identifier.
	ErrValidation = errors.New("invalid grant input")
)
