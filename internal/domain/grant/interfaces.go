package grant

import (
	"context"

	"github.com/grovekit/grove/internal/domain/activity"
)

// Store provides persistence for grants. Create and Update are conditional
// writes: Create expects the key to be absent, Update expects the stored grant
// to equal prev. Both return repository.ErrConflict when the expectation fails.
type Store interface {
	Get(ctx context.Context, treeID, principalID string) (*Grant, error)
	List(ctx context.Context, treeID string) ([]Grant, error)
	Create(ctx context.Context, g *Grant) error
	Update(ctx context.Context, g *Grant, prev *Grant) error
	Delete(ctx context.Context, treeID, principalID string, prev *Grant) error
	DeleteTree(ctx context.Context, treeID string) (int, error)
}

// Auditor records audit entries for mutating operations. Implementations must
// never fail the caller's primary operation: audit write failures are logged,
// not surfaced.
type Auditor interface {
	Record(ctx context.Context, treeID, actorID string, action activity.Action, details any)
}

// AdminDirectory answers platform-admin lookups, independent of any tree's
// grant table.
type AdminDirectory interface {
	IsAdmin(ctx context.Context, principalID string) (bool, error)
}
