package invitation

import (
	"context"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
)

// Store provides persistence for invitations. Create expects the id to be
// absent. Transition moves an invitation from exactly `from` to `to` with one
// conditional write and returns repository.ErrConflict when the stored status
// is anything else; at most one concurrent transition ever succeeds.
type Store interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id string) (*Invitation, error)
	Transition(ctx context.Context, id string, from, to Status) (*Invitation, error)
	ListByTree(ctx context.Context, treeID string) ([]Invitation, error)
	ListPending(ctx context.Context) ([]Invitation, error)
}

// PermissionService is the slice of the grant service the invitation manager
// depends on.
type PermissionService interface {
	Check(ctx context.Context, treeID, principalID string, cap grant.Capability) (bool, error)
	Grant(ctx context.Context, granterID, treeID, granteeID string, role grant.Role, custom grant.PermissionSet) (*grant.Grant, error)
	GetGrant(ctx context.Context, treeID, principalID string) (*grant.Grant, error)
}

// RateLimiter bounds invitation creation per (inviter, tree).
type RateLimiter interface {
	Allow(ctx context.Context, principalID, treeID string) (bool, error)
}

// Auditor records audit entries for mutating operations without ever failing
// the caller.
type Auditor interface {
	Record(ctx context.Context, treeID, actorID string, action activity.Action, details any)
}
