package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/repository"
)

// Service enforces and mutates grants. All cross-caller races are resolved by
// the store's conditional writes; the service never loops on conflicts.
type Service struct {
	grants     Store
	activities Auditor
	admins     AdminDirectory
	logger     *slog.Logger
}

// NewService creates a new grant service.
func NewService(grants Store, activities Auditor, admins AdminDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{grants: grants, activities: activities, admins: admins, logger: logger}
}

// GetGrant returns the grant for (tree, principal), or nil if absent. As a
// side effect it bumps the last-accessed timestamp and access counter; the
// bump is best-effort and its failure is not surfaced.
func (s *Service) GetGrant(ctx context.Context, treeID, principalID string) (*Grant, error) {
	g, err := s.lookup(ctx, treeID, principalID)
	if err != nil || g == nil {
		return g, err
	}

	bumped := *g
	bumped.LastAccessedAt = time.Now().UTC()
	bumped.AccessCount = g.AccessCount + 1
	if err := s.grants.Update(ctx, &bumped, g); err != nil {
		s.logger.Debug("last-accessed bump failed",
			"tree_id", treeID, "principal_id", principalID, "error", err)
		return g, nil
	}
	return &bumped, nil
}

// Check reports whether the principal holds the capability on the tree.
// Platform admins hold every capability; the owner holds every capability
// regardless of stored flags; unknown capabilities and absent grants fail
// closed.
func (s *Service) Check(ctx context.Context, treeID, principalID string, cap Capability) (bool, error) {
	if admin, err := s.isPlatformAdmin(ctx, principalID); err != nil {
		return false, err
	} else if admin {
		return true, nil
	}

	g, err := s.lookup(ctx, treeID, principalID)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, nil
	}
	return g.Has(cap), nil
}

// Grant creates or replaces the grant for (tree, grantee). The granter must be
// the tree's owner, hold manage_permissions, or be a platform admin. A
// non-owner granter may not assign the owner role and may not hand out
// capabilities it does not hold itself. Custom permissions may only narrow the
// role's defaults.
func (s *Service) Grant(ctx context.Context, granterID, treeID, granteeID string, role Role, custom PermissionSet) (*Grant, error) {
	if err := validateID(treeID); err != nil {
		return nil, err
	}
	if err := validateID(granteeID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	granter, admin, err := s.authorizeManager(ctx, treeID, granterID)
	if err != nil {
		return nil, err
	}

	if role == RoleOwner {
		if !admin && granter.Role != RoleOwner {
			return nil, ErrDenied
		}
		// Ownership changes hands only through TransferOwnership, which keeps
		// the single-owner invariant.
		return nil, fmt.Errorf("%w: owner role is assigned via ownership transfer", ErrValidation)
	}

	perms, err := narrowedPermissions(role, custom)
	if err != nil {
		return nil, err
	}

	// A non-owner granter may not hand out more than it holds.
	if !admin && granter.Role != RoleOwner {
		if role.Exceeds(granter.Role) || !perms.Within(granter.Effective()) {
			return nil, ErrDenied
		}
	}

	prev, err := s.lookup(ctx, treeID, granteeID)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.Role == RoleOwner {
		// Demoting the owner through grant would leave the tree ownerless.
		return nil, ErrDenied
	}

	now := time.Now().UTC()
	g := &Grant{
		TreeID:      treeID,
		PrincipalID: granteeID,
		Role:        role,
		Permissions: perms,
		GrantedBy:   granterID,
		GrantedAt:   now,
	}

	if prev == nil {
		err = s.grants.Create(ctx, g)
	} else {
		g.LastAccessedAt = prev.LastAccessedAt
		g.AccessCount = prev.AccessCount
		err = s.grants.Update(ctx, g, prev)
	}
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("writing grant: %w", err)
	}

	s.activities.Record(ctx, treeID, granterID, activity.ActionPermissionGranted, map[string]any{
		"grantee_id": granteeID,
		"role":       string(role),
	})
	return g, nil
}

// Revoke deletes the grant for (tree, target). The revoker needs the same
// authority as for Grant. The owner grant cannot be revoked through this path.
// Returns false when there was nothing to revoke.
func (s *Service) Revoke(ctx context.Context, revokerID, treeID, targetID string) (bool, error) {
	if _, _, err := s.authorizeManager(ctx, treeID, revokerID); err != nil {
		return false, err
	}

	target, err := s.lookup(ctx, treeID, targetID)
	if err != nil {
		return false, err
	}
	if target == nil {
		return false, nil
	}
	if target.Role == RoleOwner {
		return false, ErrDenied
	}

	if err := s.grants.Delete(ctx, treeID, targetID, target); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("deleting grant: %w", err)
	}

	s.activities.Record(ctx, treeID, revokerID, activity.ActionPermissionRevoked, map[string]any{
		"target_id": targetID,
	})
	return true, nil
}

// TransferOwnership demotes the current owner to admin and promotes the target
// to owner. The store offers only single-item atomicity, so the swap is two
// conditional writes; if the second fails the first is compensated, keeping
// the tree from settling with two owners or none.
func (s *Service) TransferOwnership(ctx context.Context, currentOwnerID, treeID, newOwnerID string) (bool, error) {
	if err := validateID(newOwnerID); err != nil {
		return false, err
	}
	if newOwnerID == currentOwnerID {
		return false, fmt.Errorf("%w: cannot transfer ownership to self", ErrValidation)
	}

	owner, err := s.lookup(ctx, treeID, currentOwnerID)
	if err != nil {
		return false, err
	}
	if owner == nil || owner.Role != RoleOwner {
		return false, ErrDenied
	}

	prev, err := s.lookup(ctx, treeID, newOwnerID)
	if err != nil {
		return false, err
	}
	if prev != nil && prev.Role == RoleOwner {
		return false, fmt.Errorf("%w: target already owns the tree", ErrValidation)
	}

	now := time.Now().UTC()
	promoted := &Grant{
		TreeID:      treeID,
		PrincipalID: newOwnerID,
		Role:        RoleOwner,
		Permissions: DefaultPermissions(RoleOwner),
		GrantedBy:   currentOwnerID,
		GrantedAt:   now,
	}

	if prev == nil {
		err = s.grants.Create(ctx, promoted)
	} else {
		promoted.LastAccessedAt = prev.LastAccessedAt
		promoted.AccessCount = prev.AccessCount
		err = s.grants.Update(ctx, promoted, prev)
	}
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("promoting new owner: %w", err)
	}

	demoted := *owner
	demoted.Role = RoleAdmin
	demoted.Permissions = DefaultPermissions(RoleAdmin)
	demoted.GrantedBy = currentOwnerID
	demoted.GrantedAt = now
	if err := s.grants.Update(ctx, &demoted, owner); err != nil {
		s.compensatePromotion(ctx, promoted, prev)
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("demoting previous owner: %w", err)
	}

	s.activities.Record(ctx, treeID, currentOwnerID, activity.ActionOwnershipTransferred, map[string]any{
		"new_owner_id": newOwnerID,
	})
	return true, nil
}

// compensatePromotion unwinds the first half of a failed ownership transfer.
func (s *Service) compensatePromotion(ctx context.Context, promoted, prev *Grant) {
	var err error
	if prev == nil {
		err = s.grants.Delete(ctx, promoted.TreeID, promoted.PrincipalID, promoted)
	} else {
		err = s.grants.Update(ctx, prev, promoted)
	}
	if err != nil {
		s.logger.Error("ownership transfer compensation failed",
			"tree_id", promoted.TreeID,
			"principal_id", promoted.PrincipalID,
			"error", err)
	}
}

// SeedOwner creates the initial owner grant for a newly created tree. Tree
// CRUD itself lives outside this system; the caller passes the owner recorded
// on the tree.
func (s *Service) SeedOwner(ctx context.Context, treeID, ownerID string) (*Grant, error) {
	if err := validateID(treeID); err != nil {
		return nil, err
	}
	if err := validateID(ownerID); err != nil {
		return nil, err
	}

	g := &Grant{
		TreeID:      treeID,
		PrincipalID: ownerID,
		Role:        RoleOwner,
		Permissions: DefaultPermissions(RoleOwner),
		GrantedBy:   ownerID,
		GrantedAt:   time.Now().UTC(),
	}
	if err := s.grants.Create(ctx, g); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("seeding owner grant: %w", err)
	}

	s.activities.Record(ctx, treeID, ownerID, activity.ActionOwnerSeeded, nil)
	return g, nil
}

// PurgeTree cascade-deletes every grant for a deleted tree. Only a platform
// admin or the tree's owner may purge.
func (s *Service) PurgeTree(ctx context.Context, callerID, treeID string) (int, error) {
	admin, err := s.isPlatformAdmin(ctx, callerID)
	if err != nil {
		return 0, err
	}
	if !admin {
		caller, err := s.lookup(ctx, treeID, callerID)
		if err != nil {
			return 0, err
		}
		if caller == nil || caller.Role != RoleOwner {
			return 0, ErrDenied
		}
	}

	n, err := s.grants.DeleteTree(ctx, treeID)
	if err != nil {
		return 0, fmt.Errorf("purging tree grants: %w", err)
	}

	s.activities.Record(ctx, treeID, callerID, activity.ActionGrantsPurged, map[string]any{
		"deleted": n,
	})
	return n, nil
}

// ListGrants returns every grant on the tree. The caller must hold any
// capability on the tree (or be a platform admin); strangers get the same
// denial whether or not the tree exists.
func (s *Service) ListGrants(ctx context.Context, callerID, treeID string) ([]Grant, error) {
	admin, err := s.isPlatformAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !admin {
		caller, err := s.lookup(ctx, treeID, callerID)
		if err != nil {
			return nil, err
		}
		if caller == nil {
			return nil, ErrDenied
		}
	}
	return s.grants.List(ctx, treeID)
}

// authorizeManager verifies that the principal may manage permissions on the
// tree: owner grant, manage_permissions capability, or platform admin. Returns
// the principal's grant (nil for platform admins without one).
func (s *Service) authorizeManager(ctx context.Context, treeID, principalID string) (*Grant, bool, error) {
	admin, err := s.isPlatformAdmin(ctx, principalID)
	if err != nil {
		return nil, false, err
	}

	g, err := s.lookup(ctx, treeID, principalID)
	if err != nil {
		return nil, false, err
	}
	if admin {
		return g, true, nil
	}
	if g == nil || !g.Has(CapManagePermissions) {
		return nil, false, ErrDenied
	}
	return g, false, nil
}

func (s *Service) isPlatformAdmin(ctx context.Context, principalID string) (bool, error) {
	if s.admins == nil {
		return false, nil
	}
	admin, err := s.admins.IsAdmin(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("platform admin lookup: %w", err)
	}
	return admin, nil
}

func (s *Service) lookup(ctx context.Context, treeID, principalID string) (*Grant, error) {
	g, err := s.grants.Get(ctx, treeID, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading grant: %w", err)
	}
	return g, nil
}

// narrowedPermissions applies custom overrides to the role defaults. Overrides
// may only narrow: enabling a capability the role does not hold by default is
// a validation error, as is an unknown capability name.
func narrowedPermissions(role Role, custom PermissionSet) (PermissionSet, error) {
	perms := DefaultPermissions(role)
	for cap, held := range custom {
		if !cap.Valid() {
			return nil, fmt.Errorf("%w: unknown capability %q", ErrValidation, cap)
		}
		if held && !perms[cap] {
			return nil, fmt.Errorf("%w: capability %q widens role %q", ErrValidation, cap, role)
		}
		perms[cap] = held
	}
	return perms, nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "#") {
		return fmt.Errorf("%w: malformed identifier", ErrValidation)
	}
	return nil
}
