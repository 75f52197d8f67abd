package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/repository"
)

// Service owns the invitation lifecycle. Accept, decline, revoke, and expire
// are mutually exclusive by construction: each is a single conditional write
// guarded on the pending status, so at most one of them ever succeeds.
type Service struct {
	invites    Store
	perms      PermissionService
	limiter    RateLimiter
	activities Auditor
	logger     *slog.Logger
	maxTTL     time.Duration
}

// NewService creates a new invitation service. maxTTL caps the requested
// invitation lifetime; zero means no cap.
func NewService(invites Store, perms PermissionService, limiter RateLimiter, activities Auditor, maxTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		invites:    invites,
		perms:      perms,
		limiter:    limiter,
		activities: activities,
		logger:     logger,
		maxTTL:     maxTTL,
	}
}

// CreateRequest describes an invitation creation request.
type CreateRequest struct {
	TreeID    string
	InviteeID string
	Role      grant.Role
	TTL       time.Duration
	Message   string
}

// Create issues a pending invitation. The inviter must hold invite_users, the
// proposed role must not exceed the inviter's own, and creation is subject to
// the rate limiter. Declined or expired invitations may always be recreated.
func (s *Service) Create(ctx context.Context, inviterID string, req CreateRequest) (*Invitation, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if s.maxTTL > 0 && req.TTL > s.maxTTL {
		return nil, fmt.Errorf("%w: ttl exceeds maximum %s", ErrValidation, s.maxTTL)
	}
	if req.InviteeID == inviterID {
		return nil, fmt.Errorf("%w: cannot invite yourself", ErrValidation)
	}

	allowed, err := s.perms.Check(ctx, req.TreeID, inviterID, grant.CapInviteUsers)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, grant.ErrDenied
	}

	if err := s.checkRoleCeiling(ctx, req.TreeID, inviterID, req.Role); err != nil {
		return nil, err
	}

	ok, err := s.limiter.Allow(ctx, inviterID, req.TreeID)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		return nil, ErrRateLimited
	}

	now := time.Now().UTC()
	inv := &Invitation{
		ID:        uuid.NewString(),
		TreeID:    req.TreeID,
		InviterID: inviterID,
		InviteeID: req.InviteeID,
		Role:      req.Role,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
		Message:   req.Message,
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("creating invitation: %w", err)
	}

	s.activities.Record(ctx, req.TreeID, inviterID, activity.ActionInvitationCreated, map[string]any{
		"invitation_id": inv.ID,
		"invitee_id":    req.InviteeID,
		"role":          string(req.Role),
	})
	return inv, nil
}

// Accept resolves a pending invitation and materializes the grant, using the
// original inviter as granter. Concurrent duplicate accepts produce exactly
// one grant; losers get ErrAlreadyResolved.
func (s *Service) Accept(ctx context.Context, invitationID, actingID string) (*grant.Grant, error) {
	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != actingID {
		return nil, ErrForbidden
	}
	if inv.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}
	if inv.Expired(time.Now()) {
		s.expire(ctx, inv)
		return nil, ErrExpired
	}

	if _, err := s.invites.Transition(ctx, invitationID, StatusPending, StatusAccepted); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("accepting invitation: %w", err)
	}

	g, err := s.perms.Grant(ctx, inv.InviterID, inv.TreeID, inv.InviteeID, inv.Role, nil)
	if err != nil {
		// The invitation is resolved either way; the grant failure surfaces.
		s.logger.Error("grant after accept failed",
			"invitation_id", invitationID, "tree_id", inv.TreeID, "error", err)
		return nil, err
	}

	s.activities.Record(ctx, inv.TreeID, actingID, activity.ActionInvitationAccepted, map[string]any{
		"invitation_id": invitationID,
		"role":          string(inv.Role),
	})
	return g, nil
}

// Decline resolves a pending invitation without granting anything.
func (s *Service) Decline(ctx context.Context, invitationID, actingID string) (bool, error) {
	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return false, err
	}
	if inv.InviteeID != actingID {
		return false, ErrForbidden
	}
	if inv.Status.Terminal() {
		return false, ErrAlreadyResolved
	}
	if inv.Expired(time.Now()) {
		s.expire(ctx, inv)
		return false, ErrExpired
	}

	if _, err := s.invites.Transition(ctx, invitationID, StatusPending, StatusDeclined); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrAlreadyResolved
		}
		return false, fmt.Errorf("declining invitation: %w", err)
	}

	s.activities.Record(ctx, inv.TreeID, actingID, activity.ActionInvitationDeclined, map[string]any{
		"invitation_id": invitationID,
	})
	return true, nil
}

// Revoke withdraws a still-pending invitation. Only the original inviter or a
// principal holding manage_permissions may revoke.
func (s *Service) Revoke(ctx context.Context, invitationID, revokerID string) (bool, error) {
	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return false, err
	}

	if revokerID != inv.InviterID {
		allowed, err := s.perms.Check(ctx, inv.TreeID, revokerID, grant.CapManagePermissions)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, grant.ErrDenied
		}
	}

	if inv.Status.Terminal() {
		return false, ErrAlreadyResolved
	}

	if _, err := s.invites.Transition(ctx, invitationID, StatusPending, StatusRevoked); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrAlreadyResolved
		}
		return false, fmt.Errorf("revoking invitation: %w", err)
	}

	s.activities.Record(ctx, inv.TreeID, revokerID, activity.ActionInvitationRevoked, map[string]any{
		"invitation_id": invitationID,
	})
	return true, nil
}

// SweepExpired transitions every pending invitation past its TTL to expired
// and returns how many it moved. Safe to run repeatedly and concurrently: each
// transition is guarded, so a double sweep is a no-op the second time.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	pending, err := s.invites.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing pending invitations: %w", err)
	}

	now := time.Now()
	swept := 0
	for i := range pending {
		inv := &pending[i]
		if !inv.Expired(now) {
			continue
		}
		if _, err := s.invites.Transition(ctx, inv.ID, StatusPending, StatusExpired); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return swept, fmt.Errorf("expiring invitation %s: %w", inv.ID, err)
		}
		swept++
		s.activities.Record(ctx, inv.TreeID, inv.InviterID, activity.ActionInvitationExpired, map[string]any{
			"invitation_id": inv.ID,
		})
	}
	return swept, nil
}

// ListForTree returns the tree's invitations for principals allowed to see
// them: inviters and permission managers.
func (s *Service) ListForTree(ctx context.Context, callerID, treeID string) ([]Invitation, error) {
	allowed, err := s.perms.Check(ctx, treeID, callerID, grant.CapInviteUsers)
	if err != nil {
		return nil, err
	}
	if !allowed {
		allowed, err = s.perms.Check(ctx, treeID, callerID, grant.CapManagePermissions)
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return nil, grant.ErrDenied
	}
	return s.invites.ListByTree(ctx, treeID)
}

// expire moves an invitation found past its TTL at read time. Losing the race
// to a sweep or another reader is fine.
func (s *Service) expire(ctx context.Context, inv *Invitation) {
	if _, err := s.invites.Transition(ctx, inv.ID, StatusPending, StatusExpired); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("lazy expiry failed", "invitation_id", inv.ID, "error", err)
		}
		return
	}
	s.activities.Record(ctx, inv.TreeID, inv.InviterID, activity.ActionInvitationExpired, map[string]any{
		"invitation_id": inv.ID,
	})
}

// checkRoleCeiling rejects proposals above the inviter's own role. Owners and
// platform admins (who may hold no grant at all) are unrestricted below owner.
func (s *Service) checkRoleCeiling(ctx context.Context, treeID, inviterID string, role grant.Role) error {
	inviter, err := s.perms.GetGrant(ctx, treeID, inviterID)
	if err != nil {
		return err
	}
	if inviter == nil {
		// invite_users passed without a grant: platform admin.
		return nil
	}
	if role.Exceeds(inviter.Role) {
		return grant.ErrDenied
	}
	return nil
}

func (s *Service) load(ctx context.Context, invitationID string) (*Invitation, error) {
	inv, err := s.invites.Get(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading invitation: %w", err)
	}
	return inv, nil
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.TreeID) == "" || strings.Contains(req.TreeID, "#") {
		return fmt.Errorf("%w: malformed tree id", ErrValidation)
	}
	if strings.TrimSpace(req.InviteeID) == "" || strings.Contains(req.InviteeID, "#") {
		return fmt.Errorf("%w: malformed invitee id", ErrValidation)
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}
	if req.Role == grant.RoleOwner {
		return fmt.Errorf("%w: ownership is not offered through invitations", ErrValidation)
	}
	if req.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrValidation)
	}
	return nil
}
