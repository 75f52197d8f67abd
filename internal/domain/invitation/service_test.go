package invitation_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
	"github.com/grovekit/grove/internal/keyed"
	"github.com/grovekit/grove/internal/keyedstore"
	"github.com/grovekit/grove/internal/repository/mocks"
)

// allowAll is a rate limiter that never says no.
type allowAll struct{}

func (allowAll) Allow(context.Context, string, string) (bool, error) { return true, nil }

// harness wires the invitation service to real repositories over an in-memory
// store, with the real grant service as its permission backend.
type harness struct {
	invites *invitation.Service
	grants  *grant.Service
	invRepo *keyed.InvitationRepository
}

func newHarness(t *testing.T, limiter invitation.RateLimiter, maxTTL time.Duration) *harness {
	t.Helper()
	if limiter == nil {
		limiter = allowAll{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := keyedstore.NewMemory()
	grantRepo := keyed.NewGrantRepository(store)
	invRepo := keyed.NewInvitationRepository(store)
	actRepo := keyed.NewActivityRepository(store)
	adminRepo := keyed.NewAdminRepository(store)

	activitySvc := activity.NewService(actRepo, logger)
	grantSvc := grant.NewService(grantRepo, activitySvc, adminRepo, logger)
	inviteSvc := invitation.NewService(invRepo, grantSvc, limiter, activitySvc, maxTTL, logger)

	return &harness{
		invites: inviteSvc,
		grants:  grantSvc,
		invRepo: invRepo,
	}
}

func (h *harness) seedOwner(t *testing.T, treeID, ownerID string) {
	t.Helper()
	_, err := h.grants.SeedOwner(context.Background(), treeID, ownerID)
	require.NoError(t, err)
}

func editorInvite(ctx context.Context, t *testing.T, h *harness, inviterID, treeID, inviteeID string) *invitation.Invitation {
	t.Helper()
	inv, err := h.invites.Create(ctx, inviterID, invitation.CreateRequest{
		TreeID:    treeID,
		InviteeID: inviteeID,
		Role:      grant.RoleEditor,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	return inv
}

// pendingInPast plants a pending invitation whose TTL has already elapsed,
// bypassing the service's validation.
func pendingInPast(ctx context.Context, t *testing.T, h *harness, treeID, inviterID, inviteeID string) *invitation.Invitation {
	t.Helper()
	inv := &invitation.Invitation{
		ID:        uuid.NewString(),
		TreeID:    treeID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Role:      grant.RoleEditor,
		Status:    invitation.StatusPending,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, h.invRepo.Create(ctx, inv))
	return inv
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")

	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")
	require.Equal(t, invitation.StatusPending, inv.Status)
	require.Equal(t, "alice", inv.InviterID)
	require.True(t, inv.ExpiresAt.After(inv.CreatedAt))

	stored, err := h.invRepo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invitation.StatusPending, stored.Status)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 24*time.Hour)
	h.seedOwner(t, "t1", "alice")

	cases := []struct {
		name string
		req  invitation.CreateRequest
	}{
		{"empty invitee", invitation.CreateRequest{TreeID: "t1", Role: grant.RoleEditor, TTL: time.Hour}},
		{"malformed tree", invitation.CreateRequest{TreeID: "t#1", InviteeID: "bob", Role: grant.RoleEditor, TTL: time.Hour}},
		{"unknown role", invitation.CreateRequest{TreeID: "t1", InviteeID: "bob", Role: "sovereign", TTL: time.Hour}},
		{"owner role", invitation.CreateRequest{TreeID: "t1", InviteeID: "bob", Role: grant.RoleOwner, TTL: time.Hour}},
		{"zero ttl", invitation.CreateRequest{TreeID: "t1", InviteeID: "bob", Role: grant.RoleEditor}},
		{"ttl over cap", invitation.CreateRequest{TreeID: "t1", InviteeID: "bob", Role: grant.RoleEditor, TTL: 48 * time.Hour}},
		{"self invite", invitation.CreateRequest{TreeID: "t1", InviteeID: "alice", Role: grant.RoleEditor, TTL: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.invites.Create(ctx, "alice", tc.req)
			require.ErrorIs(t, err, invitation.ErrValidation)
		})
	}
}

func TestCreate_DeniedLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")

	_, err := h.invites.Create(ctx, "mallory", invitation.CreateRequest{
		TreeID:    "t1",
		InviteeID: "bob",
		Role:      grant.RoleEditor,
		TTL:       time.Hour,
	})
	require.ErrorIs(t, err, grant.ErrDenied)

	invs, err := h.invRepo.ListByTree(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, invs)
}

func TestCreate_RoleCeiling(t *testing.T) {
	ctx := context.Background()
	perms := &mocks.PermissionService{}
	invites := &mocks.InvitationStore{}
	svc := invitation.NewService(invites, perms, allowAll{}, noopAuditor{}, 0, nil)

	perms.On("Check", mock.Anything, "t1", "carol", grant.CapInviteUsers).Return(true, nil)
	perms.On("GetGrant", mock.Anything, "t1", "carol").Return(&grant.Grant{
		TreeID: "t1", PrincipalID: "carol", Role: grant.RoleEditor,
		Permissions: grant.DefaultPermissions(grant.RoleEditor),
	}, nil)

	_, err := svc.Create(ctx, "carol", invitation.CreateRequest{
		TreeID:    "t1",
		InviteeID: "bob",
		Role:      grant.RoleAdmin,
		TTL:       time.Hour,
	})
	require.ErrorIs(t, err, grant.ErrDenied)
	invites.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, string, string, activity.Action, any) {}

func TestCreate_RateLimited(t *testing.T) {
	ctx := context.Background()
	limiter := &mocks.RateLimiter{}
	limiter.On("Allow", mock.Anything, "alice", "t1").Return(false, nil)

	h := newHarness(t, limiter, 0)
	h.seedOwner(t, "t1", "alice")

	_, err := h.invites.Create(ctx, "alice", invitation.CreateRequest{
		TreeID:    "t1",
		InviteeID: "bob",
		Role:      grant.RoleEditor,
		TTL:       time.Hour,
	})
	require.ErrorIs(t, err, invitation.ErrRateLimited)

	invs, err := h.invRepo.ListByTree(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, invs)
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")

	g, err := h.invites.Accept(ctx, inv.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, grant.RoleEditor, g.Role)
	require.Equal(t, "alice", g.GrantedBy)

	ok, err := h.grants.Check(ctx, "t1", "bob", grant.CapAddMembers)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := h.invRepo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invitation.StatusAccepted, stored.Status)

	// A second accept finds the invitation already resolved.
	_, err = h.invites.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrAlreadyResolved)
}

func TestAccept_WrongInvitee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")

	_, err := h.invites.Accept(ctx, inv.ID, "mallory")
	require.ErrorIs(t, err, invitation.ErrForbidden)

	_, err = h.invites.Accept(ctx, "no-such-id", "bob")
	require.ErrorIs(t, err, invitation.ErrNotFound)
}

func TestAccept_ExpiredLazily(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	inv := pendingInPast(ctx, t, h, "t1", "alice", "bob")

	_, err := h.invites.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrExpired)

	// The read moved it to expired, so no sweep is needed.
	stored, err := h.invRepo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invitation.StatusExpired, stored.Status)

	// No grant materialized.
	g, err := h.grants.GetGrant(ctx, "t1", "bob")
	require.NoError(t, err)
	require.Nil(t, g)
}

func TestAccept_Concurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")

	const workers = 16
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.invites.Accept(ctx, inv.ID, "bob")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, invitation.ErrAlreadyResolved)
		}
	}
	require.Equal(t, 1, wins)

	grants, err := h.grants.ListGrants(ctx, "alice", "t1")
	require.NoError(t, err)
	require.Len(t, grants, 2) // owner plus the single accepted grant
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")

	ok, err := h.invites.Decline(ctx, inv.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	// Declined is final; accepting afterwards fails and grants nothing.
	_, err = h.invites.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrAlreadyResolved)

	g, err := h.grants.GetGrant(ctx, "t1", "bob")
	require.NoError(t, err)
	require.Nil(t, g)

	// A declined invitation may be recreated.
	editorInvite(ctx, t, h, "alice", "t1", "bob")
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")

	// By the inviter.
	inv := editorInvite(ctx, t, h, "alice", "t1", "bob")
	ok, err := h.invites.Revoke(ctx, inv.ID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.invites.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrAlreadyResolved)

	// By a permission manager who is not the inviter.
	_, err = h.grants.Grant(ctx, "alice", "t1", "adam", grant.RoleAdmin, nil)
	require.NoError(t, err)
	inv = editorInvite(ctx, t, h, "alice", "t1", "carol")
	ok, err = h.invites.Revoke(ctx, inv.ID, "adam")
	require.NoError(t, err)
	require.True(t, ok)

	// Not by a bystander.
	inv = editorInvite(ctx, t, h, "alice", "t1", "dave")
	_, err = h.invites.Revoke(ctx, inv.ID, "mallory")
	require.ErrorIs(t, err, grant.ErrDenied)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")

	pendingInPast(ctx, t, h, "t1", "alice", "bob")
	pendingInPast(ctx, t, h, "t1", "alice", "carol")
	live := editorInvite(ctx, t, h, "alice", "t1", "dave")

	swept, err := h.invites.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, swept)

	// Idempotent: the second pass finds nothing pending past its TTL.
	swept, err = h.invites.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, swept)

	stored, err := h.invRepo.Get(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, invitation.StatusPending, stored.Status)
}

func TestListForTree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.seedOwner(t, "t1", "alice")
	editorInvite(ctx, t, h, "alice", "t1", "bob")

	invs, err := h.invites.ListForTree(ctx, "alice", "t1")
	require.NoError(t, err)
	require.Len(t, invs, 1)

	// A viewer grant confers neither invite_users nor manage_permissions,
	// so holding a grant alone is not enough.
	_, err = h.grants.Grant(ctx, "alice", "t1", "vera", grant.RoleViewer, nil)
	require.NoError(t, err)
	_, err = h.invites.ListForTree(ctx, "vera", "t1")
	require.ErrorIs(t, err, grant.ErrDenied)

	_, err = h.invites.ListForTree(ctx, "mallory", "t1")
	require.ErrorIs(t, err, grant.ErrDenied)
}
