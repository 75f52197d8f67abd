package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
	"github.com/grovekit/grove/internal/domain/ratelimit"
	"github.com/grovekit/grove/internal/keyed"
	"github.com/grovekit/grove/internal/keyedstore"
)

const (
	inviteCeiling = 3
	inviteWindow  = 24 * time.Hour
)

type testEnv struct {
	store     *keyedstore.SQLite
	grantRepo *keyed.GrantRepository
	invRepo   *keyed.InvitationRepository
	actRepo   *keyed.ActivityRepository
	adminRepo *keyed.AdminRepository

	grantSvc    *grant.Service
	inviteSvc   *invitation.Service
	activitySvc *activity.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := keyedstore.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	grantRepo := keyed.NewGrantRepository(store)
	invRepo := keyed.NewInvitationRepository(store)
	actRepo := keyed.NewActivityRepository(store)
	adminRepo := keyed.NewAdminRepository(store)

	activitySvc := activity.NewService(actRepo, logger)
	grantSvc := grant.NewService(grantRepo, activitySvc, adminRepo, logger)
	limiter := ratelimit.New(actRepo, inviteCeiling, inviteWindow, logger)
	inviteSvc := invitation.NewService(invRepo, grantSvc, limiter, activitySvc, 30*24*time.Hour, logger)

	return &testEnv{
		store:       store,
		grantRepo:   grantRepo,
		invRepo:     invRepo,
		actRepo:     actRepo,
		adminRepo:   adminRepo,
		grantSvc:    grantSvc,
		inviteSvc:   inviteSvc,
		activitySvc: activitySvc,
	}
}

func TestGrantLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)

	// Owner hands out an editor grant.
	g, err := env.grantSvc.Grant(ctx, "alice", "family-1", "bob", grant.RoleEditor, nil)
	require.NoError(t, err)
	require.Equal(t, grant.RoleEditor, g.Role)

	ok, err := env.grantSvc.Check(ctx, "family-1", "bob", grant.CapAddMembers)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.grantSvc.Check(ctx, "family-1", "bob", grant.CapManagePermissions)
	require.NoError(t, err)
	require.False(t, ok)

	// Editors cannot hand out grants at all.
	_, err = env.grantSvc.Grant(ctx, "bob", "family-1", "carol", grant.RoleViewer, nil)
	require.ErrorIs(t, err, grant.ErrDenied)

	// Revocation removes access.
	revoked, err := env.grantSvc.Revoke(ctx, "alice", "family-1", "bob")
	require.NoError(t, err)
	require.True(t, revoked)

	ok, err = env.grantSvc.Check(ctx, "family-1", "bob", grant.CapAddMembers)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOwnershipTransfer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)
	_, err = env.grantSvc.Grant(ctx, "alice", "family-1", "bob", grant.RoleEditor, nil)
	require.NoError(t, err)

	ok, err := env.grantSvc.TransferOwnership(ctx, "alice", "family-1", "bob")
	require.NoError(t, err)
	require.True(t, ok)

	// Exactly one owner afterwards.
	grants, err := env.grantSvc.ListGrants(ctx, "bob", "family-1")
	require.NoError(t, err)
	owners := 0
	for _, g := range grants {
		if g.Role == grant.RoleOwner {
			owners++
			require.Equal(t, "bob", g.PrincipalID)
		}
	}
	require.Equal(t, 1, owners)

	// The previous owner is an admin now and cannot transfer again.
	_, err = env.grantSvc.TransferOwnership(ctx, "alice", "family-1", "carol")
	require.ErrorIs(t, err, grant.ErrDenied)
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)

	inv, err := env.inviteSvc.Create(ctx, "alice", invitation.CreateRequest{
		TreeID:    "family-1",
		InviteeID: "bob",
		Role:      grant.RoleEditor,
		TTL:       7 * 24 * time.Hour,
		Message:   "join the family tree",
	})
	require.NoError(t, err)

	// Only bob may act on it.
	_, err = env.inviteSvc.Accept(ctx, inv.ID, "mallory")
	require.ErrorIs(t, err, invitation.ErrForbidden)

	g, err := env.inviteSvc.Accept(ctx, inv.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, grant.RoleEditor, g.Role)
	require.Equal(t, "alice", g.GrantedBy)

	ok, err := env.grantSvc.Check(ctx, "family-1", "bob", grant.CapEditMembers)
	require.NoError(t, err)
	require.True(t, ok)

	// The accepted invitation is spent.
	_, err = env.inviteSvc.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrAlreadyResolved)
	_, err = env.inviteSvc.Decline(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, invitation.ErrAlreadyResolved)
}

func TestInvitationRateLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)

	for i := 0; i < inviteCeiling; i++ {
		_, err := env.inviteSvc.Create(ctx, "alice", invitation.CreateRequest{
			TreeID:    "family-1",
			InviteeID: fmt.Sprintf("guest-%d", i),
			Role:      grant.RoleViewer,
			TTL:       time.Hour,
		})
		require.NoError(t, err)
	}

	_, err = env.inviteSvc.Create(ctx, "alice", invitation.CreateRequest{
		TreeID:    "family-1",
		InviteeID: "one-too-many",
		Role:      grant.RoleViewer,
		TTL:       time.Hour,
	})
	require.ErrorIs(t, err, invitation.ErrRateLimited)

	// Another tree has its own budget.
	_, err = env.grantSvc.SeedOwner(ctx, "family-2", "alice")
	require.NoError(t, err)
	_, err = env.inviteSvc.Create(ctx, "alice", invitation.CreateRequest{
		TreeID:    "family-2",
		InviteeID: "bob",
		Role:      grant.RoleViewer,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
}

func TestActivityTrail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)
	_, err = env.grantSvc.Grant(ctx, "alice", "family-1", "bob", grant.RoleEditor, nil)
	require.NoError(t, err)
	inv, err := env.inviteSvc.Create(ctx, "alice", invitation.CreateRequest{
		TreeID:    "family-1",
		InviteeID: "carol",
		Role:      grant.RoleViewer,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	_, err = env.inviteSvc.Accept(ctx, inv.ID, "carol")
	require.NoError(t, err)

	entries, _, err := env.activitySvc.List(ctx, "family-1", activity.ListOptions{})
	require.NoError(t, err)

	var actions []activity.Action
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	require.Equal(t, []activity.Action{
		activity.ActionOwnerSeeded,
		activity.ActionPermissionGranted,
		activity.ActionInvitationCreated,
		activity.ActionPermissionGranted,
		activity.ActionInvitationAccepted,
	}, actions)
}

func TestPlatformAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.adminRepo.Add(ctx, "root", "bootstrap"))
	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)

	// Admins pass every check without holding a grant.
	ok, err := env.grantSvc.Check(ctx, "family-1", "root", grant.CapManagePermissions)
	require.NoError(t, err)
	require.True(t, ok)

	// And may hand out grants on any tree.
	_, err = env.grantSvc.Grant(ctx, "root", "family-1", "bob", grant.RoleAdmin, nil)
	require.NoError(t, err)
}

func TestPurgeCascade(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.grantSvc.SeedOwner(ctx, "family-1", "alice")
	require.NoError(t, err)
	_, err = env.grantSvc.Grant(ctx, "alice", "family-1", "bob", grant.RoleEditor, nil)
	require.NoError(t, err)
	_, err = env.grantSvc.SeedOwner(ctx, "family-2", "alice")
	require.NoError(t, err)

	n, err := env.grantSvc.PurgeTree(ctx, "alice", "family-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Neighboring trees are untouched.
	g, err := env.grantSvc.GetGrant(ctx, "family-2", "alice")
	require.NoError(t, err)
	require.NotNil(t, g)

	g, err = env.grantSvc.GetGrant(ctx, "family-1", "bob")
	require.NoError(t, err)
	require.Nil(t, g)
}
