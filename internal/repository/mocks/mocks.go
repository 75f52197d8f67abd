// Package mocks provides testify mocks for the domain store interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
)

// GrantStore is a mock for grant.Store.
type GrantStore struct {
	mock.Mock
}

func (m *GrantStore) Get(ctx context.Context, treeID, principalID string) (*grant.Grant, error) {
	args := m.Called(ctx, treeID, principalID)
	if g, ok := args.Get(0).(*grant.Grant); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *GrantStore) List(ctx context.Context, treeID string) ([]grant.Grant, error) {
	args := m.Called(ctx, treeID)
	if grants, ok := args.Get(0).([]grant.Grant); ok {
		return grants, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *GrantStore) Create(ctx context.Context, g *grant.Grant) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *GrantStore) Update(ctx context.Context, g *grant.Grant, prev *grant.Grant) error {
	args := m.Called(ctx, g, prev)
	return args.Error(0)
}

func (m *GrantStore) Delete(ctx context.Context, treeID, principalID string, prev *grant.Grant) error {
	args := m.Called(ctx, treeID, principalID, prev)
	return args.Error(0)
}

func (m *GrantStore) DeleteTree(ctx context.Context, treeID string) (int, error) {
	args := m.Called(ctx, treeID)
	return args.Int(0), args.Error(1)
}

// InvitationStore is a mock for invitation.Store.
type InvitationStore struct {
	mock.Mock
}

func (m *InvitationStore) Create(ctx context.Context, inv *invitation.Invitation) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *InvitationStore) Get(ctx context.Context, id string) (*invitation.Invitation, error) {
	args := m.Called(ctx, id)
	if inv, ok := args.Get(0).(*invitation.Invitation); ok {
		return inv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *InvitationStore) Transition(ctx context.Context, id string, from, to invitation.Status) (*invitation.Invitation, error) {
	args := m.Called(ctx, id, from, to)
	if inv, ok := args.Get(0).(*invitation.Invitation); ok {
		return inv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *InvitationStore) ListByTree(ctx context.Context, treeID string) ([]invitation.Invitation, error) {
	args := m.Called(ctx, treeID)
	if invs, ok := args.Get(0).([]invitation.Invitation); ok {
		return invs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *InvitationStore) ListPending(ctx context.Context) ([]invitation.Invitation, error) {
	args := m.Called(ctx)
	if invs, ok := args.Get(0).([]invitation.Invitation); ok {
		return invs, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityStore is a mock for activity.Store.
type ActivityStore struct {
	mock.Mock
}

func (m *ActivityStore) Append(ctx context.Context, entry *activity.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityStore) List(ctx context.Context, treeID string, opts activity.ListOptions) ([]activity.Entry, string, error) {
	args := m.Called(ctx, treeID, opts)
	if entries, ok := args.Get(0).([]activity.Entry); ok {
		return entries, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

func (m *ActivityStore) CountSince(ctx context.Context, treeID, actorID string, action activity.Action, since time.Time) (int, error) {
	args := m.Called(ctx, treeID, actorID, action, since)
	return args.Int(0), args.Error(1)
}

// AdminDirectory is a mock for grant.AdminDirectory.
type AdminDirectory struct {
	mock.Mock
}

func (m *AdminDirectory) IsAdmin(ctx context.Context, principalID string) (bool, error) {
	args := m.Called(ctx, principalID)
	return args.Bool(0), args.Error(1)
}

// PermissionService is a mock for invitation.PermissionService.
type PermissionService struct {
	mock.Mock
}

func (m *PermissionService) Check(ctx context.Context, treeID, principalID string, cap grant.Capability) (bool, error) {
	args := m.Called(ctx, treeID, principalID, cap)
	return args.Bool(0), args.Error(1)
}

func (m *PermissionService) Grant(ctx context.Context, granterID, treeID, granteeID string, role grant.Role, custom grant.PermissionSet) (*grant.Grant, error) {
	args := m.Called(ctx, granterID, treeID, granteeID, role, custom)
	if g, ok := args.Get(0).(*grant.Grant); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PermissionService) GetGrant(ctx context.Context, treeID, principalID string) (*grant.Grant, error) {
	args := m.Called(ctx, treeID, principalID)
	if g, ok := args.Get(0).(*grant.Grant); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

// RateLimiter is a mock for invitation.RateLimiter.
type RateLimiter struct {
	mock.Mock
}

func (m *RateLimiter) Allow(ctx context.Context, principalID, treeID string) (bool, error) {
	args := m.Called(ctx, principalID, treeID)
	return args.Bool(0), args.Error(1)
}
