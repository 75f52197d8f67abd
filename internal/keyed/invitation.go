package keyed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovekit/grove/internal/domain/invitation"
	"github.com/grovekit/grove/internal/keyedstore"
	"github.com/grovekit/grove/internal/repository"
)

// InvitationRepository implements invitation.Store over a keyed store.
// Invitations live under one key each, so every lifecycle transition is a
// single compare-and-swap.
type InvitationRepository struct {
	store keyedstore.Store
}

// NewInvitationRepository creates a new InvitationRepository.
func NewInvitationRepository(store keyedstore.Store) *InvitationRepository {
	return &InvitationRepository{store: store}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}
	return r.store.ConditionalPut(ctx, inviteKey(inv.ID), data, nil)
}

func (r *InvitationRepository) Get(ctx context.Context, id string) (*invitation.Invitation, error) {
	data, err := r.store.Get(ctx, inviteKey(id))
	if err != nil {
		return nil, err
	}

	var inv invitation.Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invitation: %w", err)
	}
	return &inv, nil
}

// Transition moves the invitation from exactly `from` to `to`. The write is
// guarded on the bytes read, so a concurrent transition makes this lose with
// repository.ErrConflict rather than clobber.
func (r *InvitationRepository) Transition(ctx context.Context, id string, from, to invitation.Status) (*invitation.Invitation, error) {
	if from.Terminal() || !to.Terminal() {
		// Lifecycle is monotonic: pending is the only source status.
		return nil, repository.ErrInvalidInput
	}

	key := inviteKey(id)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var inv invitation.Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invitation: %w", err)
	}
	if inv.Status != from {
		return nil, repository.ErrConflict
	}

	inv.Status = to
	updated, err := json.Marshal(&inv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invitation: %w", err)
	}
	if err := r.store.ConditionalPut(ctx, key, updated, data); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) ListByTree(ctx context.Context, treeID string) ([]invitation.Invitation, error) {
	all, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []invitation.Invitation
	for _, inv := range all {
		if inv.TreeID == treeID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *InvitationRepository) ListPending(ctx context.Context) ([]invitation.Invitation, error) {
	all, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []invitation.Invitation
	for _, inv := range all {
		if inv.Status == invitation.StatusPending {
			out = append(out, inv)
		}
	}
	return out, nil
}

const scanPageSize = 256

func (r *InvitationRepository) scan(ctx context.Context) ([]invitation.Invitation, error) {
	var out []invitation.Invitation
	after := ""
	for {
		pairs, err := r.store.QueryPrefix(ctx, invitePrefix, after, scanPageSize)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			var inv invitation.Invitation
			if err := json.Unmarshal(pair.Value, &inv); err != nil {
				return nil, fmt.Errorf("failed to decode invitation at %q: %w", pair.Key, err)
			}
			out = append(out, inv)
		}
		if len(pairs) < scanPageSize {
			return out, nil
		}
		after = pairs[len(pairs)-1].Key
	}
}
