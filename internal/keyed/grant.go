package keyed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/keyedstore"
)

// GrantRepository implements grant.Store over a keyed store.
type GrantRepository struct {
	store keyedstore.Store
}

// NewGrantRepository creates a new GrantRepository.
func NewGrantRepository(store keyedstore.Store) *GrantRepository {
	return &GrantRepository{store: store}
}

func (r *GrantRepository) Get(ctx context.Context, treeID, principalID string) (*grant.Grant, error) {
	data, err := r.store.Get(ctx, grantKey(treeID, principalID))
	if err != nil {
		return nil, err
	}

	var g grant.Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode grant: %w", err)
	}
	return &g, nil
}

func (r *GrantRepository) List(ctx context.Context, treeID string) ([]grant.Grant, error) {
	pairs, err := r.store.QueryPrefix(ctx, grantPrefix(treeID), "", 0)
	if err != nil {
		return nil, err
	}

	grants := make([]grant.Grant, 0, len(pairs))
	for _, pair := range pairs {
		var g grant.Grant
		if err := json.Unmarshal(pair.Value, &g); err != nil {
			return nil, fmt.Errorf("failed to decode grant at %q: %w", pair.Key, err)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

func (r *GrantRepository) Create(ctx context.Context, g *grant.Grant) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode grant: %w", err)
	}
	return r.store.ConditionalPut(ctx, grantKey(g.TreeID, g.PrincipalID), data, nil)
}

func (r *GrantRepository) Update(ctx context.Context, g *grant.Grant, prev *grant.Grant) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode grant: %w", err)
	}
	expected, err := json.Marshal(prev)
	if err != nil {
		return fmt.Errorf("failed to encode prior grant: %w", err)
	}
	return r.store.ConditionalPut(ctx, grantKey(g.TreeID, g.PrincipalID), data, expected)
}

func (r *GrantRepository) Delete(ctx context.Context, treeID, principalID string, prev *grant.Grant) error {
	expected, err := json.Marshal(prev)
	if err != nil {
		return fmt.Errorf("failed to encode prior grant: %w", err)
	}
	return r.store.ConditionalDelete(ctx, grantKey(treeID, principalID), expected)
}

func (r *GrantRepository) DeleteTree(ctx context.Context, treeID string) (int, error) {
	pairs, err := r.store.QueryPrefix(ctx, grantPrefix(treeID), "", 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, pair := range pairs {
		if err := r.store.Delete(ctx, pair.Key); err != nil {
			return deleted, fmt.Errorf("failed to delete %q: %w", pair.Key, err)
		}
		deleted++
	}
	return deleted, nil
}
