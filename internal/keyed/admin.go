package keyed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grovekit/grove/internal/keyedstore"
	"github.com/grovekit/grove/internal/repository"
)

// AdminRepository stores platform-admin markers, the first-class replacement
// for an environment-parsed privileged id list.
type AdminRepository struct {
	store keyedstore.Store
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(store keyedstore.Store) *AdminRepository {
	return &AdminRepository{store: store}
}

type adminRecord struct {
	PrincipalID string    `json:"principal_id"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

func (r *AdminRepository) IsAdmin(ctx context.Context, principalID string) (bool, error) {
	_, err := r.store.Get(ctx, adminKey(principalID))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *AdminRepository) Add(ctx context.Context, principalID, addedBy string) error {
	data, err := json.Marshal(adminRecord{
		PrincipalID: principalID,
		AddedBy:     addedBy,
		AddedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode admin record: %w", err)
	}
	return r.store.Put(ctx, adminKey(principalID), data)
}

func (r *AdminRepository) Remove(ctx context.Context, principalID string) error {
	return r.store.Delete(ctx, adminKey(principalID))
}
