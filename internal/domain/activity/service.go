package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service handles audit trail operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Append writes one audit entry. The details payload is marshaled to JSON.
func (s *Service) Append(ctx context.Context, treeID, actorID string, action Action, details any) error {
	entry := &Entry{
		TreeID:    treeID,
		ActorID:   actorID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
		Token:     uuid.NewString(),
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		entry.Details = string(data)
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

// Record is Append for callers whose primary operation must not fail on an
// audit write error: the failure is logged and swallowed.
func (s *Service) Record(ctx context.Context, treeID, actorID string, action Action, details any) {
	if err := s.Append(ctx, treeID, actorID, action, details); err != nil {
		s.logger.Warn("activity append failed",
			"tree_id", treeID,
			"action", string(action),
			"error", err)
	}
}

// List returns audit entries for a tree in ascending timestamp order, with a
// continuation cursor for restarting.
func (s *Service) List(ctx context.Context, treeID string, opts ListOptions) ([]Entry, string, error) {
	return s.store.List(ctx, treeID, opts)
}

// CountSince counts entries by one actor with the given action since a cutoff.
func (s *Service) CountSince(ctx context.Context, treeID, actorID string, action Action, since time.Time) (int, error) {
	return s.store.CountSince(ctx, treeID, actorID, action, since)
}
