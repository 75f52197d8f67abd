package keyed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/keyedstore"
)

// ActivityRepository implements activity.Store over a keyed store. Entries are
// written unconditionally under unique keys; key order is (tree, timestamp,
// token), so prefix scans come back in chronological order.
type ActivityRepository struct {
	store keyedstore.Store
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(store keyedstore.Store) *ActivityRepository {
	return &ActivityRepository{store: store}
}

func (r *ActivityRepository) Append(ctx context.Context, entry *activity.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode activity entry: %w", err)
	}
	return r.store.Put(ctx, logKey(entry.TreeID, entry.CreatedAt, entry.Token), data)
}

// List returns entries ascending by timestamp. The returned cursor restarts
// the listing after the last entry; it is empty once the range is exhausted.
func (r *ActivityRepository) List(ctx context.Context, treeID string, opts activity.ListOptions) ([]activity.Entry, string, error) {
	after := opts.Cursor
	if after == "" && !opts.From.IsZero() {
		// Seed the scan just before the lower bound instead of filtering
		// everything older.
		after = logTimeBound(treeID, opts.From)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = scanPageSize
	}

	var entries []activity.Entry
	cursor := ""
	for len(entries) < limit {
		pairs, err := r.store.QueryPrefix(ctx, logPrefix(treeID), after, limit-len(entries))
		if err != nil {
			return nil, "", err
		}
		if len(pairs) == 0 {
			return entries, "", nil
		}

		for _, pair := range pairs {
			var entry activity.Entry
			if err := json.Unmarshal(pair.Value, &entry); err != nil {
				return nil, "", fmt.Errorf("failed to decode activity entry at %q: %w", pair.Key, err)
			}
			if !opts.To.IsZero() && entry.CreatedAt.After(opts.To) {
				return entries, "", nil
			}
			if !opts.From.IsZero() && entry.CreatedAt.Before(opts.From) {
				continue
			}
			entries = append(entries, entry)
			cursor = pair.Key
		}
		after = pairs[len(pairs)-1].Key
	}
	return entries, cursor, nil
}

// CountSince counts entries by actor and action from the cutoff to now.
func (r *ActivityRepository) CountSince(ctx context.Context, treeID, actorID string, action activity.Action, since time.Time) (int, error) {
	after := logTimeBound(treeID, since)
	count := 0
	for {
		pairs, err := r.store.QueryPrefix(ctx, logPrefix(treeID), after, scanPageSize)
		if err != nil {
			return 0, err
		}
		for _, pair := range pairs {
			var entry activity.Entry
			if err := json.Unmarshal(pair.Value, &entry); err != nil {
				return 0, fmt.Errorf("failed to decode activity entry at %q: %w", pair.Key, err)
			}
			if entry.ActorID == actorID && entry.Action == action && !entry.CreatedAt.Before(since) {
				count++
			}
		}
		if len(pairs) < scanPageSize {
			return count, nil
		}
		after = pairs[len(pairs)-1].Key
	}
}
