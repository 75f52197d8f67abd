package activity

import (
	"context"
	"time"
)

// Store provides persistence for audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, treeID string, opts ListOptions) ([]Entry, string, error)
	CountSince(ctx context.Context, treeID, actorID string, action Action, since time.Time) (int, error)
}
