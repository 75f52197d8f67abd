// Package keyedstore defines the ordered key-value contract the rest of the
// system is built on: get, put, conditional-put (compare-and-swap on the
// expected prior value, or absence), and range query by key prefix. Cross-caller
// races are resolved exclusively through ConditionalPut and ConditionalDelete;
// per-key linearizability is the only ordering guarantee.
package keyedstore

import "context"

// Pair is one stored (key, value) entry.
type Pair struct {
	Key   string
	Value []byte
}

// Store is an ordered keyed store with single-item atomic operations.
type Store interface {
	// Get returns the value stored at key, or repository.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value at key unconditionally. Used only for append-only
	// entries written under unique keys.
	Put(ctx context.Context, key string, value []byte) error

	// ConditionalPut writes value at key only if the stored value equals
	// expected. A nil expected means the key must be absent. Returns
	// repository.ErrConflict if the comparison fails.
	ConditionalPut(ctx context.Context, key string, value, expected []byte) error

	// ConditionalDelete removes key only if the stored value equals expected.
	// Returns repository.ErrConflict if the comparison fails.
	ConditionalDelete(ctx context.Context, key string, expected []byte) error

	// Delete removes key unconditionally. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// QueryPrefix returns up to limit entries whose keys start with prefix and
	// sort strictly after startAfter, in ascending key order. A limit <= 0
	// means no limit. Callers page through large ranges by passing the last
	// returned key as startAfter.
	QueryPrefix(ctx context.Context, prefix, startAfter string, limit int) ([]Pair, error)
}
