package keyedstore

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/grovekit/grove/internal/repository"
)

// Memory is an in-process Store used by tests and local development. All
// operations take the same lock, so conditional writes are linearizable per key.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = bytes.Clone(value)
	return nil
}

func (m *Memory) ConditionalPut(ctx context.Context, key string, value, expected []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[key]
	if expected == nil {
		if ok {
			return repository.ErrConflict
		}
	} else {
		if !ok || !bytes.Equal(current, expected) {
			return repository.ErrConflict
		}
	}

	m.items[key] = bytes.Clone(value)
	return nil
}

func (m *Memory) ConditionalDelete(ctx context.Context, key string, expected []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[key]
	if !ok || !bytes.Equal(current, expected) {
		return repository.ErrConflict
	}

	delete(m.items, key)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func (m *Memory) QueryPrefix(ctx context.Context, prefix, startAfter string, limit int) ([]Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for key := range m.items {
		if strings.HasPrefix(key, prefix) && key > startAfter {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	pairs := make([]Pair, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, Pair{Key: key, Value: bytes.Clone(m.items[key])})
	}
	return pairs, nil
}
