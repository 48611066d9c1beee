package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in a map. It never evicts, so every entry stays
// retrievable through Cache.GetExpired until it is overwritten.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Load returns the entry for name.
func (m *MemoryStore) Load(_ context.Context, name string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	return e, ok
}

// Save replaces the entry for e.Name.
func (m *MemoryStore) Save(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Name] = e
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
