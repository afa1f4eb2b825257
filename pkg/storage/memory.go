package storage

import (
	"context"
	"sync"
)

// Memory is an in-memory Storage implementation, suitable for tests and for
// embedders that do not want sessions to survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
	}
}

// Load returns the value stored under key.
func (m *Memory) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	// Return a copy to prevent mutation
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, true, nil
}

// Save stores value under key, replacing any previous value.
func (m *Memory) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(value))
	copy(copied, value)
	m.values[key] = copied
	return nil
}

// Remove deletes the value stored under key. Removing an absent key is a
// no-op.
func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
