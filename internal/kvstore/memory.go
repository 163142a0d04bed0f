package kvstore

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
)

// Memory is a process-local Store. Save is a no-op. Useful for tests and for
// ephemeral sessions that must not touch disk.
type Memory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()

	if !ok {
		return false, nil
	}

	return decode(key, raw, dst)
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	raw, err := encode(key, value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.values[key] = raw
	m.mu.Unlock()

	return nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.values[key]

	return ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()

	return nil
}

func (m *Memory) Save(context.Context) error {
	return nil
}

// snapshot returns a copy of the current values.
func (m *Memory) snapshot() map[string]json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.values)
}

// replace swaps in a new value set.
func (m *Memory) replace(values map[string]json.RawMessage) {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}

	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
}
