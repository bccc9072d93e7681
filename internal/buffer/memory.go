package buffer

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process TurnBuffer. Suitable for single-instance
// deployments and tests.
type Memory struct {
	mu     sync.Mutex
	staged map[string]any
}

// NewMemory returns an empty in-process buffer.
func NewMemory() *Memory {
	return &Memory{staged: make(map[string]any)}
}

func (m *Memory) Put(_ context.Context, key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, replaced := m.staged[key]
	m.staged[key] = value
	return replaced, nil
}

func (m *Memory) Append(_ context.Context, key string, values []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, _ := m.staged[key].([]any)
	m.staged[key] = append(existing, values...)
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.staged), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = make(map[string]any)
	return nil
}

// MemoryFactory creates an independent in-process buffer per turn.
type MemoryFactory struct{}

func (MemoryFactory) ForTurn(string) TurnBuffer { return NewMemory() }
