package propstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and local development. Writes
// are atomic at the single-property granularity, matching the contract the
// flows assume of the remote store.
type Memory struct {
	mu     sync.RWMutex
	defs   map[string]PropertyDefinition
	values map[string]map[string]string // userID -> key -> value
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		defs:   make(map[string]PropertyDefinition),
		values: make(map[string]map[string]string),
	}
}

func (m *Memory) ListProperties(ctx context.Context, scope Scope) ([]PropertyDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PropertyDefinition, 0, len(m.defs))
	for _, d := range m.defs {
		if d.Scope == scope {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) CreateProperty(ctx context.Context, def PropertyDefinition) (CreateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.defs[def.Key]; exists {
		return OutcomeAlreadyExists, nil
	}
	def.ID = uuid.NewString()
	m.defs[def.Key] = def
	return OutcomeCreated, nil
}

func (m *Memory) GetUserProperties(ctx context.Context, userID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values[userID]))
	for k, v := range m.values[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) PatchUserProperties(ctx context.Context, userID string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.values[userID]
	if cur == nil {
		cur = make(map[string]string, len(values))
		m.values[userID] = cur
	}
	for k, v := range values {
		cur[k] = v
	}
	return nil
}

// Definitions returns a copy of the registered definitions, for assertions.
func (m *Memory) Definitions() map[string]PropertyDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]PropertyDefinition, len(m.defs))
	for k, v := range m.defs {
		out[k] = v
	}
	return out
}
