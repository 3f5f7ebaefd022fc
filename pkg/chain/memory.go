package chain

import (
	"sync"

	"github.com/aretw0/chainflow/pkg/domain"
)

// Memory is the shared variable store of one chain.
// Values are stored normalized (see domain.Normalize), so a run restored from
// a snapshot reads the same types as the run that wrote it.
// Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemory creates a memory seeded with a copy of initial.
func NewMemory(initial map[string]any) *Memory {
	m := &Memory{data: make(map[string]any, len(initial))}
	for k, v := range initial {
		m.data[k] = domain.Normalize(v)
	}
	return m
}

// Get returns the value stored under key. It never creates entries.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set stores a value.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = domain.Normalize(value)
}

// Merge stores every entry of vars.
func (m *Memory) Merge(vars map[string]any) {
	if len(vars) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range vars {
		m.data[k] = domain.Normalize(v)
	}
}

// Delete removes a key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Snapshot returns a deep copy of the entries.
func (m *Memory) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.CopyMap(m.data)
}

// Replace swaps the entries for a copy of data.
func (m *Memory) Replace(data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = domain.NormalizeMap(data)
	if m.data == nil {
		m.data = make(map[string]any)
	}
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
