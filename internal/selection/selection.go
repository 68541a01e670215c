// Package selection tracks an operator's multi-select set of credential IDs.
// Selection is independent of filtering; visibility checks belong to callers.
package selection

import (
	"bytes"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Manager is a concurrency-safe set of selected credential IDs.
type Manager struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

// NewManager creates an empty selection.
func NewManager() *Manager {
	return &Manager{ids: make(map[uuid.UUID]struct{})}
}

// Toggle adds the ID if absent, removes it if present.
func (m *Manager) Toggle(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		delete(m.ids, id)
		return
	}
	m.ids[id] = struct{}{}
}

// SelectAll selects exactly the passed IDs (typically the current filtered
// view), replacing the previous selection. Idempotent.
func (m *Manager) SelectAll(ids []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
}

// Clear empties the selection.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[uuid.UUID]struct{})
}

// Current returns the selected IDs sorted ascending for determinism.
func (m *Manager) Current() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}

// Registry hands out one selection per operator.
type Registry struct {
	mu   sync.Mutex
	byOp map[uuid.UUID]*Manager
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOp: make(map[uuid.UUID]*Manager)}
}

// For returns the operator's selection, creating it on first use.
func (r *Registry) For(operator uuid.UUID) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byOp[operator]
	if !ok {
		m = NewManager()
		r.byOp[operator] = m
	}
	return m
}
