package artifact

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is an in-process core.ArtifactStore useful for tests and
// single-process deployments. Data is copied on save and load.
//
// Layout: sessionID -> name -> raw bytes
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the artifact bytes for the given session and name.
func (a *InMemoryStore) Save(ctx context.Context, sessionID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.artifacts[sessionID]; !exists {
		a.artifacts[sessionID] = make(map[string][]byte)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	a.artifacts[sessionID][name] = cp

	return nil
}

// Load returns a copy of the stored artifact bytes or ErrNotFound.
func (a *InMemoryStore) Load(ctx context.Context, sessionID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.artifacts[sessionID][name]
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// List returns the sorted artifact names stored for the session.
func (a *InMemoryStore) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	m := a.artifacts[sessionID]
	names := make([]string, 0, len(m))

	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(_ context.Context, sessionID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.artifacts[sessionID]
	if !ok {
		return ErrNotFound
	}

	if _, ok := m[name]; !ok {
		return ErrNotFound
	}

	delete(m, name)

	return nil
}
