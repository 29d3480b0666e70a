package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/voicemesh/core"
)

// Info describes a live session.
type Info struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	ActiveAgent string `json:"active_agent"`
}

// Registry tracks the live sessions of a process. It is safe for concurrent
// access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]core.Runtime
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]core.Runtime)}
}

// Add registers rt. Registering the same session id twice is an error.
func (r *Registry) Add(rt core.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[rt.ID()]; ok {
		return fmt.Errorf("session %s already registered", rt.ID())
	}

	r.sessions[rt.ID()] = rt

	return nil
}

// Remove forgets the session with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (core.Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.sessions[id]

	return rt, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// List returns a snapshot of the live sessions ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))

	for _, rt := range r.sessions {
		out = append(out, Info{ID: rt.ID(), RoomID: rt.RoomID(), ActiveAgent: rt.ActiveAgent()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// EndAll ends every live session concurrently with the given farewell.
// Sessions that are already closing are skipped.
func (r *Registry) EndAll(ctx context.Context, farewell string) error {
	r.mu.RLock()
	live := make([]core.Runtime, 0, len(r.sessions))

	for _, rt := range r.sessions {
		live = append(live, rt)
	}
	r.mu.RUnlock()

	var g errgroup.Group

	for _, rt := range live {
		g.Go(func() error {
			if err := rt.EndSession(ctx, farewell); err != nil && !errors.Is(err, core.ErrSessionClosed) {
				return fmt.Errorf("end session %s: %w", rt.ID(), err)
			}

			return nil
		})
	}

	return g.Wait()
}
