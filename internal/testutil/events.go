package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/voicemesh/core"
)

// EventRecorder collects session events. Handle is a core.EventHandler.
type EventRecorder struct {
	mu      sync.Mutex
	events  []core.Event
	changed chan struct{}
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{changed: make(chan struct{})}
}

// Handle records ev.
func (r *EventRecorder) Handle(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	close(r.changed)
	r.changed = make(chan struct{})
}

// Events returns all recorded events.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]core.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}

	return out
}

// Filter returns the events of the given types, in order.
func (r *EventRecorder) Filter(types ...core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Event

	for _, ev := range r.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}

	return out
}

// Count returns how many events of typ were recorded.
func (r *EventRecorder) Count(typ core.EventType) int {
	return len(r.Filter(typ))
}

// WaitFor blocks until at least n events of typ were recorded or timeout
// elapsed. It returns the n-th such event.
func (r *EventRecorder) WaitFor(typ core.EventType, n int, timeout time.Duration) (core.Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		seen := 0

		for _, ev := range r.events {
			if ev.Type == typ {
				seen++
				if seen == n {
					r.mu.Unlock()
					return ev, true
				}
			}
		}

		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return core.Event{}, false
		}
	}
}
