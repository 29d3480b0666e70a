package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/room"
)

// GateState is the lifecycle state of a session.
type GateState int32

const (
	// StateActive accepts speech, tools and handoffs.
	StateActive GateState = iota
	// StateFarewelling only plays the farewell.
	StateFarewelling
	// StateClosed is terminal.
	StateClosed
)

// String implements fmt.Stringer.
func (s GateState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFarewelling:
		return "farewelling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// farewellSpeaker is the part of the session the gate drives.
type farewellSpeaker interface {
	Interrupt()
	farewell(instructions string) (core.SpeechHandle, error)
}

// GateOptions configure a TerminationGate.
type GateOptions struct {
	Logger  logging.Logger
	Tracer  trace.Tracer
	Timeout time.Duration
	OnEvent func(typ core.EventType, detail string)
}

// TerminationGate ends a session exactly once: Active -> Farewelling ->
// Closed, then the room is deleted.
type TerminationGate struct {
	state   atomic.Int32
	rooms   room.Service
	roomID  string
	speaker farewellSpeaker
	opts    GateOptions

	done     chan struct{}
	doneOnce sync.Once

	mu          sync.Mutex
	teardownErr error
}

func newTerminationGate(rooms room.Service, roomID string, speaker farewellSpeaker, optFns ...func(o *GateOptions)) *TerminationGate {
	opts := GateOptions{Logger: logging.NoOpLogger{}, Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &TerminationGate{
		rooms:   rooms,
		roomID:  roomID,
		speaker: speaker,
		opts:    opts,
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (g *TerminationGate) State() GateState { return GateState(g.state.Load()) }

// Done is closed once the gate reached Closed and teardown was attempted.
func (g *TerminationGate) Done() <-chan struct{} { return g.done }

// Err returns the teardown failure, if any.
func (g *TerminationGate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.teardownErr
}

// Terminate interrupts all speech, plays a non-interruptible farewell
// generated from instructions, then deletes the room. Only the first caller
// proceeds; others get core.ErrSessionClosed. A failed farewell is logged and
// teardown still happens. A failed teardown is returned wrapped in
// core.ErrTeardown and not retried.
func (g *TerminationGate) Terminate(ctx context.Context, instructions string) error {
	if !g.state.CompareAndSwap(int32(StateActive), int32(StateFarewelling)) {
		return core.ErrSessionClosed
	}

	if instructions == "" {
		instructions = core.DefaultFarewell
	}

	ctx, span := g.startSpan(ctx, "session.terminate", trace.WithAttributes(attribute.String("room.id", g.roomID)))
	defer span.End()

	g.opts.Logger.Info("session.farewell.start", "room_id", g.roomID)
	g.event(core.EventFarewell, instructions)

	g.speaker.Interrupt()

	if h, err := g.speaker.farewell(instructions); err != nil {
		g.opts.Logger.Warn("session.farewell.failed", "room_id", g.roomID, "error", err.Error())
	} else if err := h.Wait(ctx); err != nil {
		g.opts.Logger.Warn("session.farewell.failed", "room_id", g.roomID, "error", err.Error())
	}

	if !g.state.CompareAndSwap(int32(StateFarewelling), int32(StateClosed)) {
		// Aborted while farewelling, the room is already gone.
		return nil
	}

	err := g.teardown(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "teardown")
	}

	g.close()

	return err
}

// Close moves the gate to Closed without farewell or teardown, for example
// after the transport was lost.
func (g *TerminationGate) Close() {
	g.state.Store(int32(StateClosed))
	g.close()
}

func (g *TerminationGate) teardown(ctx context.Context) error {
	g.event(core.EventTeardownRequested, g.roomID)

	if g.rooms == nil {
		return nil
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.Timeout)
	defer cancel()

	if err := g.rooms.DeleteRoom(tctx, g.roomID); err != nil {
		wrapped := fmt.Errorf("%w: delete room %s: %v", core.ErrTeardown, g.roomID, err)

		g.opts.Logger.Error("session.teardown.failed", "room_id", g.roomID, "error", err.Error())
		g.event(core.EventTeardownFailed, wrapped.Error())

		g.mu.Lock()
		g.teardownErr = wrapped
		g.mu.Unlock()

		return wrapped
	}

	g.opts.Logger.Info("session.teardown.completed", "room_id", g.roomID)

	return nil
}

func (g *TerminationGate) close() {
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *TerminationGate) event(typ core.EventType, detail string) {
	if g.opts.OnEvent != nil {
		g.opts.OnEvent(typ, detail)
	}
}

func (g *TerminationGate) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if g.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return g.opts.Tracer.Start(ctx, name, opts...)
}
