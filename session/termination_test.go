package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/testutil"
)

type doneHandle struct {
	done chan struct{}
	err  error
}

func finishedHandle(err error) *doneHandle {
	h := &doneHandle{done: make(chan struct{}), err: err}
	close(h.done)

	return h
}

func (h *doneHandle) ID() string                   { return "farewell" }
func (h *doneHandle) Text() string                 { return "bye" }
func (h *doneHandle) AllowInterruptions() bool     { return false }
func (h *doneHandle) Done() <-chan struct{}        { return h.done }
func (h *doneHandle) Wait(context.Context) error   { return h.err }
func (h *doneHandle) Interrupted() bool            { return false }

type fakeSpeaker struct {
	mu          sync.Mutex
	calls       []string
	interrupted int
	onFarewell  func()
	err         error
}

func (f *fakeSpeaker) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.interrupted++
	f.calls = append(f.calls, "interrupt")
}

func (f *fakeSpeaker) farewell(instructions string) (core.SpeechHandle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "farewell:"+instructions)
	hook := f.onFarewell
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	if f.err != nil {
		return nil, f.err
	}

	return finishedHandle(nil), nil
}

func TestTerminationGate_FarewellThenTeardown(t *testing.T) {
	r := testutil.NewRoom("room-1")
	rooms := testutil.NewRoomService(r)
	speaker := &fakeSpeaker{}

	var events []core.EventType

	g := newTerminationGate(rooms, r.ID(), speaker, func(o *GateOptions) {
		o.OnEvent = func(typ core.EventType, _ string) { events = append(events, typ) }
	})

	require.NoError(t, g.Terminate(context.Background(), ""))

	assert.Equal(t, []string{"interrupt", "farewell:" + core.DefaultFarewell}, speaker.calls)
	assert.Equal(t, []core.EventType{core.EventFarewell, core.EventTeardownRequested}, events)
	assert.Equal(t, []string{"room-1"}, rooms.Deleted())
	assert.Equal(t, StateClosed, g.State())

	select {
	case <-g.Done():
	default:
		t.Fatal("gate not done")
	}

	assert.ErrorIs(t, g.Terminate(context.Background(), ""), core.ErrSessionClosed)
	assert.Len(t, rooms.Deleted(), 1)
}

func TestTerminationGate_FarewellFailureStillTearsDown(t *testing.T) {
	rooms := testutil.NewRoomService(testutil.NewRoom("room-1"))
	speaker := &fakeSpeaker{err: core.ErrSessionClosed}

	g := newTerminationGate(rooms, "room-1", speaker)

	require.NoError(t, g.Terminate(context.Background(), "bye"))
	assert.Equal(t, []string{"room-1"}, rooms.Deleted())
}

func TestTerminationGate_AbortDuringFarewellSkipsTeardown(t *testing.T) {
	rooms := testutil.NewRoomService(testutil.NewRoom("room-1"))
	speaker := &fakeSpeaker{}

	g := newTerminationGate(rooms, "room-1", speaker)
	speaker.onFarewell = g.Close

	require.NoError(t, g.Terminate(context.Background(), "bye"))
	assert.Empty(t, rooms.Deleted())
	assert.Equal(t, StateClosed, g.State())
}

func TestTerminationGate_UnknownRoomIsTeardownFailure(t *testing.T) {
	rooms := testutil.NewRoomService()
	g := newTerminationGate(rooms, "missing", &fakeSpeaker{})

	err := g.Terminate(context.Background(), "")
	require.ErrorIs(t, err, core.ErrTeardown)
	assert.ErrorIs(t, g.Err(), core.ErrTeardown)
}

func TestTerminationGate_ConcurrentTerminateRunsOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		callers := rapid.IntRange(1, 16).Draw(t, "callers")

		rooms := testutil.NewRoomService(testutil.NewRoom("room-1"))
		speaker := &fakeSpeaker{}
		g := newTerminationGate(rooms, "room-1", speaker)

		var (
			wg       sync.WaitGroup
			ok       atomic.Int32
			rejected atomic.Int32
		)

		for i := 0; i < callers; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if err := g.Terminate(context.Background(), ""); err == nil {
					ok.Add(1)
				} else {
					rejected.Add(1)
				}
			}()
		}

		wg.Wait()

		if ok.Load() != 1 || int(rejected.Load()) != callers-1 {
			t.Fatalf("ok=%d rejected=%d callers=%d", ok.Load(), rejected.Load(), callers)
		}

		if n := len(rooms.Deleted()); n != 1 {
			t.Fatalf("room deleted %d times", n)
		}

		if speaker.interrupted != 1 {
			t.Fatalf("interrupted %d times", speaker.interrupted)
		}
	})
}

func TestGateState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "farewelling", StateFarewelling.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", GateState(9).String())
}
