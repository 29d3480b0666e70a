package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/core"
)

type mockRuntime struct {
	mock.Mock
	id string
}

func (m *mockRuntime) ID() string          { return m.id }
func (m *mockRuntime) RoomID() string      { return "room-" + m.id }
func (m *mockRuntime) ActiveAgent() string { return "lead" }
func (m *mockRuntime) Interrupt()          {}

func (m *mockRuntime) GenerateReply(opts core.ReplyOptions) (core.SpeechHandle, error) {
	return nil, core.ErrSessionClosed
}

func (m *mockRuntime) Say(string, core.ReplyOptions) (core.SpeechHandle, error) {
	return nil, core.ErrSessionClosed
}

func (m *mockRuntime) EndSession(ctx context.Context, farewell string) error {
	args := m.Called(ctx, farewell)
	return args.Error(0)
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()

	a := &mockRuntime{id: "b"}
	b := &mockRuntime{id: "a"}

	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	require.Error(t, r.Add(&mockRuntime{id: "a"}))

	got, ok := r.Get("b")
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []Info{
		{ID: "a", RoomID: "room-a", ActiveAgent: "lead"},
		{ID: "b", RoomID: "room-b", ActiveAgent: "lead"},
	}, r.List())

	r.Remove("a")

	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_EndAll(t *testing.T) {
	r := NewRegistry()

	live := &mockRuntime{id: "live"}
	live.On("EndSession", mock.Anything, "bye").Return(nil).Once()

	closing := &mockRuntime{id: "closing"}
	closing.On("EndSession", mock.Anything, "bye").Return(core.ErrSessionClosed).Once()

	require.NoError(t, r.Add(live))
	require.NoError(t, r.Add(closing))

	require.NoError(t, r.EndAll(context.Background(), "bye"))

	live.AssertExpectations(t)
	closing.AssertExpectations(t)
}

func TestRegistry_EndAllReportsFailures(t *testing.T) {
	r := NewRegistry()

	broken := &mockRuntime{id: "broken"}
	broken.On("EndSession", mock.Anything, "").Return(core.ErrTeardown)

	require.NoError(t, r.Add(broken))

	err := r.EndAll(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTeardown))
	assert.Contains(t, err.Error(), "broken")
}
