package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/voice"
)

type testState struct {
	Names []string
}

type stubAgent struct{ name string }

func (a stubAgent) Name() string                               { return a.name }
func (a stubAgent) Description() string                        { return "" }
func (a stubAgent) Instructions(*testState) (string, error)    { return "", nil }
func (a stubAgent) Tools() []Tool[testState]                   { return nil }
func (a stubAgent) Tool(string) (Tool[testState], bool)        { return nil, false }
func (a stubAgent) History() *History                          { return NewHistory() }
func (a stubAgent) Synthesizer() voice.Synthesizer             { return nil }
func (a stubAgent) AllowInterruptions() bool                   { return true }
func (a stubAgent) OnEnter(context.Context, Runtime) error     { return nil }
func (a stubAgent) OnExit(context.Context, Runtime) error      { return nil }

func TestHistory_AppendAndSnapshot(t *testing.T) {
	h := NewHistory(NewUserMessage("hi"))
	h.Append(NewAssistantMessage("lead", "hello", nil))

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "lead", msgs[1].Agent)

	msgs[0].Text = "mutated"
	assert.Equal(t, "hi", h.Messages()[0].Text)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "hello", last.Text)
}

func TestHistory_CloneIsIndependent(t *testing.T) {
	h := NewHistory(NewUserMessage("a"))
	c := h.Clone()
	c.Append(NewUserMessage("b"))

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 2, c.Len())
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(NewUserMessage("x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, h.Len())
}

func TestToolResult_Content(t *testing.T) {
	assert.Equal(t, "ok", ToolResult{}.Content())
	assert.Equal(t, "done", ToolResult{Output: "done"}.Content())
	assert.JSONEq(t, `{"count":2}`, ToolResult{Output: map[string]int{"count": 2}}.Content())
	assert.JSONEq(t, `{"error":"boom"}`, ToolResult{Error: "boom"}.Content())
	assert.True(t, ToolResult{Error: "boom"}.Failed())
}

func TestToolContext_FirstDirectiveWins(t *testing.T) {
	state := &testState{}
	tc := NewToolContext[testState](context.Background(), state, nil, "lead", "call-1", nil)

	_, ok := tc.Directive()
	assert.False(t, ok)

	tc.TransferTo(stubAgent{name: "sales"}, "transferring", true)
	tc.EndSession("")

	d, ok := tc.Directive()
	require.True(t, ok)
	assert.Equal(t, DirectiveTransfer, d.Kind)
	assert.Equal(t, "sales", d.Target.Name())
	assert.True(t, d.TransferHistory)
	assert.Same(t, state, tc.State())
}

func TestDirective_FarewellInstructions(t *testing.T) {
	assert.Equal(t, DefaultFarewell, Terminate[testState]("").FarewellInstructions())
	assert.Equal(t, "bye", Terminate[testState]("bye").FarewellInstructions())
	assert.Equal(t, "continue", Continue[testState]().String())
	assert.Equal(t, "transfer(sales, history=false)", TransferTo[testState](stubAgent{name: "sales"}, "", false).String())
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Error(t, l.Increment())
	assert.Equal(t, -1, l.Remaining())

	l.Reset()
	assert.Equal(t, 0, l.Count())
	assert.Equal(t, 2, l.Remaining())

	assert.Equal(t, -1, NewStepLimiter(0).Remaining())
}

func TestErrors_AreDistinct(t *testing.T) {
	all := []error{ErrUnknownTool, ErrHandoffConflict, ErrTeardown, ErrGeneration, ErrInterrupted, ErrSessionClosed, ErrTransportLost}
	for i, a := range all {
		for j, b := range all {
			assert.Equal(t, i == j, errors.Is(a, b))
		}
	}
}
