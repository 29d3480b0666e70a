package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/agent"
	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/util"
)

type testState struct {
	Category string
	Notes    []string
}

func newToolContext(state *testState, fcID string) *core.ToolContext[testState] {
	return core.NewToolContext[testState](context.Background(), state, nil, "lead", fcID, nil)
}

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
	D string `json:"d" enum:"fiction,non-fiction"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, []any{"fiction", "non-fiction"}, props["d"].(map[string]any)["enum"])

	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a", "d"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":    map[string]any{"type": "integer"},
			"kind": map[string]any{"type": "string", "enum": []string{"novel", "children"}},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5.0, "kind": "novel"}, schema))

	err := util.ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	err = util.ValidateParameters(map[string]any{"x": 1.0, "kind": "poetry"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "kind", vErr.Field)
}

func TestValidateParameters_RequiredAsStrings(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []string{"name"}}
	assert.Error(t, util.ValidateParameters(map[string]any{}, schema))
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_MutatesSharedState(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{"type": "string"},
		},
		"required": []string{"category"},
	}

	setTool := NewFunctionTool("set_category", "Record category", params, func(tc *core.ToolContext[testState], args map[string]any) (any, error) {
		tc.State().Category = args["category"].(string)
		return "noted", nil
	})

	state := &testState{}
	result, err := setTool.Call(newToolContext(state, "fc1"), map[string]any{"category": "sales"})
	require.NoError(t, err)
	assert.Equal(t, "noted", result)
	assert.Equal(t, "sales", state.Category)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []any{"a"},
	}
	called := false
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext[testState], _ map[string]any) (any, error) {
		called = true
		return 0, nil
	})

	_, err := tTool.Call(newToolContext(&testState{}, "fc2"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.False(t, called)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext[testState], _ map[string]any) (any, error) {
		return nil, boom
	})

	_, err := execTool.Call(newToolContext(&testState{}, "fc3"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("custom", "nope", "E_CUSTOM")
	execTool := NewFunctionTool("custom", "", nil, func(_ *core.ToolContext[testState], _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := execTool.Call(newToolContext(&testState{}, "fc4"), map[string]any{})
	assert.Same(t, custom, err)
}

// -------------------- Typed tools --------------------

type noteArgs struct {
	Note string `json:"note" description:"What to remember"`
}

func TestTypedTool_DecodesArguments(t *testing.T) {
	noteTool := NewTypedTool("note", "Remember something", func(tc *core.ToolContext[testState], a noteArgs) (any, error) {
		tc.State().Notes = append(tc.State().Notes, a.Note)
		return len(tc.State().Notes), nil
	})

	assert.Equal(t, []string{"note"}, noteTool.Parameters()["required"])

	state := &testState{}
	got, err := noteTool.Call(newToolContext(state, "fc5"), map[string]any{"note": "likes sci-fi"})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, []string{"likes sci-fi"}, state.Notes)
}

// -------------------- Handoff tools --------------------

func TestTransferTool_RecordsDirective(t *testing.T) {
	transfer := NewTransferTool[testState]("to_sales", "Transfer to sales",
		func(_ *core.ToolContext[testState], _ map[string]any) (core.Agent[testState], error) {
			return agent.New[testState]("sales"), nil
		},
		func(o *TransferOptions) { o.Announcement = "Transferring you now." },
	)

	tc := newToolContext(&testState{}, "fc6")
	res, err := transfer.Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "sales", res.(map[string]any)["agent"])

	d, ok := tc.Directive()
	require.True(t, ok)
	assert.Equal(t, core.DirectiveTransfer, d.Kind)
	assert.Equal(t, "Transferring you now.", d.Announcement)
	assert.True(t, d.TransferHistory)
}

func TestTransferTool_FactoryErrorNoDirective(t *testing.T) {
	transfer := NewTransferTool[testState]("to_sales", "",
		func(_ *core.ToolContext[testState], _ map[string]any) (core.Agent[testState], error) {
			return nil, errors.New("unavailable")
		},
	)

	tc := newToolContext(&testState{}, "fc7")
	_, err := transfer.Call(tc, map[string]any{})
	assert.Error(t, err)

	_, ok := tc.Directive()
	assert.False(t, ok)
}

func TestEndSessionTool(t *testing.T) {
	end := NewEndSessionTool("finish", "End the call", func(o *EndSessionOptions[testState]) {
		o.Before = func(tc *core.ToolContext[testState], _ map[string]any) error {
			tc.State().Category = "done"
			return nil
		}
	})

	state := &testState{}
	tc := newToolContext(state, "fc8")
	_, err := end.Call(tc, map[string]any{})
	require.NoError(t, err)

	d, ok := tc.Directive()
	require.True(t, ok)
	assert.Equal(t, core.DirectiveTerminate, d.Kind)
	assert.Equal(t, core.DefaultFarewell, d.FarewellInstructions())
	assert.Equal(t, "done", state.Category)
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	wrapped := WrapToolError("ghost", CodeUnknownTool, core.ErrUnknownTool)
	assert.ErrorIs(t, wrapped, core.ErrUnknownTool)
}
