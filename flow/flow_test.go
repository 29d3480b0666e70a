package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/voicemesh/agent"
	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/model"
	"github.com/hupe1980/voicemesh/tool"
)

type flowState struct {
	Notes    []string
	Category string
}

func noteTool() core.Tool[flowState] {
	return tool.NewFunctionTool("note", "Record a note",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(tc *core.ToolContext[flowState], args map[string]any) (any, error) {
			tc.State().Notes = append(tc.State().Notes, args["text"].(string))
			return "noted", nil
		})
}

func panicTool() core.Tool[flowState] {
	return tool.NewFunctionTool("explode", "Always panics", nil,
		func(*core.ToolContext[flowState], map[string]any) (any, error) {
			panic("boom")
		})
}

func transferTool(target string) core.Tool[flowState] {
	return tool.NewTransferTool[flowState]("to_"+target, "Transfer to "+target,
		func(*core.ToolContext[flowState], map[string]any) (core.Agent[flowState], error) {
			return agent.New[flowState](target), nil
		},
		func(o *tool.TransferOptions) { o.Announcement = "Connecting you to " + target },
	)
}

func endTool() core.Tool[flowState] {
	return tool.NewEndSessionTool[flowState]("finish", "End the call")
}

func returnedDirectiveTool() core.Tool[flowState] {
	return tool.NewFunctionTool("hang_up", "Ends the call by returning a directive", nil,
		func(*core.ToolContext[flowState], map[string]any) (any, error) {
			return core.Terminate[flowState]("say bye"), nil
		})
}

func newFlowAgent(tools ...core.Tool[flowState]) *agent.VoiceAgent[flowState] {
	return agent.New("lead",
		agent.WithInstruction(agent.NewInstructionFromText[flowState]("You are the lead. Category: {{.Category}}")),
		agent.WithTools(tools...),
	)
}

func call(name, args string) core.ToolCall {
	return core.ToolCall{ID: core.NewID(), Name: name, Arguments: args}
}

func TestStep_RequestAssemblesInstructionsHistoryAndTools(t *testing.T) {
	a := newFlowAgent(noteTool(), endTool())
	a.History().Append(core.NewUserMessage("hi"))

	step := NewStep[flowState](model.NewScriptedModel("m"))

	req, err := step.Request(a, &flowState{Category: "novel"}, "Be brief.")
	require.NoError(t, err)

	assert.Equal(t, "You are the lead. Category: novel\n\nBe brief.", req.Instructions)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hi", req.Messages[0].Text)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "note", req.Tools[0].Name)
	assert.Equal(t, "finish", req.Tools[1].Name)
}

func TestStep_RequestTrimsHistoryWithoutOrphanedToolResults(t *testing.T) {
	a := newFlowAgent()
	a.History().Append(
		core.NewUserMessage("one"),
		core.NewAssistantMessage("lead", "", []core.ToolCall{{ID: "1", Name: "note"}}),
		core.NewToolMessage("lead", core.ToolResult{CallID: "1", Name: "note", Output: "noted"}),
		core.NewUserMessage("two"),
	)

	step := NewStep[flowState](model.NewScriptedModel("m"), func(o *StepOptions) { o.MaxHistoryMessages = 2 })

	req, err := step.Request(a, &flowState{}, "")
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "two", req.Messages[0].Text)
}

func TestStep_RunWrapsGenerationFailure(t *testing.T) {
	m := model.NewScriptedModel("m").Fail(errors.New("rate limited"))
	step := NewStep[flowState](m)

	_, err := step.Run(context.Background(), newFlowAgent(), &flowState{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGeneration)
}

func TestStep_RunReportsUsage(t *testing.T) {
	m := model.NewScriptedModel("m").Reply("hello there")

	var got []model.TokenUsage

	step := NewStep[flowState](m, func(o *StepOptions) {
		o.OnUsage = func(_ model.Info, u model.TokenUsage) { got = append(got, u) }
	})

	resp, err := step.Run(context.Background(), newFlowAgent(), &flowState{}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	require.Len(t, got, 1)
	assert.Positive(t, got[0].TotalTokens)
}

func TestRouter_RunsCallsInOrderAndMutatesSharedState(t *testing.T) {
	state := &flowState{}
	r := NewRouter[flowState]()

	out := r.Dispatch(context.Background(), newFlowAgent(noteTool()), state, nil, []core.ToolCall{
		call("note", `{"text":"first"}`),
		call("note", `{"text":"second"}`),
	})

	assert.Equal(t, []string{"first", "second"}, state.Notes)
	require.Len(t, out.Invocations, 2)
	assert.Equal(t, core.DirectiveContinue, out.Directive.Kind)

	for _, res := range out.Results() {
		assert.False(t, res.Failed())
		assert.Equal(t, "noted", res.Content())
	}
}

func TestRouter_UnknownToolIsNonFatal(t *testing.T) {
	state := &flowState{}
	r := NewRouter[flowState]()

	out := r.Dispatch(context.Background(), newFlowAgent(noteTool()), state, nil, []core.ToolCall{
		call("does_not_exist", `{}`),
		call("note", `{"text":"still runs"}`),
	})

	require.Len(t, out.Invocations, 2)
	assert.ErrorIs(t, out.Invocations[0].Err, core.ErrUnknownTool)
	assert.True(t, out.Invocations[0].Result.Failed())
	assert.Contains(t, out.Invocations[0].Result.Content(), "does_not_exist")
	assert.NoError(t, out.Invocations[1].Err)
	assert.Equal(t, []string{"still runs"}, state.Notes)
}

func TestRouter_ArgumentErrors(t *testing.T) {
	r := NewRouter[flowState]()
	a := newFlowAgent(noteTool())

	out := r.Dispatch(context.Background(), a, &flowState{}, nil, []core.ToolCall{
		call("note", `{not json`),
		call("note", `{}`),
		call("note", ``),
	})

	var codes []string

	for _, inv := range out.Invocations {
		var te *tool.ToolError
		require.ErrorAs(t, inv.Err, &te)
		codes = append(codes, te.Code)
	}

	assert.Equal(t, []string{tool.CodeBadArgs, tool.CodeValidation, tool.CodeValidation}, codes)
}

func TestRouter_RecoversPanics(t *testing.T) {
	r := NewRouter[flowState]()

	out := r.Dispatch(context.Background(), newFlowAgent(panicTool(), noteTool()), &flowState{}, nil, []core.ToolCall{
		call("explode", `{}`),
		call("note", `{"text":"after panic"}`),
	})

	var te *tool.ToolError
	require.ErrorAs(t, out.Invocations[0].Err, &te)
	assert.Equal(t, tool.CodePanic, te.Code)
	assert.NoError(t, out.Invocations[1].Err)
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}

	return out
}

func TestRouter_StructuredLoggerRecordsCalls(t *testing.T) {
	var buf bytes.Buffer

	r := NewRouter[flowState](func(o *RouterOptions) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Output: &buf})
	})

	r.Dispatch(context.Background(), newFlowAgent(noteTool(), panicTool()), &flowState{}, nil, []core.ToolCall{
		call("note", `{"text":"hi"}`),
		call("explode", `{}`),
	})

	byMsg := map[string][]map[string]any{}
	for _, line := range logLines(t, &buf) {
		msg := line["msg"].(string)
		byMsg[msg] = append(byMsg[msg], line)
	}

	require.Len(t, byMsg["tool.call.completed"], 1)
	assert.Equal(t, "note", byMsg["tool.call.completed"][0]["tool_name"])
	assert.Equal(t, "lead", byMsg["tool.call.completed"][0]["agent"])

	require.Len(t, byMsg["tool.call.panic"], 1)
	assert.Contains(t, byMsg["tool.call.panic"][0]["stack_trace"], "goroutine")

	require.Len(t, byMsg["tool.call.failed"], 1)
	assert.Equal(t, "explode", byMsg["tool.call.failed"][0]["tool_name"])
	assert.Equal(t, false, byMsg["tool.call.failed"][0]["success"])
}

func TestStep_StructuredLoggerRecordsModelCalls(t *testing.T) {
	var buf bytes.Buffer

	m := model.NewScriptedModel("m").Reply("hello").Fail(errors.New("rate limited"))
	step := NewStep[flowState](m, func(o *StepOptions) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Output: &buf})
	})

	_, err := step.Run(context.Background(), newFlowAgent(), &flowState{}, "")
	require.NoError(t, err)

	_, err = step.Run(context.Background(), newFlowAgent(), &flowState{}, "")
	require.Error(t, err)

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "llm.call.completed", lines[0]["msg"])
	assert.Equal(t, m.Info().Name, lines[0]["model"])
	assert.Positive(t, lines[0]["token_count"])
	assert.Equal(t, "llm.call.failed", lines[1]["msg"])
	assert.Contains(t, lines[1]["error"], "rate limited")
}

func TestRouter_FirstDirectiveWins(t *testing.T) {
	r := NewRouter[flowState]()
	a := newFlowAgent(transferTool("sales"), transferTool("support"), endTool())

	out := r.Dispatch(context.Background(), a, &flowState{}, nil, []core.ToolCall{
		call("to_sales", `{}`),
		call("finish", `{}`),
		call("to_support", `{}`),
	})

	require.Equal(t, core.DirectiveTransfer, out.Directive.Kind)
	assert.Equal(t, "sales", out.Directive.Target.Name())
	assert.Equal(t, "Connecting you to sales", out.Directive.Announcement)
	assert.True(t, out.Directive.TransferHistory)
	require.Len(t, out.Ignored, 2)
	assert.Equal(t, core.DirectiveTerminate, out.Ignored[0].Kind)

	assert.Contains(t, out.Invocations[1].Result.Content(), "ignored terminate")
	assert.Contains(t, out.Invocations[2].Result.Content(), "transfer(sales")
}

func TestRouter_DirectiveReturnedAsResult(t *testing.T) {
	r := NewRouter[flowState]()

	out := r.Dispatch(context.Background(), newFlowAgent(returnedDirectiveTool()), &flowState{}, nil, []core.ToolCall{
		call("hang_up", `{}`),
	})

	require.Equal(t, core.DirectiveTerminate, out.Directive.Kind)
	assert.Equal(t, "say bye", out.Directive.FarewellInstructions())
	assert.Equal(t, `{"directive":"terminate"}`, out.Invocations[0].Result.Content())
}

func TestRouter_ClosedSessionRefusesCalls(t *testing.T) {
	state := &flowState{}
	r := NewRouter[flowState](func(o *RouterOptions) { o.Closed = func() bool { return true } })

	out := r.Dispatch(context.Background(), newFlowAgent(noteTool(), endTool()), state, nil, []core.ToolCall{
		call("note", `{"text":"late"}`),
		call("finish", `{}`),
	})

	assert.Empty(t, state.Notes)
	assert.Equal(t, core.DirectiveContinue, out.Directive.Kind)

	for _, inv := range out.Invocations {
		assert.ErrorIs(t, inv.Err, core.ErrSessionClosed)
	}
}

func TestRouter_OnInvokeObservesEveryCall(t *testing.T) {
	var seen []string

	r := NewRouter[flowState](func(o *RouterOptions) {
		o.OnInvoke = func(inv Invocation) { seen = append(seen, inv.Call.Name) }
	})

	r.Dispatch(context.Background(), newFlowAgent(noteTool()), &flowState{}, nil, []core.ToolCall{
		call("note", `{"text":"a"}`),
		call("missing", ``),
	})

	assert.Equal(t, []string{"note", "missing"}, seen)
}

func TestRouter_BatchProperties(t *testing.T) {
	kinds := []string{"note", "missing", "explode", "to_sales", "to_support", "finish"}

	rapid.Check(t, func(rt *rapid.T) {
		picks := rapid.SliceOfN(rapid.SampledFrom(kinds), 0, 12).Draw(rt, "calls")

		calls := make([]core.ToolCall, 0, len(picks))
		for i, name := range picks {
			calls = append(calls, core.ToolCall{ID: fmt.Sprintf("c%d", i), Name: name, Arguments: `{"text":"x"}`})
		}

		state := &flowState{}
		r := NewRouter[flowState]()
		out := r.Dispatch(context.Background(), newFlowAgent(noteTool(), panicTool(), transferTool("sales"), transferTool("support"), endTool()), state, nil, calls)

		if len(out.Invocations) != len(calls) {
			rt.Fatalf("want %d results, got %d", len(calls), len(out.Invocations))
		}

		for i, inv := range out.Invocations {
			if inv.Result.CallID != calls[i].ID {
				rt.Fatalf("result %d out of order", i)
			}
		}

		first := "continue"
		directives := 0

		for _, name := range picks {
			if strings.HasPrefix(name, "to_") || name == "finish" {
				if directives == 0 {
					first = name
				}
				directives++
			}
		}

		switch {
		case first == "continue":
			if out.Directive.Kind != core.DirectiveContinue {
				rt.Fatalf("unexpected directive %s", out.Directive)
			}
		case first == "finish":
			if out.Directive.Kind != core.DirectiveTerminate {
				rt.Fatalf("want terminate, got %s", out.Directive)
			}
		default:
			if out.Directive.Kind != core.DirectiveTransfer || "to_"+out.Directive.Target.Name() != first {
				rt.Fatalf("want %s, got %s", first, out.Directive)
			}
		}

		if directives > 0 && len(out.Ignored) != directives-1 {
			rt.Fatalf("want %d ignored directives, got %d", directives-1, len(out.Ignored))
		}
	})
}
