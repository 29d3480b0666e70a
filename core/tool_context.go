package core

import (
	"context"

	"github.com/hupe1980/voicemesh/logging"
)

// ToolContext is handed to one tool invocation. It exposes the shared
// conversation state, the session runtime and records at most one directive.
// The state pointer is the session's single instance; tools mutate it in place.
type ToolContext[S any] struct {
	ctx            context.Context
	state          *S
	runtime        Runtime
	agentName      string
	functionCallID string
	directive      *Directive[S]

	*loggerAdapter
}

// NewToolContext constructs a tool context for one function call.
func NewToolContext[S any](ctx context.Context, state *S, rt Runtime, agentName, functionCallID string, logger logging.Logger) *ToolContext[S] {
	return &ToolContext[S]{
		ctx:            ctx,
		state:          state,
		runtime:        rt,
		agentName:      agentName,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the invocation context. It is cancelled when the session
// shuts down.
func (tc *ToolContext[S]) Context() context.Context { return tc.ctx }

// State returns the session's shared conversation state.
func (tc *ToolContext[S]) State() *S { return tc.state }

// Session returns the runtime of the session the tool runs in.
func (tc *ToolContext[S]) Session() Runtime { return tc.runtime }

// AgentName returns the name of the agent that issued the call.
func (tc *ToolContext[S]) AgentName() string { return tc.agentName }

// FunctionCallID returns the model's id for this call.
func (tc *ToolContext[S]) FunctionCallID() string { return tc.functionCallID }

// TransferTo requests a handoff to target once the current tool batch
// completes. Only the first directive recorded on a context is kept.
func (tc *ToolContext[S]) TransferTo(target Agent[S], announcement string, transferHistory bool) {
	tc.record(TransferTo(target, announcement, transferHistory))
}

// EndSession requests termination with the given farewell instructions.
func (tc *ToolContext[S]) EndSession(farewell string) {
	tc.record(Terminate[S](farewell))
}

// RequestDirective records d. Continue directives are not recorded.
func (tc *ToolContext[S]) RequestDirective(d Directive[S]) {
	if d.Kind == DirectiveContinue {
		return
	}

	tc.record(d)
}

// Directive returns the recorded directive, if any.
func (tc *ToolContext[S]) Directive() (Directive[S], bool) {
	if tc.directive == nil {
		return Directive[S]{}, false
	}

	return *tc.directive, true
}

func (tc *ToolContext[S]) record(d Directive[S]) {
	if tc.directive != nil {
		tc.LogWarn("tool.directive.ignored", "agent", tc.agentName, "function_call_id", tc.functionCallID, "kept", tc.directive.String(), "ignored", d.String())
		return
	}

	tc.directive = &d
	tc.LogInfo("tool.directive.request", "agent", tc.agentName, "function_call_id", tc.functionCallID, "directive", d.String())
}
