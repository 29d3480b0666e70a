package tool

import (
	"github.com/hupe1980/voicemesh/core"
)

// AgentFactory builds the agent a transfer tool hands the session to. It
// runs inside the tool call, right before activation, so it may read the
// state and the arguments.
type AgentFactory[S any] func(tc *core.ToolContext[S], args map[string]any) (core.Agent[S], error)

// TransferOptions configure a transfer tool.
type TransferOptions struct {
	// Parameters is the argument schema; empty object by default.
	Parameters map[string]any
	// Announcement is spoken by the target before its first reply.
	Announcement string
	// TransferHistory seeds the target with a copy of the issuer's history.
	TransferHistory bool
}

// NewTransferTool returns a tool that records a transfer directive to the
// agent produced by build.
func NewTransferTool[S any](name, description string, build AgentFactory[S], optFns ...func(o *TransferOptions)) *FunctionTool[S] {
	opts := TransferOptions{TransferHistory: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionTool(name, description, opts.Parameters, func(tc *core.ToolContext[S], args map[string]any) (any, error) {
		target, err := build(tc, args)
		if err != nil {
			return nil, err
		}

		tc.TransferTo(target, opts.Announcement, opts.TransferHistory)

		return map[string]any{"transferred": true, "agent": target.Name()}, nil
	})
}

// EndSessionOptions configure an end-session tool.
type EndSessionOptions[S any] struct {
	Parameters map[string]any
	// Farewell holds the instructions for the final reply.
	Farewell string
	// Before runs ahead of the directive, for example to record state.
	Before func(tc *core.ToolContext[S], args map[string]any) error
}

// NewEndSessionTool returns a tool that records a terminate directive.
func NewEndSessionTool[S any](name, description string, optFns ...func(o *EndSessionOptions[S])) *FunctionTool[S] {
	opts := EndSessionOptions[S]{Farewell: core.DefaultFarewell}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionTool(name, description, opts.Parameters, func(tc *core.ToolContext[S], args map[string]any) (any, error) {
		if opts.Before != nil {
			if err := opts.Before(tc, args); err != nil {
				return nil, err
			}
		}

		tc.EndSession(opts.Farewell)

		return map[string]any{"ending": true}, nil
	})
}
