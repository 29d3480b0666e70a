package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/voice"
)

// Options configures a VoiceAgent.
type Options[S any] struct {
	Description        string
	Instruction        Instruction[S]
	Tools              []core.Tool[S]
	Synthesizer        voice.Synthesizer
	AllowInterruptions bool
	History            []core.Message
	OnEnter            func(ctx context.Context, rt core.Runtime) error
	OnExit             func(ctx context.Context, rt core.Runtime) error
}

// WithDescription sets the agent description.
func WithDescription[S any](d string) func(o *Options[S]) {
	return func(o *Options[S]) { o.Description = d }
}

// WithInstruction sets the agent instructions.
func WithInstruction[S any](i Instruction[S]) func(o *Options[S]) {
	return func(o *Options[S]) { o.Instruction = i }
}

// WithTools appends tools to the capability set.
func WithTools[S any](tools ...core.Tool[S]) func(o *Options[S]) {
	return func(o *Options[S]) { o.Tools = append(o.Tools, tools...) }
}

// WithSynthesizer overrides the session's default voice for this agent.
func WithSynthesizer[S any](s voice.Synthesizer) func(o *Options[S]) {
	return func(o *Options[S]) { o.Synthesizer = s }
}

// WithAllowInterruptions sets the default barge-in policy.
func WithAllowInterruptions[S any](allow bool) func(o *Options[S]) {
	return func(o *Options[S]) { o.AllowInterruptions = allow }
}

// WithHistory seeds the agent's history.
func WithHistory[S any](msgs ...core.Message) func(o *Options[S]) {
	return func(o *Options[S]) { o.History = append(o.History, msgs...) }
}

// WithOnEnter replaces the default enter hook (which generates a reply).
func WithOnEnter[S any](fn func(ctx context.Context, rt core.Runtime) error) func(o *Options[S]) {
	return func(o *Options[S]) { o.OnEnter = fn }
}

// WithOnExit sets the exit hook.
func WithOnExit[S any](fn func(ctx context.Context, rt core.Runtime) error) func(o *Options[S]) {
	return func(o *Options[S]) { o.OnExit = fn }
}

// VoiceAgent is a conversational persona. It implements core.Agent.
type VoiceAgent[S any] struct {
	name               string
	description        string
	instruction        Instruction[S]
	tools              []core.Tool[S]
	lookup             map[string]int
	synthesizer        voice.Synthesizer
	allowInterruptions bool
	history            *core.History
	onEnter            func(ctx context.Context, rt core.Runtime) error
	onExit             func(ctx context.Context, rt core.Runtime) error
}

// New creates a voice agent with sensible defaults:
//   - instructions "You are <name>, a helpful voice assistant."
//   - interruptions allowed
//   - on enter, greet the user with a generated reply
//
// A tool registered twice under the same name replaces the earlier one in place.
func New[S any](name string, optFns ...func(o *Options[S])) *VoiceAgent[S] {
	opts := Options[S]{
		Instruction:        NewInstructionFromText[S](fmt.Sprintf("You are %s, a helpful voice assistant.", name)),
		AllowInterruptions: true,
		OnEnter:            GreetOnEnter,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &VoiceAgent[S]{
		name:               name,
		description:        opts.Description,
		instruction:        opts.Instruction,
		lookup:             make(map[string]int, len(opts.Tools)),
		synthesizer:        opts.Synthesizer,
		allowInterruptions: opts.AllowInterruptions,
		history:            core.NewHistory(opts.History...),
		onEnter:            opts.OnEnter,
		onExit:             opts.OnExit,
	}

	for _, t := range opts.Tools {
		a.register(t)
	}

	return a
}

// GreetOnEnter is the default enter hook: it schedules a reply so the agent
// speaks first.
func GreetOnEnter(_ context.Context, rt core.Runtime) error {
	_, err := rt.GenerateReply(core.ReplyOptions{})
	return err
}

func (a *VoiceAgent[S]) register(t core.Tool[S]) {
	if idx, ok := a.lookup[t.Name()]; ok {
		a.tools[idx] = t
		return
	}
	a.lookup[t.Name()] = len(a.tools)
	a.tools = append(a.tools, t)
}

// Name implements core.Agent.
func (a *VoiceAgent[S]) Name() string { return a.name }

// Description implements core.Agent.
func (a *VoiceAgent[S]) Description() string { return a.description }

// Instructions implements core.Agent.
func (a *VoiceAgent[S]) Instructions(state *S) (string, error) {
	text, err := a.instruction.Resolve(state)
	if err != nil {
		return "", fmt.Errorf("agent %s: render instructions: %w", a.name, err)
	}
	return text, nil
}

// Tools implements core.Agent.
func (a *VoiceAgent[S]) Tools() []core.Tool[S] {
	return append([]core.Tool[S](nil), a.tools...)
}

// Tool implements core.Agent.
func (a *VoiceAgent[S]) Tool(name string) (core.Tool[S], bool) {
	idx, ok := a.lookup[name]
	if !ok {
		return nil, false
	}
	return a.tools[idx], true
}

// History implements core.Agent.
func (a *VoiceAgent[S]) History() *core.History { return a.history }

// Synthesizer implements core.Agent.
func (a *VoiceAgent[S]) Synthesizer() voice.Synthesizer { return a.synthesizer }

// AllowInterruptions implements core.Agent.
func (a *VoiceAgent[S]) AllowInterruptions() bool { return a.allowInterruptions }

// OnEnter implements core.Agent.
func (a *VoiceAgent[S]) OnEnter(ctx context.Context, rt core.Runtime) error {
	if a.onEnter == nil {
		return nil
	}
	return a.onEnter(ctx, rt)
}

// OnExit implements core.Agent.
func (a *VoiceAgent[S]) OnExit(ctx context.Context, rt core.Runtime) error {
	if a.onExit == nil {
		return nil
	}
	return a.onExit(ctx, rt)
}
