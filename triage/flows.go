package triage

import (
	"fmt"
	"sort"

	"github.com/hupe1980/voicemesh/agent"
	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/voice"
)

// Options configure the agents of a triage flow.
type Options struct {
	// SpecialistVoice overrides the session voice for specialists.
	SpecialistVoice voice.Synthesizer
	// Specialist replaces the built-in specialist constructor.
	Specialist func(specialty string, state *State) core.Agent[State]
}

// WithSpecialistVoice gives specialists their own voice.
func WithSpecialistVoice(s voice.Synthesizer) func(o *Options) {
	return func(o *Options) { o.SpecialistVoice = s }
}

// WithSpecialist replaces the built-in specialist constructor.
func WithSpecialist(fn func(specialty string, state *State) core.Agent[State]) func(o *Options) {
	return func(o *Options) { o.Specialist = fn }
}

// LeadFactory builds the front-door agent of a flow.
type LeadFactory func(optFns ...func(o *Options)) core.Agent[State]

var flows = map[string]LeadFactory{
	"sales":  func(optFns ...func(o *Options)) core.Agent[State] { return NewSalesLead(optFns...) },
	"editor": func(optFns ...func(o *Options)) core.Agent[State] { return NewEditorLead(optFns...) },
}

// Flows returns the names of the shipped flows.
func Flows() []string {
	names := make([]string, 0, len(flows))
	for name := range flows {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewLead builds the front-door agent of the named flow.
func NewLead(flow string, optFns ...func(o *Options)) (core.Agent[State], error) {
	fn, ok := flows[flow]
	if !ok {
		return nil, fmt.Errorf("unknown triage flow %q (available: %v)", flow, Flows())
	}

	return fn(optFns...), nil
}

func buildOptions(optFns []func(o *Options)) Options {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

func specialistFactory(opts Options, specialty string, fallback func(state *State) core.Agent[State]) SpecialistFactory {
	if opts.Specialist != nil {
		return func(state *State) core.Agent[State] { return opts.Specialist(specialty, state) }
	}

	return fallback
}

func specialistVoice(opts Options) func(o *agent.Options[State]) {
	return agent.WithSynthesizer[State](opts.SpecialistVoice)
}
