package core

import (
	"context"

	"github.com/hupe1980/voicemesh/voice"
)

// Agent is a conversational persona. An agent is constructed right before it
// is activated and is active at most once per session.
type Agent[S any] interface {
	// Name identifies the agent within a session.
	Name() string

	// Description is a short summary used in logs and transfer prompts.
	Description() string

	// Instructions renders the system prompt, possibly from the shared state.
	Instructions(state *S) (string, error)

	// Tools returns the ordered capability set exposed to the model.
	Tools() []Tool[S]

	// Tool looks up a capability by name.
	Tool(name string) (Tool[S], bool)

	// History is the agent's own conversation log.
	History() *History

	// Synthesizer overrides the session's default voice. Nil keeps the default.
	Synthesizer() voice.Synthesizer

	// AllowInterruptions is the default barge-in policy for this agent's speech.
	AllowInterruptions() bool

	// OnEnter runs once right after the agent became active.
	OnEnter(ctx context.Context, rt Runtime) error

	// OnExit runs once right before another agent replaces it.
	OnExit(ctx context.Context, rt Runtime) error
}
