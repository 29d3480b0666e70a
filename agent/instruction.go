package agent

import "github.com/hupe1980/voicemesh/internal/util"

// Provider supplies dynamic instruction text derived from the shared state.
type Provider[S any] interface {
	Instruction(state *S) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func[S any] func(state *S) (string, error)

// Instruction implements Provider.
func (f Func[S]) Instruction(state *S) (string, error) { return f(state) }

// Instruction represents either a template string or a dynamic provider.
// Template text is rendered with text/template against the state pointer, so
// "{{.Category}}" reads the state's Category field.
type Instruction[S any] struct {
	text     string
	provider Provider[S]
}

// NewInstructionFromText creates an Instruction from template text.
func NewInstructionFromText[S any](text string) Instruction[S] { return Instruction[S]{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider[S any](p Provider[S]) Instruction[S] {
	return Instruction[S]{provider: p}
}

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc[S any](f func(state *S) (string, error)) Instruction[S] {
	return Instruction[S]{provider: Func[S](f)}
}

// IsStatic returns true if the instruction is backed by text.
func (i Instruction[S]) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for the given state.
func (i Instruction[S]) Resolve(state *S) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(state)
	}
	return util.RenderTemplate(i.text, state)
}
