package core

import "fmt"

// DirectiveKind enumerates control-flow outcomes of a tool invocation.
type DirectiveKind int

const (
	// DirectiveContinue keeps the active agent.
	DirectiveContinue DirectiveKind = iota
	// DirectiveTransfer hands the session to another agent.
	DirectiveTransfer
	// DirectiveTerminate says farewell and tears the session down.
	DirectiveTerminate
)

// String returns the lower case name of the kind.
func (k DirectiveKind) String() string {
	switch k {
	case DirectiveContinue:
		return "continue"
	case DirectiveTransfer:
		return "transfer"
	case DirectiveTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Directive is the control-flow request produced by a tool.
//
// For a transfer, Announcement is spoken by the target (in the target's voice)
// before its own first reply, and TransferHistory decides whether the target
// starts from a copy of the issuer's history. For a termination, Farewell holds
// the instructions for the final reply; empty means DefaultFarewell.
type Directive[S any] struct {
	Kind            DirectiveKind
	Target          Agent[S]
	Announcement    string
	TransferHistory bool
	Farewell        string
}

// DefaultFarewell instructs the model to close the conversation politely.
const DefaultFarewell = "Thank the user for their time and end the conversation with a short, polite message."

// Continue returns the no-op directive.
func Continue[S any]() Directive[S] { return Directive[S]{Kind: DirectiveContinue} }

// TransferTo returns a transfer directive.
func TransferTo[S any](target Agent[S], announcement string, transferHistory bool) Directive[S] {
	return Directive[S]{Kind: DirectiveTransfer, Target: target, Announcement: announcement, TransferHistory: transferHistory}
}

// Terminate returns a termination directive.
func Terminate[S any](farewell string) Directive[S] {
	return Directive[S]{Kind: DirectiveTerminate, Farewell: farewell}
}

// FarewellInstructions returns Farewell or DefaultFarewell.
func (d Directive[S]) FarewellInstructions() string {
	if d.Farewell == "" {
		return DefaultFarewell
	}

	return d.Farewell
}

// String implements fmt.Stringer.
func (d Directive[S]) String() string {
	switch d.Kind {
	case DirectiveTransfer:
		name := "<nil>"
		if d.Target != nil {
			name = d.Target.Name()
		}

		return fmt.Sprintf("transfer(%s, history=%t)", name, d.TransferHistory)
	default:
		return d.Kind.String()
	}
}
