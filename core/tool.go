package core

// Tool is a capability an agent exposes to the language model. S is the
// session's shared state type; tools receive it through the ToolContext.
//
// Call receives arguments already decoded from the model's JSON and validated
// against Parameters. A tool may return a Directive[S] as its result or record
// one on the ToolContext to request a transfer or termination.
type Tool[S any] interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Call(tc *ToolContext[S], args map[string]any) (any, error)
}
