package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/util"
)

// NewTypedTool builds a FunctionTool whose arguments are decoded into A. The
// schema is derived from A's fields (json, description and enum tags).
//
//	type introduceArgs struct {
//	  Name string `json:"name" description:"The participant's name"`
//	}
//
//	tool.NewTypedTool("introduce", "Record a participant",
//	  func(tc *core.ToolContext[State], a introduceArgs) (any, error) { ... })
func NewTypedTool[S, A any](
	name, description string,
	fn func(tc *core.ToolContext[S], args A) (any, error),
) *FunctionTool[S] {
	var zero A

	return NewFunctionTool(name, description, util.CreateSchema(zero), func(tc *core.ToolContext[S], raw map[string]any) (any, error) {
		args, err := decodeArgs[A](raw)
		if err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeBadArgs, cause: err}
		}
		return fn(tc, args)
	})
}

func decodeArgs[A any](raw map[string]any) (A, error) {
	var out A

	b, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("encode arguments: %w", err)
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}

	return out, nil
}
