package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter schema (parameters)
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext[S] giving access to
//     the shared state, the session runtime and directive recording
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use.
type FunctionTool[S any] struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(tc *core.ToolContext[S], args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	noteTool := NewFunctionTool[State](
//	  "set_category",
//	  "Record the category of the user's request",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "category": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"category"},
//	  },
//	  func(tc *core.ToolContext[State], args map[string]any) (any, error) {
//	    tc.State().Category = args["category"].(string)
//	    return "noted", nil
//	  },
//	)
func NewFunctionTool[S any](
	name, description string,
	parameters map[string]any,
	fn func(tc *core.ToolContext[S], args map[string]any) (any, error),
) *FunctionTool[S] {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool[S]{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema). Field tags json, description and enum
// are honored.
func NewFunctionToolFromStruct[S any](
	name, description string,
	structType any,
	fn func(tc *core.ToolContext[S], args map[string]any) (any, error),
) *FunctionTool[S] {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool[S]) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool[S]) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool[S]) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes the
// underlying function.
//
// Logging Fields:
//
//	tool: tool name
//	fc_id: function call identifier (correlates model request & tool execution)
//	duration_ms: execution time in milliseconds
func (t *FunctionTool[S]) Call(tc *core.ToolContext[S], args map[string]any) (any, error) {
	start := time.Now()

	tc.LogDebug("tool.call.start", "tool", t.name, "fc_id", tc.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		tc.LogWarn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			cause:   err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			tc.LogError("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		tc.LogError("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			cause:   err,
		}
	}

	tc.LogInfo("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
