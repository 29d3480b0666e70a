// Package tool implements the function / tool calling subsystem that lets voice
// agents invoke structured capabilities with schema validated arguments,
// consistent error handling and control-flow directives (transfer, end call).
package tool

import (
	"fmt"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/util"
)

// Tool is the capability contract shared with core; see core.Tool.
type Tool[S any] = core.Tool[S]

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodePanic       = "PANIC"
	CodeBadArgs     = "INVALID_ARGUMENTS"
	CodeClosed      = "SESSION_CLOSED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	cause   error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause (for example core.ErrUnknownTool).
func (e *ToolError) Unwrap() error { return e.cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// WrapToolError creates a ToolError that unwraps to cause.
func WrapToolError(tool, code string, cause error) *ToolError {
	return &ToolError{Tool: tool, Message: cause.Error(), Code: code, cause: cause}
}
