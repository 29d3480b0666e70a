package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author class of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments holds the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of one ToolCall as seen by the model.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the invocation failed.
func (r ToolResult) Failed() bool { return r.Error != "" }

// Content renders the result as the text handed back to the model.
func (r ToolResult) Content() string {
	if r.Failed() {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(b)
	}

	switch v := r.Output.(type) {
	case nil:
		return "ok"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}

	b, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}

	return string(b)
}

// Message is one entry of an agent's conversation history.
type Message struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Agent       string      `json:"agent,omitempty"`
	Text        string      `json:"text,omitempty"`
	ToolCalls   []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult  *ToolResult `json:"tool_result,omitempty"`
	Interrupted bool        `json:"interrupted,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewUserMessage creates a message for a recognized user utterance.
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant turn authored by agent.
func NewAssistantMessage(agent, text string, calls []ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Agent: agent, Text: text, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolMessage creates the history entry carrying a tool result.
func NewToolMessage(agent string, result ToolResult) Message {
	r := result
	return Message{ID: NewID(), Role: RoleTool, Agent: agent, ToolResult: &r, Timestamp: time.Now().UTC()}
}
