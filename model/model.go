package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/voicemesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input assembled for one reply.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry text deltas; the final chunk carries the full text and all tool calls.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Text         string          `json:"text"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"`
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Each Generate call pops the next scripted response; when the script is
// exhausted it echoes the last user message. Every request is recorded.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	script   []scripted
	requests []Request
}

type scripted struct {
	resp Response
	err  error
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
}

// Reply appends a plain text reply to the script.
func (m *ScriptedModel) Reply(text string) *ScriptedModel {
	return m.push(scripted{resp: Response{Text: text, FinishReason: "stop"}})
}

// CallTools appends a reply that requests the given tool calls.
func (m *ScriptedModel) CallTools(text string, calls ...core.ToolCall) *ScriptedModel {
	return m.push(scripted{resp: Response{Text: text, ToolCalls: calls, FinishReason: "tool_calls"}})
}

// Fail appends a failing generation.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	return m.push(scripted{err: err})
}

func (m *ScriptedModel) push(s scripted) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, s)

	return m
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)

	var next scripted
	if len(m.script) > 0 {
		next = m.script[0]
		m.script = m.script[1:]
	} else {
		next = scripted{resp: Response{Text: echo(req), FinishReason: "stop"}}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		if next.err != nil {
			errCh <- next.err
			return
		}

		resp := next.resp
		resp.ID = core.NewID()
		resp.Usage = &TokenUsage{PromptTokens: len(req.Messages), CompletionTokens: len(resp.Text), TotalTokens: len(req.Messages) + len(resp.Text)}
		respCh <- resp
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

func echo(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return fmt.Sprintf("You said: %s", req.Messages[i].Text)
		}
	}

	return "Hello, how can I help you?"
}

// Collect drains a Generate call and returns the final response. Partial
// chunks are concatenated when the provider never sends a final one.
func Collect(respCh <-chan Response, errCh <-chan error) (*Response, error) {
	var (
		final   *Response
		partial Response
	)

	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if r.Partial {
				partial.Text += r.Text
				continue
			}

			rr := r
			final = &rr
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		if partial.Text == "" {
			return nil, fmt.Errorf("model returned no response")
		}

		partial.FinishReason = "stop"
		final = &partial
	}

	return final, nil
}
