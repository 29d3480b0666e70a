// Package flow turns an agent's turn into model requests and routes the tool
// calls the model produces back into the agent's capabilities.
//
// A Step renders the active agent's instructions from the shared state,
// snapshots its history, exposes its tools and collects one model response.
// A Router executes the resulting tool calls sequentially and extracts the
// first control-flow directive of the batch.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/model"
)

// StepOptions configure a Step.
type StepOptions struct {
	Logger logging.Logger
	Tracer trace.Tracer
	// Stream asks the provider for incremental chunks.
	Stream bool
	// MaxHistoryMessages bounds the history sent to the model; 0 sends all.
	MaxHistoryMessages int
	// OnUsage receives the token usage of every successful generation.
	OnUsage func(info model.Info, usage model.TokenUsage)
}

// Step produces one model reply for an agent.
type Step[S any] struct {
	model model.Model
	opts  StepOptions
}

// NewStep creates a Step bound to m.
func NewStep[S any](m model.Model, optFns ...func(o *StepOptions)) *Step[S] {
	opts := StepOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Step[S]{model: m, opts: opts}
}

// Model returns the model the step generates with.
func (s *Step[S]) Model() model.Model { return s.model }

// Request assembles the model request for agent. extra holds per-turn
// instructions appended after the agent's own.
func (s *Step[S]) Request(agent core.Agent[S], state *S, extra string) (model.Request, error) {
	instructions, err := agent.Instructions(state)
	if err != nil {
		return model.Request{}, fmt.Errorf("resolve instructions for %s: %w", agent.Name(), err)
	}

	if extra = strings.TrimSpace(extra); extra != "" {
		if instructions != "" {
			instructions += "\n\n"
		}

		instructions += extra
	}

	msgs := agent.History().Messages()
	if limit := s.opts.MaxHistoryMessages; limit > 0 && len(msgs) > limit {
		msgs = trimHistory(msgs, limit)
	}

	req := model.Request{
		Instructions: instructions,
		Messages:     msgs,
		Stream:       s.opts.Stream,
	}

	for _, t := range agent.Tools() {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return req, nil
}

// Run generates one reply. Failures are wrapped with core.ErrGeneration,
// except for context cancellation which is returned as is.
func (s *Step[S]) Run(ctx context.Context, agent core.Agent[S], state *S, extra string) (*model.Response, error) {
	ctx, span := s.startSpan(ctx, "flow.step", trace.WithAttributes(
		attribute.String("agent.name", agent.Name()),
		attribute.String("model.name", s.model.Info().Name),
	))
	defer span.End()

	req, err := s.Request(agent, state, extra)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")

		return nil, fmt.Errorf("%w: %v", core.ErrGeneration, err)
	}

	start := time.Now()

	resp, err := model.Collect(s.model.Generate(ctx, req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		s.logCall(agent.Name(), 0, time.Since(start), err)

		return nil, fmt.Errorf("%w: %v", core.ErrGeneration, err)
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
		if s.opts.OnUsage != nil {
			s.opts.OnUsage(s.model.Info(), *resp.Usage)
		}
	}

	s.logCall(agent.Name(), tokens, time.Since(start), nil)
	s.opts.Logger.Debug("flow.step.completed", "agent", agent.Name(), "tool_calls", len(resp.ToolCalls))
	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)))

	return resp, nil
}

func (s *Step[S]) logCall(agent string, tokens int, d time.Duration, err error) {
	name := s.model.Info().Name

	if sl, ok := s.opts.Logger.(*logging.StructuredLogger); ok {
		sl.WithAgent(agent).LogLLMCall(name, tokens, d, err == nil, err)
		return
	}

	if err != nil {
		s.opts.Logger.Error("flow.step.error", "agent", agent, "model", name, "duration_ms", d.Milliseconds(), "error", err.Error())
		return
	}

	s.opts.Logger.Debug("llm.call.completed", "agent", agent, "model", name, "tokens", tokens, "duration_ms", d.Milliseconds())
}

func (s *Step[S]) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.opts.Tracer.Start(ctx, name, opts...)
}

// trimHistory keeps the last limit messages without starting on an orphaned
// tool result, which providers reject.
func trimHistory(msgs []core.Message, limit int) []core.Message {
	msgs = msgs[len(msgs)-limit:]
	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}

	return msgs
}
