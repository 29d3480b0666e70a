package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/tool"
)

// RouterOptions configure a Router.
type RouterOptions struct {
	Logger logging.Logger
	Tracer trace.Tracer
	// Closed reports whether the owning session stopped accepting work.
	Closed func() bool
	// OnInvoke observes every finished invocation.
	OnInvoke func(inv Invocation)
}

// Invocation is the record of one routed tool call.
type Invocation struct {
	Call     core.ToolCall
	Result   core.ToolResult
	Err      error
	Duration time.Duration
}

// Outcome is the result of dispatching one model turn's tool calls.
type Outcome[S any] struct {
	Invocations []Invocation
	// Directive is the first directive of the batch; Continue when none.
	Directive core.Directive[S]
	// Ignored holds directives recorded after the first one.
	Ignored []core.Directive[S]
}

// Results returns the tool results in call order.
func (o Outcome[S]) Results() []core.ToolResult {
	out := make([]core.ToolResult, 0, len(o.Invocations))
	for _, inv := range o.Invocations {
		out = append(out, inv.Result)
	}

	return out
}

// Router dispatches tool calls to the capabilities of the issuing agent.
type Router[S any] struct {
	opts RouterOptions
}

// NewRouter creates a Router.
func NewRouter[S any](optFns ...func(o *RouterOptions)) *Router[S] {
	opts := RouterOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Router[S]{opts: opts}
}

// Dispatch runs calls sequentially in issuance order. Every call yields
// exactly one result; failures never abort the batch. Only the first
// directive is kept; later ones are logged and reported to the model.
func (r *Router[S]) Dispatch(ctx context.Context, agent core.Agent[S], state *S, rt core.Runtime, calls []core.ToolCall) Outcome[S] {
	out := Outcome[S]{Directive: core.Continue[S]()}
	if len(calls) == 0 {
		return out
	}

	ctx, span := r.startSpan(ctx, "flow.dispatch", trace.WithAttributes(
		attribute.String("agent.name", agent.Name()),
		attribute.Int("tool_calls", len(calls)),
	))
	defer span.End()

	hasDirective := false
	batchStart := time.Now()

	for _, call := range calls {
		inv, d, ok := r.invoke(ctx, agent, state, rt, call)

		if ok {
			if !hasDirective {
				out.Directive = d
				hasDirective = true
			} else {
				out.Ignored = append(out.Ignored, d)
				r.opts.Logger.Warn("flow.directive.ignored",
					"agent", agent.Name(),
					"tool", call.Name,
					"kept", out.Directive.String(),
					"ignored", d.String(),
				)
				inv.Result.Output = map[string]any{
					"output": inv.Result.Content(),
					"note":   fmt.Sprintf("ignored %s: %s was already requested in this turn", d.String(), out.Directive.String()),
				}
			}
		}

		out.Invocations = append(out.Invocations, inv)

		if r.opts.OnInvoke != nil {
			r.opts.OnInvoke(inv)
		}
	}

	r.opts.Logger.Debug("flow.dispatch.complete",
		"agent", agent.Name(),
		"count", len(calls),
		"directive", out.Directive.String(),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	span.SetAttributes(attribute.String("directive", out.Directive.String()))

	return out
}

func (r *Router[S]) invoke(ctx context.Context, agent core.Agent[S], state *S, rt core.Runtime, call core.ToolCall) (Invocation, core.Directive[S], bool) {
	inv := Invocation{Call: call}
	start := time.Now()

	ctx, span := r.startSpan(ctx, "flow.tool.call", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	finish := func(output any, err error) Invocation {
		inv.Duration = time.Since(start)
		inv.Err = err
		inv.Result = core.ToolResult{CallID: call.ID, Name: call.Name, Output: output}

		if err != nil {
			inv.Result.Output = nil
			inv.Result.Error = err.Error()

			span.RecordError(err)
			span.SetStatus(codes.Error, "tool call failed")
		} else {
			span.SetStatus(codes.Ok, "tool call processed")
		}

		r.logCall(agent.Name(), call, inv.Duration, err)

		return inv
	}

	if r.opts.Closed != nil && r.opts.Closed() {
		return finish(nil, tool.WrapToolError(call.Name, tool.CodeClosed, core.ErrSessionClosed)), core.Directive[S]{}, false
	}

	impl, ok := agent.Tool(call.Name)
	if !ok {
		return finish(nil, tool.WrapToolError(call.Name, tool.CodeUnknownTool, fmt.Errorf("%w: %s", core.ErrUnknownTool, call.Name))), core.Directive[S]{}, false
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return finish(nil, tool.WrapToolError(call.Name, tool.CodeBadArgs, err)), core.Directive[S]{}, false
	}

	tc := core.NewToolContext(ctx, state, rt, agent.Name(), call.ID, r.opts.Logger)

	r.opts.Logger.Debug("tool.call.start", "agent", agent.Name(), "tool", call.Name, "fc_id", call.ID)

	var result any

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = tool.WrapToolError(call.Name, tool.CodePanic, fmt.Errorf("panic: %v", rec))

				if sl, ok := r.opts.Logger.(*logging.StructuredLogger); ok {
					sl.ErrorWithStack(err, "tool.call.panic", "agent", agent.Name(), "tool", call.Name)
					return
				}

				r.opts.Logger.Error("tool.call.panic", "agent", agent.Name(), "tool", call.Name, "recover", rec, "stack", string(debug.Stack()))
			}
		}()

		result, err = impl.Call(tc, args)
	}()

	if err != nil {
		return finish(nil, err), core.Directive[S]{}, false
	}

	// A directive may also be returned as the tool's result.
	switch d := result.(type) {
	case core.Directive[S]:
		result = map[string]any{"directive": d.String()}
		tc.RequestDirective(d)
	case *core.Directive[S]:
		if d != nil {
			result = map[string]any{"directive": d.String()}
			tc.RequestDirective(*d)
		}
	}

	d, has := tc.Directive()

	return finish(result, nil), d, has && d.Kind != core.DirectiveContinue
}

func (r *Router[S]) logCall(agent string, call core.ToolCall, d time.Duration, err error) {
	if sl, ok := r.opts.Logger.(*logging.StructuredLogger); ok {
		sl.WithAgent(agent).WithContext("fc_id", call.ID).LogToolCall(call.Name, d, err == nil, err)
		return
	}

	if err != nil {
		r.opts.Logger.Warn("tool.call.error", "agent", agent, "tool", call.Name, "fc_id", call.ID, "error", err.Error())
		return
	}

	r.opts.Logger.Info("tool.call.completed", "agent", agent, "tool", call.Name, "fc_id", call.ID, "duration_ms", d.Milliseconds())
}

func (r *Router[S]) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if r.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return r.opts.Tracer.Start(ctx, name, opts...)
}

func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}
