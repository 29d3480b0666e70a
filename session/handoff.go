package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
)

// HandoffController applies directives to a session: it activates agents,
// performs transfers and delegates terminations to the TerminationGate.
// At most one handoff is in flight, and every agent is activated at most once.
type HandoffController[S any] struct {
	sess     *Session[S]
	inFlight atomic.Bool

	mu        sync.Mutex
	activated map[string]bool
	order     []string
}

func newHandoffController[S any](s *Session[S]) *HandoffController[S] {
	return &HandoffController[S]{sess: s, activated: make(map[string]bool)}
}

// Activated returns the names of the agents activated so far, in order.
func (h *HandoffController[S]) Activated() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.order...)
}

// Activate makes a the first active agent and runs its OnEnter hook.
func (h *HandoffController[S]) Activate(ctx context.Context, a core.Agent[S]) error {
	if a == nil {
		return fmt.Errorf("%w: no agent", core.ErrHandoffConflict)
	}

	if h.sess.closed() {
		return core.ErrSessionClosed
	}

	if !h.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: another handoff is in flight", core.ErrHandoffConflict)
	}
	defer h.inFlight.Store(false)

	if !h.markActivated(a.Name()) {
		return fmt.Errorf("%w: agent %s was already active", core.ErrHandoffConflict, a.Name())
	}

	h.sess.swap(a)

	if err := a.OnEnter(ctx, h.sess); err != nil {
		h.sess.logger.Warn("session.agent.enter_failed", "agent", a.Name(), "error", err.Error())
	}

	return nil
}

// Apply executes d on behalf of issuer. Directives of an agent that is no
// longer active are rejected with core.ErrHandoffConflict.
func (h *HandoffController[S]) Apply(ctx context.Context, issuer core.Agent[S], d core.Directive[S]) error {
	if d.Kind == core.DirectiveContinue {
		return nil
	}

	if err := h.checkActive(issuer); err != nil {
		h.reject(issuer, d, err)
		return err
	}

	switch d.Kind {
	case core.DirectiveTerminate:
		return h.sess.EndSession(ctx, d.FarewellInstructions())
	case core.DirectiveTransfer:
		err := h.transfer(ctx, issuer, d)
		if err != nil {
			h.reject(issuer, d, err)
		}

		return err
	default:
		return fmt.Errorf("unknown directive kind %d", d.Kind)
	}
}

func (h *HandoffController[S]) transfer(ctx context.Context, issuer core.Agent[S], d core.Directive[S]) error {
	if d.Target == nil {
		return fmt.Errorf("%w: transfer without target", core.ErrHandoffConflict)
	}

	if h.sess.closed() {
		return core.ErrSessionClosed
	}

	if !h.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: another handoff is in flight", core.ErrHandoffConflict)
	}
	defer h.inFlight.Store(false)

	from := issuer.Name()
	to := d.Target.Name()

	if err := h.checkActive(issuer); err != nil {
		return err
	}

	if !h.markActivated(to) {
		return fmt.Errorf("%w: agent %s was already active", core.ErrHandoffConflict, to)
	}

	ctx, span := h.sess.startSpan(ctx, "session.handoff", trace.WithAttributes(
		attribute.String("from.agent", from),
		attribute.String("to.agent", to),
		attribute.Bool("transfer_history", d.TransferHistory),
	))
	defer span.End()

	h.sess.retire(issuer)

	target := d.Target
	if d.TransferHistory {
		target.History().Replace(issuer.History().Messages())
	} else {
		target.History().Replace(nil)
	}

	if d.Announcement != "" {
		target.History().Append(core.NewAssistantMessage(to, d.Announcement, nil))
	}

	if err := issuer.OnExit(ctx, h.sess); err != nil {
		h.sess.logger.Warn("session.agent.exit_failed", "agent", from, "error", err.Error())
	}

	h.sess.swap(target)

	if d.Announcement != "" {
		if _, err := h.sess.say(target, d.Announcement, false, true); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "announcement")
			h.sess.logger.Warn("session.handoff.announcement_failed", "agent", to, "error", err.Error())
		}
	}

	if err := target.OnEnter(ctx, h.sess); err != nil {
		h.sess.logger.Warn("session.agent.enter_failed", "agent", to, "error", err.Error())
	}

	h.sess.rec.Handoff(from, to, true)
	h.sess.emit(core.EventHandoff, to, "", fmt.Sprintf("%s -> %s", from, to))
	logHandoff(h.sess.logger, from, to, d.TransferHistory, nil)

	return nil
}

func (h *HandoffController[S]) checkActive(issuer core.Agent[S]) error {
	if issuer == nil {
		return fmt.Errorf("%w: no issuing agent", core.ErrHandoffConflict)
	}

	if active := h.sess.activeAgent(); active == nil || active.Name() != issuer.Name() {
		return fmt.Errorf("%w: %s is no longer the active agent", core.ErrHandoffConflict, issuer.Name())
	}

	return nil
}

func (h *HandoffController[S]) reject(issuer core.Agent[S], d core.Directive[S], err error) {
	from := ""
	if issuer != nil {
		from = issuer.Name()
	}

	to := ""
	if d.Target != nil {
		to = d.Target.Name()
	}

	h.sess.rec.Handoff(from, to, false)
	h.sess.emit(core.EventHandoffRejected, from, "", err.Error())
	logHandoff(h.sess.logger, from, to, d.TransferHistory, err)
}

func (h *HandoffController[S]) markActivated(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.activated[name] {
		return false
	}

	h.activated[name] = true
	h.order = append(h.order, name)

	return true
}

func logHandoff(l logging.Logger, from, to string, transferHistory bool, err error) {
	if sl, ok := l.(*logging.StructuredLogger); ok {
		sl.LogHandoff(from, to, transferHistory, err)
		return
	}

	if err != nil {
		l.Warn("handoff.rejected", "from", from, "to", to, "error", err.Error())
		return
	}

	l.Info("handoff.applied", "from", from, "to", to, "transfer_history", transferHistory)
}
