package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/voicemesh/artifact"
	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/flow"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/metrics"
	"github.com/hupe1980/voicemesh/room"
	"github.com/hupe1980/voicemesh/voice"
	"github.com/hupe1980/voicemesh/voice/vad"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("session already running")

// Session is one live conversation bound to a room. It implements
// core.Runtime. The state pointer is shared with every tool invocation.
type Session[S any] struct {
	id     string
	room   room.Room
	rooms  room.Service
	state  *S
	opts   Options
	logger logging.Logger

	step    *flow.Step[S]
	router  *flow.Router[S]
	handoff *HandoffController[S]
	gate    *TerminationGate
	usage   *metrics.UsageCollector
	rec     metrics.Recorder
	limiter *core.StepLimiter

	// mu guards the active agent, the speech queue and the pending tool
	// batch. Scheduling and interruption both hold it.
	mu      sync.Mutex
	active  core.Agent[S]
	queue   []*speech[S]
	current *speech[S]
	batch   *toolBatch
	runCtx  context.Context
	started bool

	wake  chan struct{}
	tasks chan func(ctx context.Context)

	transcriptMu sync.Mutex
	transcript   []core.Message
	startedAt    time.Time
}

// toolBatch is a reply's tool calls waiting for dispatch. tail holds the
// replies its tools spoke, recorded after the tool results.
type toolBatch struct {
	tail []core.Message
}

// toolRuntime is the runtime handed to tools. Speech scheduled through it
// may play while the batch is still running, so a tool can wait for it.
type toolRuntime[S any] struct {
	*Session[S]
}

func (rt toolRuntime[S]) GenerateReply(opts core.ReplyOptions) (core.SpeechHandle, error) {
	return rt.reply(speechGenerate, "", opts, flagFromTool)
}

func (rt toolRuntime[S]) Say(text string, opts core.ReplyOptions) (core.SpeechHandle, error) {
	return rt.reply(speechSay, text, opts, flagFromTool)
}

// New creates a session bound to r. rooms deletes the room on termination.
// A nil state is replaced by a fresh zero value.
func New[S any](r room.Room, rooms room.Service, state *S, optFns ...func(o *Options)) (*Session[S], error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if r == nil {
		return nil, errors.New("session: room is required")
	}

	if opts.Model == nil {
		return nil, errors.New("session: model is required")
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if state == nil {
		state = new(S)
	}

	s := &Session[S]{
		id:      core.NewID(),
		room:    r,
		rooms:   rooms,
		state:   state,
		opts:    opts,
		usage:   metrics.NewUsageCollector(),
		limiter: core.NewStepLimiter(opts.MaxSteps),
		runCtx:  context.Background(),
		wake:    make(chan struct{}, 1),
		tasks:   make(chan func(ctx context.Context), 64),
	}

	s.logger = opts.Logger
	if sl, ok := opts.Logger.(*logging.StructuredLogger); ok {
		s.logger = sl.WithComponent("session").WithSession(s.id)
	}

	s.rec = metrics.Multi(s.usage, opts.Recorder)

	s.step = flow.NewStep[S](opts.Model, func(o *flow.StepOptions) {
		o.Logger = s.logger
		o.Tracer = opts.Tracer
		o.MaxHistoryMessages = opts.MaxHistoryMessages
		o.Stream = opts.Stream
		o.OnUsage = s.rec.LLMUsage
	})

	s.router = flow.NewRouter[S](func(o *flow.RouterOptions) {
		o.Logger = s.logger
		o.Tracer = opts.Tracer
		o.Closed = s.closed
	})

	s.handoff = newHandoffController(s)

	s.gate = newTerminationGate(rooms, r.ID(), s, func(o *GateOptions) {
		o.Logger = s.logger
		o.Tracer = opts.Tracer
		o.Timeout = opts.TeardownTimeout
		o.OnEvent = func(typ core.EventType, detail string) { s.emit(typ, s.ActiveAgent(), "", detail) }
	})

	return s, nil
}

// ID implements core.Runtime.
func (s *Session[S]) ID() string { return s.id }

// RoomID implements core.Runtime.
func (s *Session[S]) RoomID() string { return s.room.ID() }

// ActiveAgent implements core.Runtime.
func (s *Session[S]) ActiveAgent() string {
	if a := s.activeAgent(); a != nil {
		return a.Name()
	}

	return ""
}

// State returns the shared conversation state.
func (s *Session[S]) State() *S { return s.state }

// Handoff returns the session's handoff controller.
func (s *Session[S]) Handoff() *HandoffController[S] { return s.handoff }

// Gate returns the session's termination gate.
func (s *Session[S]) Gate() *TerminationGate { return s.gate }

// Usage returns the usage collected so far.
func (s *Session[S]) Usage() metrics.Summary { return s.usage.Summary() }

// Transcript returns the user and spoken assistant turns of all agents.
func (s *Session[S]) Transcript() []core.Message {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	return append([]core.Message(nil), s.transcript...)
}

// Run activates initial and serves the session until it closes. It returns
// nil after a regular termination, a core.ErrTransportLost wrapped error
// when the room disconnected, or the context error.
func (s *Session[S]) Run(ctx context.Context, initial core.Agent[S]) error {
	if initial == nil {
		return errors.New("session: initial agent is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.started = true
	s.runCtx = ctx
	s.mu.Unlock()

	s.startedAt = time.Now()

	ctx, span := s.startSpan(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("room.id", s.room.ID()),
	))
	defer span.End()

	s.logger.Info("session.start", "session_id", s.id, "room_id", s.room.ID(), "agent", initial.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.playoutLoop(gctx) })
	g.Go(func() error { return s.controlLoop(gctx) })
	g.Go(func() error { return s.inputLoop(gctx) })

	s.enqueue(func(ctx context.Context) {
		if err := s.handoff.Activate(ctx, initial); err != nil {
			s.logger.Error("session.activate.failed", "agent", initial.Name(), "error", err.Error())
		}
	})

	var result error

	select {
	case <-s.gate.Done():
	case <-s.room.Done():
		if err := s.room.Err(); err != nil {
			result = transportLost(err)
		}
	case <-gctx.Done():
		result = ctx.Err()
	}

	s.gate.Close()
	s.Interrupt()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && result == nil {
		result = err
	}

	s.finalize(result)

	return result
}

// GenerateReply implements core.Runtime.
func (s *Session[S]) GenerateReply(opts core.ReplyOptions) (core.SpeechHandle, error) {
	return s.reply(speechGenerate, "", opts, 0)
}

// Say implements core.Runtime.
func (s *Session[S]) Say(text string, opts core.ReplyOptions) (core.SpeechHandle, error) {
	return s.reply(speechSay, text, opts, 0)
}

func (s *Session[S]) reply(kind speechKind, text string, opts core.ReplyOptions, flags speechFlag) (core.SpeechHandle, error) {
	a := s.activeAgent()
	if a == nil {
		return nil, errors.New("session: no active agent")
	}

	sp, err := s.schedule(a, kind, text, opts, flags)
	if err != nil {
		return nil, err
	}

	return sp, nil
}

// SubmitUtterance hands a final user utterance to the session as if it was
// recognized from room audio.
func (s *Session[S]) SubmitUtterance(text string) error {
	if s.closed() {
		return core.ErrSessionClosed
	}

	u := voice.Utterance{Text: text, Final: true, At: time.Now()}
	s.enqueue(func(ctx context.Context) { s.handleUtterance(ctx, u) })

	return nil
}

// Interrupt implements core.Runtime. It cancels the playing speech and every
// queued one regardless of their interruptibility.
func (s *Session[S]) Interrupt() {
	s.mu.Lock()

	var cut []*speech[S]
	if s.current != nil && s.current.interrupt() {
		cut = append(cut, s.current)
	}

	queued := s.queue
	s.queue = nil

	for _, q := range queued {
		q.interrupt()
	}
	s.mu.Unlock()

	s.settleQueued(queued)

	if len(cut)+len(queued) > 0 {
		s.logger.Debug("session.interrupt", "playing", len(cut), "queued", len(queued))
		s.clearPlayback()
	}
}

// EndSession implements core.Runtime.
func (s *Session[S]) EndSession(ctx context.Context, farewell string) error {
	return s.gate.Terminate(ctx, farewell)
}

// farewell implements farewellSpeaker.
func (s *Session[S]) farewell(instructions string) (core.SpeechHandle, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil, errors.New("session: not running")
	}

	a := s.activeAgent()
	if a == nil {
		return nil, errors.New("session: no active agent")
	}

	sp, err := s.schedule(a, speechGenerate, "", core.ReplyOptions{Instructions: instructions, AllowInterruptions: core.Bool(false)}, flagTerminal)
	if err != nil {
		return nil, err
	}

	return sp, nil
}

// say schedules text in agent's voice. recorded marks text that is already
// part of the agent's history.
func (s *Session[S]) say(agent core.Agent[S], text string, allow, recorded bool) (core.SpeechHandle, error) {
	var flags speechFlag
	if recorded {
		flags = flagRecorded
	}

	sp, err := s.schedule(agent, speechSay, text, core.ReplyOptions{AllowInterruptions: core.Bool(allow)}, flags)
	if err != nil {
		return nil, err
	}

	return sp, nil
}

func (s *Session[S]) schedule(agent core.Agent[S], kind speechKind, text string, opts core.ReplyOptions, flags speechFlag) (*speech[S], error) {
	allow := agent.AllowInterruptions()
	if opts.AllowInterruptions != nil {
		allow = *opts.AllowInterruptions
	}

	s.mu.Lock()

	switch st := s.gate.State(); {
	case st == StateClosed, st == StateFarewelling && flags&flagTerminal == 0:
		s.mu.Unlock()
		return nil, core.ErrSessionClosed
	}

	sp := newSpeech(s.runCtx, agent, kind, allow, flags)
	sp.instructions = opts.Instructions
	sp.text = text

	cut, queued := s.preemptLocked()
	s.queue = append(s.queue, sp)
	s.mu.Unlock()

	s.wakePlayout()

	s.settleQueued(queued)

	if cut != nil || len(queued) > 0 {
		s.clearPlayback()
	}

	s.emit(core.EventSpeechScheduled, agent.Name(), sp.id, kindName(kind))

	return sp, nil
}

// preemptLocked interrupts the playing speech and drops queued speech when
// they allow interruptions. Non-interruptible speech keeps its place.
func (s *Session[S]) preemptLocked() (*speech[S], []*speech[S]) {
	var cut *speech[S]
	if s.current != nil && s.current.allowInterruptions && s.current.interrupt() {
		cut = s.current
	}

	var dropped []*speech[S]

	keep := s.queue[:0]
	for _, q := range s.queue {
		if q.allowInterruptions {
			q.interrupt()
			dropped = append(dropped, q)

			continue
		}

		keep = append(keep, q)
	}

	s.queue = keep

	return cut, dropped
}

// retire stops the playing and queued speech of an agent that hands off.
// The farewell is spared.
func (s *Session[S]) retire(a core.Agent[S]) {
	s.mu.Lock()

	cut := false
	if s.current != nil && s.current.agent.Name() == a.Name() && !s.current.terminal {
		cut = s.current.interrupt()
	}

	var dropped []*speech[S]

	keep := s.queue[:0]
	for _, q := range s.queue {
		if q.agent.Name() == a.Name() && !q.terminal {
			q.interrupt()
			dropped = append(dropped, q)

			continue
		}

		keep = append(keep, q)
	}

	s.queue = keep
	s.mu.Unlock()

	s.settleQueued(dropped)

	if cut || len(dropped) > 0 {
		s.logger.Debug("session.agent.retired", "agent", a.Name(), "playing", cut, "queued", len(dropped))
		s.clearPlayback()
	}
}

// bargeIn interrupts interruptible speech because the user started talking.
func (s *Session[S]) bargeIn() {
	s.mu.Lock()
	cut, queued := s.preemptLocked()
	s.mu.Unlock()

	s.settleQueued(queued)

	if cut != nil || len(queued) > 0 {
		s.logger.Debug("session.barge_in", "agent", s.ActiveAgent())
		s.clearPlayback()
	}
}

// settleQueued finishes speeches that were removed before playout.
func (s *Session[S]) settleQueued(queued []*speech[S]) {
	for _, q := range queued {
		q.finish(nil)
		s.rec.Speech(metrics.OutcomeInterrupted)
		s.emit(core.EventSpeechInterrupted, q.agent.Name(), q.id, "queued")
	}
}

func (s *Session[S]) clearPlayback() {
	if err := s.room.ClearPlayback(context.Background()); err != nil && !errors.Is(err, room.ErrClosed) {
		s.logger.Warn("session.clear_playback.failed", "error", err.Error())
	}
}

func (s *Session[S]) playoutLoop(ctx context.Context) error {
	for {
		sp := s.next(ctx)
		if sp == nil {
			return nil
		}

		s.play(ctx, sp)

		s.mu.Lock()
		if s.current == sp {
			s.current = nil
		}
		s.mu.Unlock()
	}
}

func (s *Session[S]) next(ctx context.Context) *speech[S] {
	for {
		s.mu.Lock()
		if i := s.playableLocked(); i >= 0 {
			sp := s.queue[i]
			s.queue = slices.Delete(s.queue, i, i+1)
			s.current = sp
			s.mu.Unlock()

			return sp
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

// playableLocked returns the index of the next speech to play, or -1. While
// a tool batch is pending only speech scheduled by its tools and the
// farewell may start.
func (s *Session[S]) playableLocked() int {
	for i, sp := range s.queue {
		if s.batch == nil || sp.fromTool || sp.terminal {
			return i
		}
	}

	return -1
}

func (s *Session[S]) wakePlayout() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// play generates, synthesizes and publishes one speech.
func (s *Session[S]) play(ctx context.Context, sp *speech[S]) {
	agent := sp.agent

	spanCtx, span := s.startSpan(sp.ctx, "session.speech", trace.WithAttributes(
		attribute.String("speech.id", sp.id),
		attribute.String("agent.name", agent.Name()),
		attribute.String("speech.kind", kindName(sp.kind)),
	))
	defer span.End()

	s.emit(core.EventSpeechStarted, agent.Name(), sp.id, "")

	start := time.Now()
	text := sp.Text()

	var calls []core.ToolCall

	if sp.kind == speechGenerate {
		resp, err := s.step.Run(spanCtx, agent, s.state, sp.instructions)
		if err != nil {
			if sp.ctx.Err() != nil {
				s.settleInterrupted(ctx, sp, "", start)
				return
			}

			s.settleFailed(sp, err)

			return
		}

		text = resp.Text
		if !sp.terminal && !sp.fromTool {
			calls = resp.ToolCalls
		} else if len(resp.ToolCalls) > 0 {
			s.logger.Warn("session.tool_calls.dropped", "speech_id", sp.id, "agent", agent.Name(), "count", len(resp.ToolCalls))
		}

		sp.setText(text)
	}

	if err := s.speak(spanCtx, agent, text); err != nil {
		if sp.ctx.Err() != nil {
			s.settleInterrupted(ctx, sp, text, start)
			return
		}

		s.settleFailed(sp, err)

		return
	}

	msg := core.NewAssistantMessage(agent.Name(), text, calls)

	if text != "" {
		s.addTranscript(msg)
		s.publishTranscript(ctx, sp.id, core.RoleAssistant, agent.Name(), text, true)
	}

	switch {
	case len(calls) > 0:
		// No other reply starts until dispatch recorded the call and its
		// results.
		s.mu.Lock()
		s.batch = &toolBatch{}
		s.mu.Unlock()

		s.enqueue(func(ctx context.Context) { s.dispatch(ctx, agent, msg) })
	case text != "" && !sp.recorded:
		s.record(sp, msg)
	}

	sp.finish(nil)
	s.rec.Speech(metrics.OutcomeCompleted)
	s.emit(core.EventSpeechCompleted, agent.Name(), sp.id, "")
	s.logSpeech(sp.id, len(text), time.Since(start), false)
}

func (s *Session[S]) settleInterrupted(ctx context.Context, sp *speech[S], text string, start time.Time) {
	sp.interrupt()

	if text != "" && !sp.recorded {
		msg := core.NewAssistantMessage(sp.agent.Name(), text, nil)
		msg.Interrupted = true

		s.record(sp, msg)
		s.addTranscript(msg)
		s.publishTranscript(ctx, sp.id, core.RoleAssistant, sp.agent.Name(), text, false)
	}

	sp.finish(nil)
	s.rec.Speech(metrics.OutcomeInterrupted)
	s.emit(core.EventSpeechInterrupted, sp.agent.Name(), sp.id, "")
	s.logSpeech(sp.id, len(text), time.Since(start), true)
}

func (s *Session[S]) settleFailed(sp *speech[S], err error) {
	if !errors.Is(err, core.ErrGeneration) {
		err = fmt.Errorf("%w: %v", core.ErrGeneration, err)
	}

	sp.finish(err)
	s.rec.Speech(metrics.OutcomeFailed)
	s.emit(core.EventGenerationFailed, sp.agent.Name(), sp.id, err.Error())
	s.logger.Error("session.speech.failed", "speech_id", sp.id, "agent", sp.agent.Name(), "error", err.Error())
}

// speak synthesizes text in the agent's voice and publishes it to the room.
func (s *Session[S]) speak(ctx context.Context, agent core.Agent[S], text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	synth := agent.Synthesizer()
	if synth == nil {
		synth = s.opts.Synthesizer
	}

	if synth == nil {
		return nil
	}

	stream, err := synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: synthesize: %v", core.ErrGeneration, err)
	}
	defer stream.Close()

	s.rec.TTSCharacters(synth.Name(), len(text))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if err := stream.Err(); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}

					return fmt.Errorf("%w: synthesize: %v", core.ErrGeneration, err)
				}

				return nil
			}

			if err := s.room.Publish(ctx, chunk); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				return fmt.Errorf("publish audio: %w", err)
			}

			if s.opts.RealtimePlayout {
				if err := pace(ctx, s.opts.Format.Duration(len(chunk))); err != nil {
					return err
				}
			}
		}
	}
}

func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session[S]) controlLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-s.tasks:
			task(ctx)
		}
	}
}

func (s *Session[S]) enqueue(task func(ctx context.Context)) {
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	select {
	case s.tasks <- task:
	case <-runCtx.Done():
	}
}

// record appends a finished speech to its agent's history. Replies spoken by
// a running tool are held back until the batch results are recorded.
func (s *Session[S]) record(sp *speech[S], msg core.Message) {
	if sp.fromTool {
		s.mu.Lock()
		if s.batch != nil {
			s.batch.tail = append(s.batch.tail, msg)
			s.mu.Unlock()

			return
		}
		s.mu.Unlock()
	}

	sp.agent.History().Append(msg)
}

// takeBatchTail returns the replies held back by the pending batch. done
// also ends the batch.
func (s *Session[S]) takeBatchTail(done bool) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch == nil {
		return nil
	}

	tail := s.batch.tail
	s.batch.tail = nil

	if done {
		s.batch = nil
	}

	return tail
}

// dispatch records a reply with tool calls, runs the calls and applies the
// resulting directive. Calls of an agent that is no longer active are
// dropped.
func (s *Session[S]) dispatch(ctx context.Context, agent core.Agent[S], msg core.Message) {
	defer func() {
		agent.History().Append(s.takeBatchTail(true)...)
		s.wakePlayout()
	}()

	if s.ActiveAgent() != agent.Name() {
		s.logger.Warn("session.dispatch.stale", "agent", agent.Name(), "active", s.ActiveAgent(), "tool_calls", len(msg.ToolCalls))
		return
	}

	out := s.router.Dispatch(ctx, agent, s.state, toolRuntime[S]{s}, msg.ToolCalls)

	agent.History().Append(msg)

	for _, inv := range out.Invocations {
		agent.History().Append(core.NewToolMessage(agent.Name(), inv.Result))
		s.rec.ToolCall(inv.Call.Name, inv.Err != nil)
		s.emit(core.EventToolInvoked, agent.Name(), "", inv.Call.Name)
	}

	agent.History().Append(s.takeBatchTail(false)...)

	for _, d := range out.Ignored {
		s.emit(core.EventDirectiveIgnored, agent.Name(), "", d.String())
	}

	if out.Directive.Kind == core.DirectiveContinue {
		s.followUp(agent)
		return
	}

	if err := s.handoff.Apply(ctx, agent, out.Directive); err != nil {
		s.logger.Warn("session.directive.failed", "agent", agent.Name(), "directive", out.Directive.String(), "error", err.Error())
	}
}

// followUp lets the model react to tool results, bounded per user turn.
func (s *Session[S]) followUp(agent core.Agent[S]) {
	if s.closed() || s.ActiveAgent() != agent.Name() || s.replyQueued(agent) {
		return
	}

	if err := s.limiter.Increment(); err != nil {
		s.logger.Warn("session.step_limit.reached", "agent", agent.Name(), "error", err.Error())
		return
	}

	if _, err := s.GenerateReply(core.ReplyOptions{}); err != nil {
		s.logger.Warn("session.follow_up.failed", "agent", agent.Name(), "error", err.Error())
	}
}

// replyQueued reports whether a generated reply of agent waits in the queue.
func (s *Session[S]) replyQueued(agent core.Agent[S]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.ContainsFunc(s.queue, func(q *speech[S]) bool {
		return q.kind == speechGenerate && !q.terminal && q.agent.Name() == agent.Name()
	})
}

func (s *Session[S]) handleUtterance(ctx context.Context, u voice.Utterance) {
	if s.closed() {
		s.logger.Debug("session.utterance.dropped", "reason", "closed")
		return
	}

	agent := s.activeAgent()
	if agent == nil {
		s.logger.Debug("session.utterance.dropped", "reason", "no active agent")
		return
	}

	msg := core.NewUserMessage(u.Text)
	agent.History().Append(msg)
	s.addTranscript(msg)
	s.limiter.Reset()

	s.emit(core.EventUserUtterance, agent.Name(), "", u.Text)
	s.publishTranscript(ctx, "", core.RoleUser, "", u.Text, true)

	if _, err := s.GenerateReply(core.ReplyOptions{}); err != nil {
		s.logger.Warn("session.reply.failed", "agent", agent.Name(), "error", err.Error())
	}
}

// inputLoop feeds room audio to barge-in detection and the recognizer.
func (s *Session[S]) inputLoop(ctx context.Context) error {
	audio := s.room.Audio()

	var (
		recAudio   chan []byte
		utterances <-chan voice.Utterance
		seg        *vad.Segmenter
	)

	if s.opts.Recognizer != nil {
		ch := make(chan []byte, 64)

		u, err := s.opts.Recognizer.Recognize(ctx, ch)
		if err != nil {
			s.logger.Error("session.recognizer.failed", "recognizer", s.opts.Recognizer.Name(), "error", err.Error())
		} else {
			defer close(ch)

			recAudio = ch
			utterances = u
		}
	}

	if s.opts.Detector != nil {
		seg = vad.NewSegmenter(s.opts.VAD, s.opts.Detector)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-audio:
			if !ok {
				return nil
			}

			if seg != nil {
				if ev, ok := seg.Push(frame); ok && ev.Type == vad.SpeechStarted {
					s.bargeIn()
				}
			}

			if recAudio != nil {
				select {
				case recAudio <- frame:
				case <-ctx.Done():
					return nil
				}
			}
		case u, ok := <-utterances:
			if !ok {
				utterances = nil
				continue
			}

			if !u.Final || strings.TrimSpace(u.Text) == "" {
				continue
			}

			s.rec.STTAudio(u.Duration)
			s.enqueue(func(ctx context.Context) { s.handleUtterance(ctx, u) })
		}
	}
}

// swap replaces the active agent.
func (s *Session[S]) swap(a core.Agent[S]) {
	s.mu.Lock()
	s.active = a
	s.mu.Unlock()

	s.limiter.Reset()
	s.emit(core.EventAgentActivated, a.Name(), "", a.Description())
	s.logger.Info("session.agent.activated", "agent", a.Name())
}

func (s *Session[S]) activeAgent() core.Agent[S] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

func (s *Session[S]) closed() bool { return s.gate.State() != StateActive }

func (s *Session[S]) addTranscript(m core.Message) {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	s.transcript = append(s.transcript, m)
}

func (s *Session[S]) publishTranscript(ctx context.Context, speechID string, role core.Role, agent, text string, final bool) {
	if !s.opts.Transcription {
		return
	}

	t := room.Transcript{SpeechID: speechID, Role: string(role), Agent: agent, Text: text, Final: final, At: time.Now().UTC()}
	if err := s.room.PublishTranscript(context.WithoutCancel(ctx), t); err != nil && !errors.Is(err, room.ErrClosed) {
		s.logger.Warn("session.transcript.failed", "error", err.Error())
	}
}

func (s *Session[S]) emit(typ core.EventType, agent, speechID, detail string) {
	if s.opts.OnEvent == nil {
		return
	}

	ev := core.NewEvent(s.id, typ, agent, detail)
	ev.SpeechID = speechID
	s.opts.OnEvent(ev)
}

func (s *Session[S]) logSpeech(id string, chars int, d time.Duration, interrupted bool) {
	if sl, ok := s.logger.(*logging.StructuredLogger); ok {
		sl.LogSpeech(id, chars, d, interrupted)
		return
	}

	s.logger.Debug("session.speech.completed", "speech_id", id, "chars", chars, "duration_ms", d.Milliseconds(), "interrupted", interrupted)
}

func (s *Session[S]) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.opts.Tracer.Start(ctx, name, opts...)
}

// finalize logs the usage summary, saves the transcript and emits the
// closing event.
func (s *Session[S]) finalize(result error) {
	summary := s.usage.Summary()
	s.logger.Info("session.usage", append([]any{"session_id", s.id, "duration_ms", time.Since(s.startedAt).Milliseconds()}, summary.KeyValues()...)...)

	if s.opts.Artifacts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		t := artifact.Transcript{
			SessionID: s.id,
			RoomID:    s.room.ID(),
			Agents:    s.handoff.Activated(),
			StartedAt: s.startedAt.UTC(),
			EndedAt:   time.Now().UTC(),
			Messages:  s.Transcript(),
		}

		if err := artifact.SaveTranscript(ctx, s.opts.Artifacts, t); err != nil {
			s.logger.Error("session.transcript.save_failed", "error", err.Error())
		}
	}

	reason := "closed"
	if result != nil {
		reason = result.Error()
	}

	s.emit(core.EventSessionClosed, s.ActiveAgent(), "", reason)
	s.logger.Info("session.closed", "session_id", s.id, "reason", reason)
}

func transportLost(err error) error {
	if errors.Is(err, core.ErrTransportLost) {
		return err
	}

	return fmt.Errorf("%w: %v", core.ErrTransportLost, err)
}

func kindName(k speechKind) string {
	if k == speechSay {
		return "say"
	}

	return "generate"
}
