package session

import (
	"context"
	"sync"

	"github.com/hupe1980/voicemesh/core"
)

// speechKind selects how a speech obtains its text.
type speechKind int

const (
	speechGenerate speechKind = iota
	speechSay
)

// speechFlag marks how a speech was scheduled.
type speechFlag uint8

const (
	// flagTerminal is the farewell; it may play while farewelling and
	// never dispatches tool calls.
	flagTerminal speechFlag = 1 << iota
	// flagRecorded speech already has its history entry (announcements).
	flagRecorded
	// flagFromTool speech was scheduled by a running tool and may play
	// before the tool batch finished.
	flagFromTool
)

// speech is one scheduled utterance of an agent. It implements
// core.SpeechHandle.
type speech[S any] struct {
	id                 string
	kind               speechKind
	agent              core.Agent[S]
	instructions       string
	allowInterruptions bool
	terminal           bool
	recorded           bool
	fromTool           bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	text        string
	err         error
	interrupted bool
	finished    bool
}

func newSpeech[S any](parent context.Context, agent core.Agent[S], kind speechKind, allow bool, flags speechFlag) *speech[S] {
	ctx, cancel := context.WithCancel(parent)

	return &speech[S]{
		id:                 core.NewID(),
		kind:               kind,
		agent:              agent,
		allowInterruptions: allow,
		terminal:           flags&flagTerminal != 0,
		recorded:           flags&flagRecorded != 0,
		fromTool:           flags&flagFromTool != 0,
		ctx:                ctx,
		cancel:             cancel,
		done:               make(chan struct{}),
	}
}

func (sp *speech[S]) ID() string { return sp.id }

func (sp *speech[S]) Text() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.text
}

func (sp *speech[S]) AllowInterruptions() bool { return sp.allowInterruptions }

func (sp *speech[S]) Done() <-chan struct{} { return sp.done }

func (sp *speech[S]) Wait(ctx context.Context) error {
	select {
	case <-sp.done:
		sp.mu.Lock()
		defer sp.mu.Unlock()

		return sp.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sp *speech[S]) Interrupted() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.interrupted
}

func (sp *speech[S]) setText(text string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.text = text
}

// interrupt cancels the speech. It reports false when the speech already
// finished.
func (sp *speech[S]) interrupt() bool {
	sp.mu.Lock()
	if sp.finished {
		sp.mu.Unlock()
		return false
	}
	sp.interrupted = true
	sp.mu.Unlock()

	sp.cancel()

	return true
}

// finish settles the speech once. Interrupted speeches always settle with
// core.ErrInterrupted.
func (sp *speech[S]) finish(err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.finished {
		return
	}

	sp.finished = true
	if sp.interrupted {
		err = core.ErrInterrupted
	}

	sp.err = err
	sp.cancel()
	close(sp.done)
}
