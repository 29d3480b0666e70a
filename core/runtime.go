package core

import "context"

// ReplyOptions tunes one scheduled speech.
type ReplyOptions struct {
	// Instructions are appended to the agent's instructions for this reply only.
	Instructions string
	// AllowInterruptions overrides the agent's default when non-nil.
	AllowInterruptions *bool
}

// Bool returns a pointer to b, for ReplyOptions.AllowInterruptions.
func Bool(b bool) *bool { return &b }

// SpeechHandle tracks one scheduled speech from generation to playout.
type SpeechHandle interface {
	ID() string
	// Text returns the text that was generated; empty until generation ended.
	Text() string
	AllowInterruptions() bool
	// Done is closed once playout completed, was interrupted or failed.
	Done() <-chan struct{}
	// Wait blocks until Done or ctx ends. It returns nil after full playout,
	// ErrInterrupted for cancelled speech and an ErrGeneration wrapped error
	// when the model or synthesizer failed.
	Wait(ctx context.Context) error
	Interrupted() bool
}

// Runtime is the session surface available to agents and tools.
type Runtime interface {
	// ID identifies the session.
	ID() string
	// RoomID identifies the transport room the session is bound to.
	RoomID() string
	// ActiveAgent returns the name of the currently active agent.
	ActiveAgent() string
	// GenerateReply schedules a model generated reply by the active agent.
	GenerateReply(opts ReplyOptions) (SpeechHandle, error)
	// Say schedules fixed text spoken by the active agent.
	Say(text string, opts ReplyOptions) (SpeechHandle, error)
	// Interrupt cancels in-flight and queued speech. It is a no-op when idle.
	Interrupt()
	// EndSession says farewell and tears the session down. It blocks until the
	// session is closed.
	EndSession(ctx context.Context, farewell string) error
}
