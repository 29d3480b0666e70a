package core

import "errors"

var (
	// ErrUnknownTool is reported back to the model when it requests a tool the
	// active agent does not expose. It never ends the session.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrHandoffConflict is returned when a transfer is requested while another
	// one is in flight, by an agent that is no longer active, or to an agent
	// that was already activated in this session.
	ErrHandoffConflict = errors.New("handoff conflict")

	// ErrTeardown wraps failures of the room service while deleting the room.
	ErrTeardown = errors.New("teardown failure")

	// ErrGeneration wraps language model or synthesis failures of one speech.
	ErrGeneration = errors.New("generation failure")

	// ErrInterrupted is returned by SpeechHandle.Wait for cancelled speech.
	ErrInterrupted = errors.New("speech interrupted")

	// ErrSessionClosed is returned for work submitted to a closed (or closing)
	// session.
	ErrSessionClosed = errors.New("session closed")

	// ErrTransportLost is returned by a session whose room disconnected before
	// it closed normally.
	ErrTransportLost = errors.New("transport lost")
)
