package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies observable session events.
type EventType string

const (
	EventAgentActivated    EventType = "agent_activated"
	EventUserUtterance     EventType = "user_utterance"
	EventSpeechScheduled   EventType = "speech_scheduled"
	EventSpeechStarted     EventType = "speech_started"
	EventSpeechCompleted   EventType = "speech_completed"
	EventSpeechInterrupted EventType = "speech_interrupted"
	EventGenerationFailed  EventType = "generation_failed"
	EventToolInvoked       EventType = "tool_invoked"
	EventHandoff           EventType = "handoff"
	EventHandoffRejected   EventType = "handoff_rejected"
	EventDirectiveIgnored  EventType = "directive_ignored"
	EventFarewell          EventType = "farewell"
	EventTeardownRequested EventType = "teardown_requested"
	EventTeardownFailed    EventType = "teardown_failed"
	EventSessionClosed     EventType = "session_closed"
)

// Event is an immutable record of something that happened in a session. It is
// delivered to observers in the order it was produced by the emitting
// goroutine. Detail carries a short, human readable payload (tool name, target
// agent, error text, utterance).
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	SpeechID  string    `json:"speech_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with a fresh id and UTC time.
func NewEvent(sessionID string, typ EventType, agent, detail string) Event {
	return Event{
		ID:        NewID(),
		SessionID: sessionID,
		Type:      typ,
		Agent:     agent,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}

// EventHandler observes session events. Handlers run synchronously on session
// goroutines and must not block.
type EventHandler func(Event)

// NewID returns a random identifier.
func NewID() string { return uuid.NewString() }
