// Package room defines the transport a voice session is bound to: an audio
// room with one remote participant, and the service able to delete rooms.
package room

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when publishing into a closed room.
var ErrClosed = errors.New("room closed")

// ErrNotFound is returned by Service.DeleteRoom for unknown rooms.
var ErrNotFound = errors.New("room not found")

// Transcript is a piece of text published alongside audio.
type Transcript struct {
	SpeechID string    `json:"speech_id,omitempty"`
	Role     string    `json:"role"`
	Agent    string    `json:"agent,omitempty"`
	Text     string    `json:"text"`
	Final    bool      `json:"final"`
	At       time.Time `json:"at"`
}

// Room is a live audio room. Audio is closed when the remote participant
// leaves or the room is deleted. Err explains why Done was closed: nil after
// a regular deletion, a core.ErrTransportLost wrapped error otherwise.
type Room interface {
	ID() string
	Audio() <-chan []byte
	Publish(ctx context.Context, frame []byte) error
	ClearPlayback(ctx context.Context) error
	PublishTranscript(ctx context.Context, t Transcript) error
	Done() <-chan struct{}
	Err() error
}

// Service manages rooms.
type Service interface {
	DeleteRoom(ctx context.Context, roomID string) error
}
