// Package voice defines the speech collaborators of a session: recognizers
// (speech-to-text), synthesizers (text-to-speech) and voice activity
// detectors. Audio is 16-bit signed little-endian mono PCM throughout.
package voice

import (
	"context"
	"time"
)

// Format describes the PCM stream exchanged with a room.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 24 kHz mono, the native rate of the shipped synthesizer.
var DefaultFormat = Format{SampleRate: 24000, Channels: 1}

// BytesForDurationMs returns the PCM16 byte count of d milliseconds.
func (f Format) BytesForDurationMs(ms int) int {
	return f.SampleRate * f.channels() * 2 * ms / 1000
}

// DurationMs returns the duration of n PCM16 bytes in milliseconds.
func (f Format) DurationMs(n int) int {
	bps := f.SampleRate * f.channels() * 2
	if bps == 0 {
		return 0
	}
	return n * 1000 / bps
}

// Duration returns the duration of n PCM16 bytes.
func (f Format) Duration(n int) time.Duration {
	return time.Duration(f.DurationMs(n)) * time.Millisecond
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// Utterance is a recognized piece of user speech. Only final utterances are
// committed to the conversation.
type Utterance struct {
	Text     string
	Final    bool
	Duration time.Duration
	At       time.Time
}

// Recognizer turns an audio stream into utterances. The returned channel is
// closed when audio ends or ctx is cancelled.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, audio <-chan []byte) (<-chan Utterance, error)
}

// Synthesizer turns text into an audio stream.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Stream, error)
}

// ActivityDetector classifies a single audio frame as speech or silence.
// Implementations must be safe for concurrent use.
type ActivityDetector interface {
	IsSpeech(frame []byte) bool
}
