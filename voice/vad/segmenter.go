package vad

import (
	"github.com/hupe1980/voicemesh/voice"
)

// SegmentEventType distinguishes segmenter transitions.
type SegmentEventType int

const (
	// SpeechStarted fires once enough consecutive speech was observed.
	SpeechStarted SegmentEventType = iota + 1
	// SpeechEnded fires after trailing silence; Audio holds the segment.
	SpeechEnded
)

// SegmentEvent is produced by Segmenter.Push.
type SegmentEvent struct {
	Type  SegmentEventType
	Audio []byte
}

// Segmenter groups frames into speech segments. It is not safe for
// concurrent use; each session owns one.
type Segmenter struct {
	cfg      Config
	format   voice.Format
	detector voice.ActivityDetector

	prefix   []byte
	segment  []byte
	inSpeech bool
	speechMs int
	silentMs int
}

// NewSegmenter creates a segmenter using detector for frame classification.
func NewSegmenter(cfg Config, detector voice.ActivityDetector) *Segmenter {
	return &Segmenter{cfg: cfg, format: cfg.Format(), detector: detector}
}

// Push feeds one frame. It returns at most one transition.
func (s *Segmenter) Push(frame []byte) (SegmentEvent, bool) {
	ms := s.format.DurationMs(len(frame))
	speech := s.detector.IsSpeech(frame)

	if !s.inSpeech {
		s.prefix = append(s.prefix, frame...)
		if max := s.format.BytesForDurationMs(s.cfg.PrefixPaddingMs + s.cfg.MinSpeechMs); len(s.prefix) > max {
			s.prefix = s.prefix[len(s.prefix)-max:]
		}

		if !speech {
			s.speechMs = 0
			return SegmentEvent{}, false
		}

		s.speechMs += ms
		if s.speechMs < s.cfg.MinSpeechMs {
			return SegmentEvent{}, false
		}

		s.inSpeech = true
		s.silentMs = 0
		s.segment = append(s.segment[:0], s.prefix...)
		s.prefix = s.prefix[:0]

		return SegmentEvent{Type: SpeechStarted}, true
	}

	s.segment = append(s.segment, frame...)
	if speech {
		s.silentMs = 0
	} else {
		s.silentMs += ms
	}

	tooLong := s.cfg.MaxSegmentMs > 0 && s.format.DurationMs(len(s.segment)) >= s.cfg.MaxSegmentMs
	if s.silentMs < s.cfg.SilenceMs && !tooLong {
		return SegmentEvent{}, false
	}

	return SegmentEvent{Type: SpeechEnded, Audio: s.flush()}, true
}

// Flush closes an open segment, e.g. when the audio stream ended.
func (s *Segmenter) Flush() (SegmentEvent, bool) {
	if !s.inSpeech {
		return SegmentEvent{}, false
	}
	return SegmentEvent{Type: SpeechEnded, Audio: s.flush()}, true
}

// InSpeech reports whether a segment is open.
func (s *Segmenter) InSpeech() bool { return s.inSpeech }

func (s *Segmenter) flush() []byte {
	out := make([]byte, len(s.segment))
	copy(out, s.segment)

	s.segment = s.segment[:0]
	s.inSpeech = false
	s.speechMs = 0
	s.silentMs = 0

	return out
}
