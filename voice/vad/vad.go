// Package vad provides energy based voice activity detection and an
// utterance segmenter built on it.
//
// The detector is loaded once per worker process with Prewarm and then shared
// read-only by every session of that process.
package vad

import (
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/voicemesh/voice"
)

// Config tunes detection and segmentation.
type Config struct {
	// Threshold is the RMS energy (0..1) at or above which a frame is speech.
	Threshold float64 `yaml:"threshold"`
	// MinSpeechMs is the amount of consecutive speech that opens a segment.
	MinSpeechMs int `yaml:"min_speech_ms"`
	// SilenceMs is the amount of trailing silence that closes a segment.
	SilenceMs int `yaml:"silence_ms"`
	// MaxSegmentMs force-closes very long segments.
	MaxSegmentMs int `yaml:"max_segment_ms"`
	// PrefixPaddingMs of audio before the detected onset is kept.
	PrefixPaddingMs int `yaml:"prefix_padding_ms"`
	// SampleRate of the incoming PCM16 mono stream.
	SampleRate int `yaml:"sample_rate"`
}

// DefaultConfig returns settings suitable for conversational speech.
func DefaultConfig() Config {
	return Config{
		Threshold:       0.02,
		MinSpeechMs:     100,
		SilenceMs:       550,
		MaxSegmentMs:    30000,
		PrefixPaddingMs: 300,
		SampleRate:      voice.DefaultFormat.SampleRate,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("vad threshold must be in (0,1), got %v", c.Threshold)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad sample rate must be positive, got %d", c.SampleRate)
	}
	if c.SilenceMs <= 0 {
		return fmt.Errorf("vad silence_ms must be positive, got %d", c.SilenceMs)
	}
	return nil
}

// Format returns the PCM format the detector expects.
func (c Config) Format() voice.Format {
	return voice.Format{SampleRate: c.SampleRate, Channels: 1}
}

// RMSEnergy computes the root-mean-square energy of 16-bit signed
// little-endian PCM, normalized to 0..1.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// Energy is a stateless threshold detector. It implements voice.ActivityDetector.
type Energy struct {
	cfg Config
}

// NewEnergy creates a detector from cfg.
func NewEnergy(cfg Config) (*Energy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Energy{cfg: cfg}, nil
}

// IsSpeech reports whether frame carries speech.
func (e *Energy) IsSpeech(frame []byte) bool {
	return RMSEnergy(frame) >= e.cfg.Threshold
}

// Config returns the detector settings.
func (e *Energy) Config() Config { return e.cfg }

var (
	prewarmOnce sync.Once
	prewarmed   *Energy
	prewarmErr  error
)

// Prewarm loads the process-wide detector exactly once. Later calls return the
// first result regardless of cfg.
func Prewarm(cfg Config) (*Energy, error) {
	prewarmOnce.Do(func() {
		prewarmed, prewarmErr = NewEnergy(cfg)
	})
	return prewarmed, prewarmErr
}

// Shared returns the prewarmed detector, if Prewarm succeeded.
func Shared() (*Energy, bool) {
	return prewarmed, prewarmed != nil && prewarmErr == nil
}
