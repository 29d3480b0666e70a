// Package metrics collects per-session usage and exports process-wide
// Prometheus counters for voice sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/hupe1980/voicemesh/model"
)

// Recorder receives usage observations from a session.
type Recorder interface {
	LLMUsage(info model.Info, usage model.TokenUsage)
	TTSCharacters(voice string, n int)
	STTAudio(d time.Duration)
	Speech(outcome string)
	ToolCall(tool string, failed bool)
	Handoff(from, to string, ok bool)
}

// Speech outcomes passed to Recorder.Speech.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// Summary is a snapshot of one session's usage.
type Summary struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TTSCharacters    int           `json:"tts_characters"`
	STTAudio         time.Duration `json:"stt_audio"`
	Speeches         int           `json:"speeches"`
	Interruptions    int           `json:"interruptions"`
	FailedSpeeches   int           `json:"failed_speeches"`
	ToolCalls        int           `json:"tool_calls"`
	ToolErrors       int           `json:"tool_errors"`
	Handoffs         int           `json:"handoffs"`
}

// KeyValues renders the summary as logger key/value pairs.
func (s Summary) KeyValues() []any {
	return []any{
		"prompt_tokens", s.PromptTokens,
		"completion_tokens", s.CompletionTokens,
		"tts_characters", s.TTSCharacters,
		"stt_audio_seconds", s.STTAudio.Seconds(),
		"speeches", s.Speeches,
		"interruptions", s.Interruptions,
		"failed_speeches", s.FailedSpeeches,
		"tool_calls", s.ToolCalls,
		"tool_errors", s.ToolErrors,
		"handoffs", s.Handoffs,
	}
}

// UsageCollector accumulates the usage of one session.
type UsageCollector struct {
	mu sync.Mutex
	s  Summary
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector { return &UsageCollector{} }

// LLMUsage implements Recorder.
func (c *UsageCollector) LLMUsage(_ model.Info, u model.TokenUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.PromptTokens += u.PromptTokens
	c.s.CompletionTokens += u.CompletionTokens
}

// TTSCharacters implements Recorder.
func (c *UsageCollector) TTSCharacters(_ string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.TTSCharacters += n
}

// STTAudio implements Recorder.
func (c *UsageCollector) STTAudio(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.STTAudio += d
}

// Speech implements Recorder.
func (c *UsageCollector) Speech(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.Speeches++

	switch outcome {
	case OutcomeInterrupted:
		c.s.Interruptions++
	case OutcomeFailed:
		c.s.FailedSpeeches++
	}
}

// ToolCall implements Recorder.
func (c *UsageCollector) ToolCall(_ string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.ToolCalls++
	if failed {
		c.s.ToolErrors++
	}
}

// Handoff implements Recorder. Only applied handoffs are counted.
func (c *UsageCollector) Handoff(_, _ string, ok bool) {
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.Handoffs++
}

// Summary returns the current totals.
func (c *UsageCollector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.s
}

// Multi fans observations out to several recorders. Nil entries are skipped.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}

	return out
}

type multi []Recorder

func (m multi) LLMUsage(info model.Info, u model.TokenUsage) {
	for _, r := range m {
		r.LLMUsage(info, u)
	}
}

func (m multi) TTSCharacters(voice string, n int) {
	for _, r := range m {
		r.TTSCharacters(voice, n)
	}
}

func (m multi) STTAudio(d time.Duration) {
	for _, r := range m {
		r.STTAudio(d)
	}
}

func (m multi) Speech(outcome string) {
	for _, r := range m {
		r.Speech(outcome)
	}
}

func (m multi) ToolCall(tool string, failed bool) {
	for _, r := range m {
		r.ToolCall(tool, failed)
	}
}

func (m multi) Handoff(from, to string, ok bool) {
	for _, r := range m {
		r.Handoff(from, to, ok)
	}
}
