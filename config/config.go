// Package config loads the process-wide configuration of a voicemesh worker.
//
// Values are applied in this order, later sources winning:
//
//  1. built-in defaults (DefaultConfig)
//  2. .env.local and .env in the working directory (existing variables win)
//  3. the YAML file passed to Load
//  4. VOICEMESH_* environment variables, e.g. VOICEMESH_LLM_MODEL or
//     VOICEMESH_WORKER_MAX_SESSIONS
//
// Provider credentials (OPENAI_API_KEY, ANTHROPIC_API_KEY) are not part of
// the configuration; the SDK clients read them from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/voicemesh/voice/vad"
)

// Config is the complete worker configuration.
type Config struct {
	Flow    string        `yaml:"flow" env:"FLOW"`
	LLM     LLMConfig     `yaml:"llm" env:"LLM"`
	TTS     TTSConfig     `yaml:"tts" env:"TTS"`
	STT     STTConfig     `yaml:"stt" env:"STT"`
	VAD     VADConfig     `yaml:"vad" env:"VAD"`
	Worker  WorkerConfig  `yaml:"worker" env:"WORKER"`
	Session SessionConfig `yaml:"session" env:"SESSION"`
	Log     LogConfig     `yaml:"log" env:"LOG"`
}

// LLMConfig selects the language model.
type LLMConfig struct {
	// Provider is openai or anthropic.
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	Model       string  `yaml:"model" env:"MODEL"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int64   `yaml:"max_tokens" env:"MAX_TOKENS"`
	Stream      bool    `yaml:"stream" env:"STREAM"`
}

// TTSConfig selects the speech synthesis voices.
type TTSConfig struct {
	Model string  `yaml:"model" env:"MODEL"`
	Voice string  `yaml:"voice" env:"VOICE"`
	Speed float64 `yaml:"speed" env:"SPEED"`
	// SpecialistVoice is used by specialist agents; empty keeps Voice.
	SpecialistVoice string `yaml:"specialist_voice" env:"SPECIALIST_VOICE"`
}

// STTConfig selects the speech recognition model.
type STTConfig struct {
	Model    string `yaml:"model" env:"MODEL"`
	Language string `yaml:"language" env:"LANGUAGE"`
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	Threshold       float64 `yaml:"threshold" env:"THRESHOLD"`
	MinSpeechMs     int     `yaml:"min_speech_ms" env:"MIN_SPEECH_MS"`
	SilenceMs       int     `yaml:"silence_ms" env:"SILENCE_MS"`
	MaxSegmentMs    int     `yaml:"max_segment_ms" env:"MAX_SEGMENT_MS"`
	PrefixPaddingMs int     `yaml:"prefix_padding_ms" env:"PREFIX_PADDING_MS"`
	SampleRate      int     `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// WorkerConfig tunes the worker process.
type WorkerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// MaxSessions bounds concurrently running sessions; 0 means unbounded.
	MaxSessions int `yaml:"max_sessions" env:"MAX_SESSIONS"`
	// AdmissionRate is the number of new sessions admitted per second.
	AdmissionRate float64 `yaml:"admission_rate" env:"ADMISSION_RATE"`
	AdmissionBurst int    `yaml:"admission_burst" env:"ADMISSION_BURST"`
	// Transcription publishes spoken turns to the room.
	Transcription   bool          `yaml:"transcription" env:"TRANSCRIPTION"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// ArtifactDir stores call transcripts; empty disables them.
	ArtifactDir string `yaml:"artifact_dir" env:"ARTIFACT_DIR"`
}

// SessionConfig tunes every session.
type SessionConfig struct {
	MaxSteps           int           `yaml:"max_steps" env:"MAX_STEPS"`
	MaxHistoryMessages int           `yaml:"max_history_messages" env:"MAX_HISTORY_MESSAGES"`
	TeardownTimeout    time.Duration `yaml:"teardown_timeout" env:"TEARDOWN_TIMEOUT"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or text.
	Format string `yaml:"format" env:"FORMAT"`
	// Backend is slog or zap.
	Backend   string `yaml:"backend" env:"BACKEND"`
	AddSource bool   `yaml:"add_source" env:"ADD_SOURCE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	v := vad.DefaultConfig()

	return &Config{
		Flow: "sales",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		TTS: TTSConfig{
			Model:           "tts-1",
			Voice:           "alloy",
			Speed:           1.0,
			SpecialistVoice: "echo",
		},
		STT: STTConfig{
			Model: "whisper-1",
		},
		VAD: VADConfig{
			Threshold:       v.Threshold,
			MinSpeechMs:     v.MinSpeechMs,
			SilenceMs:       v.SilenceMs,
			MaxSegmentMs:    v.MaxSegmentMs,
			PrefixPaddingMs: v.PrefixPaddingMs,
			SampleRate:      v.SampleRate,
		},
		Worker: WorkerConfig{
			Addr:            ":8080",
			MaxSessions:     32,
			AdmissionRate:   5,
			AdmissionBurst:  10,
			Transcription:   true,
			ShutdownTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			MaxSteps:        5,
			TeardownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Backend: "slog",
		},
	}
}

// VADSettings converts the VAD section for the vad package.
func (c *Config) VADSettings() vad.Config {
	return vad.Config{
		Threshold:       c.VAD.Threshold,
		MinSpeechMs:     c.VAD.MinSpeechMs,
		SilenceMs:       c.VAD.SilenceMs,
		MaxSegmentMs:    c.VAD.MaxSegmentMs,
		PrefixPaddingMs: c.VAD.PrefixPaddingMs,
		SampleRate:      c.VAD.SampleRate,
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider))
	}

	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}

	if c.TTS.Voice == "" {
		errs = append(errs, errors.New("tts.voice is required"))
	}

	if c.TTS.Speed < 0.25 || c.TTS.Speed > 4 {
		errs = append(errs, fmt.Errorf("tts.speed must be between 0.25 and 4, got %v", c.TTS.Speed))
	}

	if err := c.VADSettings().Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Worker.Addr == "" {
		errs = append(errs, errors.New("worker.addr is required"))
	}

	if c.Worker.MaxSessions < 0 {
		errs = append(errs, errors.New("worker.max_sessions must not be negative"))
	}

	if c.Worker.AdmissionRate < 0 || c.Worker.AdmissionBurst < 0 {
		errs = append(errs, errors.New("worker admission rate and burst must not be negative"))
	}

	if c.Worker.AdmissionRate > 0 && c.Worker.AdmissionBurst == 0 {
		errs = append(errs, errors.New("worker.admission_burst must be positive when admission_rate is set"))
	}

	if c.Session.MaxSteps < 0 {
		errs = append(errs, errors.New("session.max_steps must not be negative"))
	}

	switch strings.ToLower(c.Log.Backend) {
	case "slog", "zap":
	default:
		errs = append(errs, fmt.Errorf("log.backend must be slog or zap, got %q", c.Log.Backend))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}
