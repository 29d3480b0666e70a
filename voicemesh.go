// Package voicemesh wires a configured voice worker: it builds the logger,
// language model, voices and recognizer described by a config.Config and
// runs a triage flow on every room the worker admits.
//
// Most applications need three calls:
//
//	cfg, err := config.Load("voicemesh.yaml")
//	logger, err := voicemesh.NewLogger(cfg)
//	err = voicemesh.Run(ctx, cfg, logger)
//
// Lower level pieces (session, worker, triage) can be used directly for
// custom flows.
package voicemesh

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"

	"github.com/hupe1980/voicemesh/artifact"
	"github.com/hupe1980/voicemesh/config"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/model"
	"github.com/hupe1980/voicemesh/model/anthropic"
	"github.com/hupe1980/voicemesh/model/openai"
	"github.com/hupe1980/voicemesh/session"
	"github.com/hupe1980/voicemesh/triage"
	"github.com/hupe1980/voicemesh/voice"
	voiceopenai "github.com/hupe1980/voicemesh/voice/openai"
	"github.com/hupe1980/voicemesh/voice/vad"
	"github.com/hupe1980/voicemesh/worker"
)

// NewLogger builds the logger selected by cfg.Log.
func NewLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Log.Format)

	switch strings.ToLower(cfg.Log.Backend) {
	case "zap":
		z, err := logging.NewZapLogger(level, format)
		if err != nil {
			return nil, fmt.Errorf("build zap logger: %w", err)
		}

		return z, nil
	case "", "slog":
		return logging.NewSlogLogger(level, format, cfg.Log.AddSource), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Log.Backend)
	}
}

// NewModel builds the language model selected by cfg.LLM.
func NewModel(cfg *config.Config) (model.Model, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.LLM.Model
			o.Temperature = cfg.LLM.Temperature
			o.MaxCompletionTokens = cfg.LLM.MaxTokens
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.LLM.Model)
			o.Temperature = cfg.LLM.Temperature
			o.MaxTokens = cfg.LLM.MaxTokens
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// NewSynthesizer builds a speech synthesizer speaking with voiceName.
func NewSynthesizer(cfg *config.Config, voiceName string) voice.Synthesizer {
	return voiceopenai.NewSynthesizer(func(o *voiceopenai.SynthesizerOptions) {
		o.Model = openaisdk.SpeechModel(cfg.TTS.Model)
		o.Voice = openaisdk.AudioSpeechNewParamsVoice(voiceName)
		o.Speed = cfg.TTS.Speed
	})
}

// NewRecognizer builds the speech recognizer segmenting with detector.
func NewRecognizer(cfg *config.Config, detector voice.ActivityDetector, logger logging.Logger) voice.Recognizer {
	return voiceopenai.NewRecognizer(detector, func(o *voiceopenai.RecognizerOptions) {
		o.Model = openaisdk.AudioModel(cfg.STT.Model)
		o.Language = cfg.STT.Language
		o.VAD = cfg.VADSettings()
		o.Logger = logger
	})
}

// SessionOptions translates cfg into options shared by every session.
func SessionOptions(cfg *config.Config, logger logging.Logger) ([]func(o *session.Options), error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := vad.Prewarm(cfg.VADSettings())
	if err != nil {
		return nil, fmt.Errorf("prewarm vad: %w", err)
	}

	opts := []func(o *session.Options){
		session.WithModel(m),
		session.WithSynthesizer(NewSynthesizer(cfg, cfg.TTS.Voice)),
		session.WithRecognizer(NewRecognizer(cfg, detector, logger)),
		session.WithStreaming(cfg.LLM.Stream),
		session.WithTranscription(cfg.Worker.Transcription),
		session.WithMaxSteps(cfg.Session.MaxSteps),
		session.WithMaxHistoryMessages(cfg.Session.MaxHistoryMessages),
		func(o *session.Options) {
			if cfg.Session.TeardownTimeout > 0 {
				o.TeardownTimeout = cfg.Session.TeardownTimeout
			}
		},
	}

	if cfg.Worker.ArtifactDir != "" {
		store, err := artifact.NewFileStore(cfg.Worker.ArtifactDir)
		if err != nil {
			return nil, err
		}

		opts = append(opts, session.WithArtifactStore(store))
	}

	return opts, nil
}

// TriageEntrypoint returns a worker entrypoint running the triage flow
// named by cfg.Flow on every room. Specialists speak with the configured
// specialist voice.
func TriageEntrypoint(cfg *config.Config) (worker.Entrypoint, error) {
	if _, err := triage.NewLead(cfg.Flow); err != nil {
		return nil, err
	}

	var triageOpts []func(o *triage.Options)
	if cfg.TTS.SpecialistVoice != "" && cfg.TTS.SpecialistVoice != cfg.TTS.Voice {
		triageOpts = append(triageOpts, triage.WithSpecialistVoice(NewSynthesizer(cfg, cfg.TTS.SpecialistVoice)))
	}

	return func(ctx context.Context, job *worker.JobContext) error {
		lead, err := triage.NewLead(cfg.Flow, triageOpts...)
		if err != nil {
			return err
		}

		return worker.RunSession(ctx, job, &triage.State{}, lead)
	}, nil
}

// NewWorker builds a worker running entry with sessions configured by cfg.
func NewWorker(cfg *config.Config, logger logging.Logger, entry worker.Entrypoint) (*worker.Worker, error) {
	sessionOpts, err := SessionOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	return worker.New(entry, func(o *worker.Options) {
		o.Addr = cfg.Worker.Addr
		o.MaxSessions = cfg.Worker.MaxSessions
		o.AdmissionRate = cfg.Worker.AdmissionRate
		o.AdmissionBurst = cfg.Worker.AdmissionBurst
		o.ShutdownTimeout = cfg.Worker.ShutdownTimeout
		o.VAD = cfg.VADSettings()
		o.Logger = logger
		o.SessionOptions = sessionOpts
	})
}

// Run serves the triage flow named by cfg.Flow until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	entry, err := TriageEntrypoint(cfg)
	if err != nil {
		return err
	}

	w, err := NewWorker(cfg, logger, entry)
	if err != nil {
		return err
	}

	logger.Info("voicemesh.start", "flow", cfg.Flow, "addr", cfg.Worker.Addr, "llm", cfg.LLM.Provider+":"+cfg.LLM.Model)

	return w.Run(ctx)
}
