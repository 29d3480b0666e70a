package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/metrics"
	"github.com/hupe1980/voicemesh/model"
	"github.com/hupe1980/voicemesh/voice"
	"github.com/hupe1980/voicemesh/voice/vad"
)

// Options configure a Session.
type Options struct {
	// Model generates every reply. Required.
	Model model.Model
	// Synthesizer is the default voice; agents may override it.
	Synthesizer voice.Synthesizer
	// Recognizer turns room audio into user utterances. Nil disables input.
	Recognizer voice.Recognizer
	// Detector enables barge-in on user speech. Nil disables barge-in.
	Detector voice.ActivityDetector
	// VAD tunes barge-in segmentation.
	VAD vad.Config
	// Format of the audio published to the room.
	Format voice.Format

	Logger    logging.Logger
	Tracer    trace.Tracer
	OnEvent   core.EventHandler
	Recorder  metrics.Recorder
	Artifacts core.ArtifactStore

	// RealtimePlayout paces published audio at its natural rate.
	RealtimePlayout bool
	// Transcription publishes spoken turns as room transcripts.
	Transcription bool
	// Stream requests incremental model output.
	Stream bool
	// MaxSteps bounds chained replies per user turn; 0 means unlimited.
	MaxSteps int
	// MaxHistoryMessages bounds the history sent to the model; 0 sends all.
	MaxHistoryMessages int
	// TeardownTimeout bounds the DeleteRoom request.
	TeardownTimeout time.Duration
}

func defaultOptions() Options {
	return Options{
		VAD:             vad.DefaultConfig(),
		Format:          voice.DefaultFormat,
		Logger:          logging.NoOpLogger{},
		RealtimePlayout: true,
		Transcription:   true,
		MaxSteps:        5,
		TeardownTimeout: 10 * time.Second,
	}
}

// WithModel sets the language model.
func WithModel(m model.Model) func(o *Options) {
	return func(o *Options) { o.Model = m }
}

// WithSynthesizer sets the default voice.
func WithSynthesizer(s voice.Synthesizer) func(o *Options) {
	return func(o *Options) { o.Synthesizer = s }
}

// WithRecognizer sets the speech recognizer.
func WithRecognizer(r voice.Recognizer) func(o *Options) {
	return func(o *Options) { o.Recognizer = r }
}

// WithDetector enables barge-in with d, segmented per cfg.
func WithDetector(d voice.ActivityDetector, cfg vad.Config) func(o *Options) {
	return func(o *Options) {
		o.Detector = d
		o.VAD = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithTracer enables OpenTelemetry spans.
func WithTracer(t trace.Tracer) func(o *Options) {
	return func(o *Options) { o.Tracer = t }
}

// WithOnEvent registers an event observer.
func WithOnEvent(h core.EventHandler) func(o *Options) {
	return func(o *Options) { o.OnEvent = h }
}

// WithRecorder reports usage to r in addition to the session's own collector.
func WithRecorder(r metrics.Recorder) func(o *Options) {
	return func(o *Options) { o.Recorder = r }
}

// WithArtifactStore saves the transcript to store when the session closes.
func WithArtifactStore(store core.ArtifactStore) func(o *Options) {
	return func(o *Options) { o.Artifacts = store }
}

// WithRealtimePlayout toggles real-time pacing of published audio.
func WithRealtimePlayout(enabled bool) func(o *Options) {
	return func(o *Options) { o.RealtimePlayout = enabled }
}

// WithTranscription toggles transcript publishing.
func WithTranscription(enabled bool) func(o *Options) {
	return func(o *Options) { o.Transcription = enabled }
}

// WithStreaming toggles incremental model output.
func WithStreaming(enabled bool) func(o *Options) {
	return func(o *Options) { o.Stream = enabled }
}

// WithMaxSteps bounds chained replies per user turn.
func WithMaxSteps(n int) func(o *Options) {
	return func(o *Options) { o.MaxSteps = n }
}

// WithMaxHistoryMessages bounds the history sent to the model.
func WithMaxHistoryMessages(n int) func(o *Options) {
	return func(o *Options) { o.MaxHistoryMessages = n }
}
