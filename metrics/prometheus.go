package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/voicemesh/model"
)

// Prometheus is a process-wide Recorder exporting counters for all sessions
// of a worker. It also tracks session lifecycle.
type Prometheus struct {
	llmTokens      *prometheus.CounterVec
	ttsCharacters  *prometheus.CounterVec
	sttSeconds     prometheus.Counter
	speeches       *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	handoffs       *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	sessionSeconds prometheus.Histogram
	admission      *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg under namespace.
func NewPrometheus(namespace string, reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Language model tokens consumed",
		}, []string{"provider", "model", "type"}), // type: prompt, completion
		ttsCharacters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_characters_total",
			Help:      "Characters sent to speech synthesis",
		}, []string{"voice"}),
		sttSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_audio_seconds_total",
			Help:      "Seconds of user audio transcribed",
		}),
		speeches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speeches_total",
			Help:      "Agent speeches by outcome",
		}, []string{"outcome"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations",
		}, []string{"tool", "failed"}),
		handoffs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Agent handoffs",
		}, []string{"from", "to", "status"}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running",
		}),
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by result",
		}, []string{"result"}),
		sessionSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		admission: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_admissions_total",
			Help:      "Room admission decisions",
		}, []string{"decision"}),
	}
}

// LLMUsage implements Recorder.
func (p *Prometheus) LLMUsage(info model.Info, u model.TokenUsage) {
	p.llmTokens.WithLabelValues(info.Provider, info.Name, "prompt").Add(float64(u.PromptTokens))
	p.llmTokens.WithLabelValues(info.Provider, info.Name, "completion").Add(float64(u.CompletionTokens))
}

// TTSCharacters implements Recorder.
func (p *Prometheus) TTSCharacters(voice string, n int) {
	p.ttsCharacters.WithLabelValues(voice).Add(float64(n))
}

// STTAudio implements Recorder.
func (p *Prometheus) STTAudio(d time.Duration) { p.sttSeconds.Add(d.Seconds()) }

// Speech implements Recorder.
func (p *Prometheus) Speech(outcome string) { p.speeches.WithLabelValues(outcome).Inc() }

// ToolCall implements Recorder.
func (p *Prometheus) ToolCall(tool string, failed bool) {
	p.toolCalls.WithLabelValues(tool, strconv.FormatBool(failed)).Inc()
}

// Handoff implements Recorder.
func (p *Prometheus) Handoff(from, to string, ok bool) {
	status := "applied"
	if !ok {
		status = "rejected"
	}

	p.handoffs.WithLabelValues(from, to, status).Inc()
}

// SessionStarted marks a session as running.
func (p *Prometheus) SessionStarted() { p.sessionsActive.Inc() }

// SessionEnded records a finished session. result is "closed", "lost", "failed" or "cancelled".
func (p *Prometheus) SessionEnded(result string, d time.Duration) {
	p.sessionsActive.Dec()
	p.sessionsTotal.WithLabelValues(result).Inc()
	p.sessionSeconds.Observe(d.Seconds())
}

// Admission records an admission decision ("accepted", "rate_limited", "at_capacity").
func (p *Prometheus) Admission(decision string) {
	p.admission.WithLabelValues(decision).Inc()
}
