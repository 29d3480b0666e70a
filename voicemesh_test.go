package voicemesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/config"
	"github.com/hupe1980/voicemesh/logging"
)

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()

	l, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logging.StructuredLogger{}, l)

	cfg.Log.Backend = "zap"
	cfg.Log.Format = "text"

	l, err = NewLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logging.ZapAdapter{}, l)

	cfg.Log.Level = "loud"
	_, err = NewLogger(cfg)
	require.Error(t, err)
}

func TestNewModel_SelectsProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	m, err := NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, cfg.LLM.Model, m.Info().Name)

	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-3-5-haiku-latest"

	m, err = NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", m.Info().Name)

	cfg.LLM.Provider = "mistral"
	_, err = NewModel(cfg)
	require.Error(t, err)
}

func TestNewSynthesizer_UsesVoice(t *testing.T) {
	s := NewSynthesizer(config.DefaultConfig(), "echo")
	assert.Equal(t, "openai:echo", s.Name())
}

func TestTriageEntrypoint_RejectsUnknownFlow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Flow = "weather"

	_, err := TriageEntrypoint(cfg)
	require.Error(t, err)

	err = Run(context.Background(), cfg, logging.NoOpLogger{})
	require.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Worker.ArtifactDir = t.TempDir()

	opts, err := SessionOptions(cfg, logging.NoOpLogger{})
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg.LLM.Provider = "mistral"
	_, err = SessionOptions(cfg, logging.NoOpLogger{})
	require.Error(t, err)
}
