package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_AttachesContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("session").
		WithSession("s-1").
		WithAgent("lead")

	l.Info("session.started", "room_id", "r-1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "session.started", lines[0]["msg"])
	assert.Equal(t, "session", lines[0]["component"])
	assert.Equal(t, "s-1", lines[0]["session_id"])
	assert.Equal(t, "lead", lines[0]["agent"])
	assert.Equal(t, "r-1", lines[0]["room_id"])
}

func TestStructuredLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestStructuredLogger_DomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Output: &buf})

	l.LogToolCall("introduce", time.Millisecond, false, errors.New("bad args"))
	l.LogHandoff("lead", "sales", true, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "tool.call.failed", lines[0]["msg"])
	assert.Equal(t, "bad args", lines[0]["error"])
	assert.Equal(t, "handoff.applied", lines[1]["msg"])
	assert.Equal(t, "sales", lines[1]["to_agent"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestZapAdapter_KeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core)).With("component", "worker")

	l.Info("job.accepted", "room_id", "r-1")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "job.accepted", entries[0].Message)
	assert.Equal(t, "r-1", entries[0].ContextMap()["room_id"])
	assert.Equal(t, "worker", entries[0].ContextMap()["component"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Error("ignored", "k", "v")
}
