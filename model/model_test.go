package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/core"
)

func TestScriptedModel_PopsScriptInOrder(t *testing.T) {
	m := NewScriptedModel("test").
		Reply("hello").
		CallTools("", core.ToolCall{ID: "c1", Name: "introduce", Arguments: `{"name":"Ada"}`})

	resp, err := Collect(m.Generate(context.Background(), Request{}))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Empty(t, resp.ToolCalls)

	resp, err = Collect(m.Generate(context.Background(), Request{}))
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "introduce", resp.ToolCalls[0].Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)

	assert.Len(t, m.Requests(), 2)
}

func TestScriptedModel_EchoWhenExhausted(t *testing.T) {
	m := NewScriptedModel("test")

	resp, err := Collect(m.Generate(context.Background(), Request{Messages: []core.Message{core.NewUserMessage("ping")}}))
	require.NoError(t, err)
	assert.Equal(t, "You said: ping", resp.Text)
	require.NotNil(t, resp.Usage)
}

func TestScriptedModel_Fail(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel("test").Fail(boom)

	_, err := Collect(m.Generate(context.Background(), Request{}))
	assert.ErrorIs(t, err, boom)
}

func TestCollect_ConcatenatesPartials(t *testing.T) {
	respCh := make(chan Response, 3)
	errCh := make(chan error)
	respCh <- Response{Partial: true, Text: "Hel"}
	respCh <- Response{Partial: true, Text: "lo"}
	close(respCh)
	close(errCh)

	resp, err := Collect(respCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestCollect_EmptyIsError(t *testing.T) {
	respCh := make(chan Response)
	errCh := make(chan error)
	close(respCh)
	close(errCh)

	_, err := Collect(respCh, errCh)
	assert.Error(t, err)
}
