package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/model"
)

func TestBuildMessages_AlternatesRoles(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("lead", "let me note that", []core.ToolCall{{ID: "c1", Name: "introduce", Arguments: `{"name":"Ada"}`}}),
		core.NewToolMessage("lead", core.ToolResult{CallID: "c1", Output: "ok"}),
		core.NewUserMessage("thanks"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
}

func TestBuildTools_RequiredFromStrings(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Name:        "introduce",
		Description: "record a participant",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
			"required":   []string{"name"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "introduce", tools[0].OfTool.Name)
	assert.Equal(t, []string{"name"}, tools[0].OfTool.InputSchema.Required)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil)
	assert.Equal(t, "anthropic", m.Info().Provider)
}
