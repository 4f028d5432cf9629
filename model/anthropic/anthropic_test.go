package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_GroupsToolResults(t *testing.T) {
	msgs := []core.Message{
		core.NewSystemMessage("be helpful"),
		core.NewUserMessage("weather?"),
		core.NewAssistantMessage("agent", "",
			core.ToolCall{ID: "a", Name: "weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)},
			core.ToolCall{ID: "b", Name: "weather", Arguments: json.RawMessage(`{"city":"Rome"}`)},
		),
		core.NewToolMessage("a", "weather", "rain", false),
		core.NewToolMessage("b", "weather", "boom", true),
		core.NewAssistantMessage("agent", "done"),
	}

	out := buildMessages(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Len(t, out[1].Content, 2)
	assert.Equal(t, "user", string(out[2].Role))
	assert.Len(t, out[2].Content, 2)
	assert.Equal(t, "assistant", string(out[3].Role))

	system := extractSystem(msgs)
	require.Len(t, system, 1)
	assert.Equal(t, "be helpful", system[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Name:        "weather",
		Description: "Get weather",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []any{"city"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "weather", tools[0].OfTool.Name)
	assert.Equal(t, []string{"city"}, tools[0].OfTool.InputSchema.Required)
}

func TestFormatHint(t *testing.T) {
	assert.Empty(t, formatHint(nil))
	assert.Contains(t, formatHint(&model.ResponseFormat{Type: model.FormatJSONObject}), "JSON object")
	assert.Contains(t, formatHint(&model.ResponseFormat{Type: model.FormatJSONSchema, Schema: map[string]any{"type": "object"}}), `{"type":"object"}`)
}
