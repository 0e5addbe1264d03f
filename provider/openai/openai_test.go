package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mcpbridge/provider"
)

func TestBuildMessages(t *testing.T) {
	messages := buildMessages(provider.Request{
		Instructions: "you are a bridge",
		Messages: []provider.Message{
			{Role: "user", Text: "add 2 and 3"},
			{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}}}},
			{Role: "tool", ToolResults: []provider.ToolResult{{CallID: "c1", Content: "5"}}},
		},
	})

	require.Len(t, messages, 4)
	assert.NotNil(t, messages[0].OfSystem)
	assert.NotNil(t, messages[1].OfUser)
	require.NotNil(t, messages[2].OfAssistant)
	require.Len(t, messages[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "add", messages[2].OfAssistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"a":2,"b":3}`, messages[2].OfAssistant.ToolCalls[0].Function.Arguments)
	assert.NotNil(t, messages[3].OfTool)
}

func TestBuildParamsTools(t *testing.T) {
	agent := New()
	params := agent.buildParams(provider.Request{
		Messages: []provider.Message{{Role: "user", Text: "hi"}},
		Tools: []provider.Tool{{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: map[string]any{"type": "object"},
		}},
	})

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "add", params.Tools[0].Function.Name)

	bare := agent.buildParams(provider.Request{Messages: []provider.Message{{Role: "user", Text: "hi"}}})
	assert.Empty(t, bare.Tools)
}

func TestInfo(t *testing.T) {
	agent := New()
	info := agent.Info()
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
}
