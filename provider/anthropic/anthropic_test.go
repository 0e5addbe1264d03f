package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mcpbridge/provider"
)

func TestBuildMessages(t *testing.T) {
	messages := buildMessages([]provider.Message{
		{Role: "system", Text: "be terse"},
		{Role: "user", Text: "add 2 and 3"},
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}}}},
		{Role: "tool", ToolResults: []provider.ToolResult{{CallID: "c1", Content: "5"}}},
	})

	// System turns are lifted out; tool results travel as user messages.
	require.Len(t, messages, 3)
	assert.Equal(t, "user", string(messages[0].Role))
	assert.Equal(t, "assistant", string(messages[1].Role))
	assert.Equal(t, "user", string(messages[2].Role))
}

func TestBuildSystemBlocks(t *testing.T) {
	blocks := buildSystemBlocks(provider.Request{
		Instructions: "you are a bridge",
		Messages: []provider.Message{
			{Role: "system", Text: "be terse"},
			{Role: "user", Text: "hi"},
		},
	})

	require.Len(t, blocks, 2)
	assert.Equal(t, "you are a bridge", blocks[0].Text)
	assert.Equal(t, "be terse", blocks[1].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]provider.Tool{{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a", "b"}, tools[0].OfTool.InputSchema.Required)
	assert.NotNil(t, tools[0].OfTool.InputSchema.Properties)
}

func TestRequiredStrings(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredStrings([]string{"a"}))
	assert.Equal(t, []string{"a", "b"}, requiredStrings([]any{"a", "b"}))
	assert.Nil(t, requiredStrings(42))
}

func TestInfo(t *testing.T) {
	agent := New()
	info := agent.Info()
	assert.Equal(t, "anthropic", info.Provider)
	assert.True(t, info.SupportsTools)
}
