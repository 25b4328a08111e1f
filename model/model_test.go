package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func TestMockModelScriptThenEcho(t *testing.T) {
	m := NewMockModel("test")
	m.EnqueueContent("scripted")
	id := m.EnqueueToolCall("lookup", `{"q":"x"}`)

	resp, err := m.Generate(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "scripted", resp.Content)
	assert.False(t, resp.HasToolCalls())

	resp, err = m.Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, id, resp.ToolCalls[0].ID)

	// Script exhausted: echo the last user message.
	resp, err = m.Generate(context.Background(), Request{Messages: []core.Message{core.UserMessage("echo me")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: echo me", resp.Content)

	assert.Equal(t, 3, m.Calls())
	assert.Len(t, m.Requests(), 3)
}

func TestResponseMessageConversion(t *testing.T) {
	content := Response{Content: "answer"}
	msg := content.Message()
	assert.Equal(t, core.RoleAssistant, msg.Role)
	assert.Empty(t, msg.ToolCalls)

	toolRound := Response{ToolCalls: []core.ToolCall{{ID: "call_1", Name: "lookup"}}}
	msg = toolRound.Message()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
}

func TestTokenUsageAdd(t *testing.T) {
	var total TokenUsage
	total.Add(TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	total.Add(TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	assert.Equal(t, TokenUsage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18}, total)
}
