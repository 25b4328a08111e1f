package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEnforcesToolLinkage(t *testing.T) {
	c := NewConversation()
	require.NoError(t, c.Append(UserMessage("hi")))

	// A tool message with no preceding assistant tool call is rejected.
	err := c.Append(ToolResultMessage("call_1", "lookup", "result"))
	assert.Error(t, err)

	require.NoError(t, c.Append(AssistantToolCallMessage("", []ToolCall{
		{ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`},
		{ID: "call_2", Name: "lookup", Arguments: `{"q":"y"}`},
	})))
	assert.Equal(t, []string{"call_1", "call_2"}, c.UnansweredToolCalls())

	// Results may arrive in any order, but only for pending call IDs.
	require.NoError(t, c.Append(ToolResultMessage("call_2", "lookup", "second")))
	assert.Equal(t, []string{"call_1"}, c.UnansweredToolCalls())
	assert.Error(t, c.Append(ToolResultMessage("call_9", "lookup", "bogus")))

	require.NoError(t, c.Append(ToolResultMessage("call_1", "lookup", "first")))
	assert.Empty(t, c.UnansweredToolCalls())
}

func TestAppendToolAfterNewRoundRejected(t *testing.T) {
	c := NewConversation()
	require.NoError(t, c.Append(AssistantToolCallMessage("", []ToolCall{{ID: "call_1", Name: "lookup"}})))
	require.NoError(t, c.Append(ToolResultMessage("call_1", "lookup", "done")))
	require.NoError(t, c.Append(AssistantMessage("answer")))

	// The round is closed; its call IDs are no longer pending.
	assert.Error(t, c.Append(ToolResultMessage("call_1", "lookup", "late")))
}

func TestToolMessageRequiresCallID(t *testing.T) {
	c := NewConversation()
	err := c.Append(Message{Role: RoleTool, Content: "orphan"})
	assert.Error(t, err)
	assert.Zero(t, c.Len(), "failed append leaves history untouched")
}

func TestMessagesReturnsDefensiveCopy(t *testing.T) {
	c := NewConversation()
	require.NoError(t, c.Append(UserMessage("original")))

	msgs := c.Messages()
	msgs[0].Content = "mutated"

	again := c.Messages()
	assert.Equal(t, "original", again[0].Content)
}

func TestLastAndReset(t *testing.T) {
	c := NewConversation()
	_, ok := c.Last()
	assert.False(t, ok)

	require.NoError(t, c.Append(UserMessage("one")))
	require.NoError(t, c.Append(AssistantMessage("two")))

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Content)

	c.Reset()
	assert.Zero(t, c.Len())
}
