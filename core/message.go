// Package core defines the shared data model for ResearchMesh: conversation
// messages, tool call descriptors, the per-agent conversation container and
// the research session record.
//
// Design principles:
//   - Messages are value types, immutable once appended to a Conversation
//   - Each Conversation is exclusively owned by a single agent; other
//     components never mutate it directly
//   - Session bookkeeping is orchestrator-owned and keeps every raw
//     specialist output verbatim, independent of pruning
package core

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching. Arguments is the raw serialized payload exactly as produced by
// the model; it may be malformed and is only parsed at execution time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is a single entry of a conversation.
//
// Invariants (enforced by Conversation):
//   - A RoleTool message always references a preceding assistant message's
//     tool call via ToolCallID
//   - ToolCalls is only populated on RoleAssistant messages
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // Links a tool result to its originating call
	Name       string     `json:"name,omitempty"`         // Tool name on RoleTool messages
}

// SystemMessage constructs a system role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage constructs a user role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage constructs an assistant message carrying terminal content.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// AssistantToolCallMessage constructs an assistant message requesting tool calls.
func AssistantToolCallMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage constructs a tool message linked to its originating call.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}
