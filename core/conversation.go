package core

import (
	"fmt"
	"sync"
)

// Conversation is the ordered message history owned by exactly one agent.
// It is append-only during a turn and may be explicitly reset between
// sessions. Safe for concurrent reads (observers pulling snapshots) while
// the owning agent appends.
//
// Contract:
//   - Append validates the tool-call linkage invariant: a tool message must
//     answer a pending call of the immediately preceding assistant message
//   - Messages returns a defensive copy to avoid external mutation
//   - Reset clears the history for a new session; it is never called
//     mid-turn
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Append adds a message to the history. It returns an error if the message
// would violate the tool-call linkage invariant; the history is left
// untouched in that case.
func (c *Conversation) Append(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Role == RoleTool {
		if msg.ToolCallID == "" {
			return fmt.Errorf("tool message without tool_call_id")
		}
		if !c.pendingLocked(msg.ToolCallID) {
			return fmt.Errorf("tool message %q answers no pending tool call", msg.ToolCallID)
		}
	}
	c.messages = append(c.messages, msg)
	return nil
}

// pendingLocked reports whether callID is an unanswered call of the most
// recent assistant tool-call message. Callers must hold mu.
func (c *Conversation) pendingLocked(callID string) bool {
	for _, p := range c.unansweredLocked() {
		if p == callID {
			return true
		}
	}
	return false
}

// unansweredLocked returns the call IDs requested by the most recent
// assistant tool-call message that have not yet been answered by a tool
// message. Callers must hold mu.
func (c *Conversation) unansweredLocked() []string {
	// Walk back to the last assistant message carrying tool calls, collecting
	// the tool results appended after it.
	answered := map[string]bool{}
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
			continue
		}
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			var pending []string
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					pending = append(pending, tc.ID)
				}
			}
			return pending
		}
		// Any other message breaks the tool round.
		return nil
	}
	return nil
}

// UnansweredToolCalls returns the call IDs of the current tool round that
// still await a tool result. An empty result means the conversation is
// balanced.
func (c *Conversation) UnansweredToolCalls() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unansweredLocked()
}

// Messages returns a defensive copy of the full history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the most recent message and true, or a zero message and
// false when the history is empty.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Reset clears the history for a new session.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
