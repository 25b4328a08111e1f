// Package model defines the provider-agnostic abstractions for interacting
// with LLM endpoints inside ResearchMesh.
//
// Core goals:
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Report token usage consistently regardless of backend
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (agents, orchestrator) remain decoupled from
// vendor SDKs.
package model

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/researchmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (draft agnostic, minimal subset
// expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input for one endpoint invocation:
// the full conversation history plus the tool schema available to the
// calling agent.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the normalized result of one endpoint invocation. Exactly one
// of Content / ToolCalls is meaningful: a response carrying tool calls is a
// tool round, anything else is (possibly empty) terminal content.
type Response struct {
	Content      string          `json:"content"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests tool invocations.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Message converts the response into the assistant message to append to a
// conversation.
func (r *Response) Message() core.Message {
	if r.HasToolCalls() {
		return core.AssistantToolCallMessage(r.Content, r.ToolCalls)
	}
	return core.AssistantMessage(r.Content)
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
// Implementations perform bounded transport-level retries internally and
// surface everything else as an error.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses can be scripted as an ordered sequence; once the script is
// exhausted (or when none was provided) the mock echoes the last user
// message.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []Response
	cursor   int
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// Enqueue appends scripted responses returned in order by Generate.
func (m *MockModel) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// EnqueueContent is a shorthand for scripting a terminal content response.
func (m *MockModel) EnqueueContent(content string) {
	m.Enqueue(Response{Content: content, FinishReason: "stop", Usage: &TokenUsage{TotalTokens: 1}})
}

// EnqueueToolCall is a shorthand for scripting a single tool call round.
// The generated call ID is returned so tests can assert linkage.
func (m *MockModel) EnqueueToolCall(name, arguments string) string {
	id := "call_" + uuid.NewString()[:8]
	m.Enqueue(Response{
		ToolCalls:    []core.ToolCall{{ID: id, Name: name, Arguments: arguments}},
		FinishReason: "tool_calls",
		Usage:        &TokenUsage{TotalTokens: 1},
	})
	return id
}

// Requests returns a copy of every request seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations so far.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model; pops the next scripted response or echoes.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.cursor < len(m.script) {
		resp := m.script[m.cursor]
		m.cursor++
		return &resp, nil
	}

	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			lastUser = req.Messages[i].Content
			break
		}
	}
	return &Response{
		Content:      "Mock response to: " + strings.TrimSpace(lastUser),
		FinishReason: "stop",
		Usage:        &TokenUsage{TotalTokens: 1},
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
