// Package gateway implements the tool-access side of ResearchMesh: providers
// that expose named tools to agents, a shared error taxonomy separating
// recoverable argument problems from fatal transport failures, and the
// ConnectionSet that pins connection lifecycle to a single owning unit of
// work.
//
// Provider implementations:
//   - FunctionProvider: in-process Go functions with schema validation
//   - StdioProvider: external subprocess speaking a line-delimited JSON protocol
//
// Agents only ever invoke tools; they never open or close the underlying
// connections. The orchestrator opens every provider before fanning out
// concurrent work and closes them exactly once after the join, so cleanup
// never happens from a branch that might not outlive its siblings.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// Provider exposes a named set of tools behind a connection whose lifecycle
// is owned by a ConnectionSet.
//
// Invoke returns the textual tool result, a *MalformedArgumentsError when
// the arguments fail validation (recoverable via agent self-correction), a
// *ToolError for tool-level execution failures, or any other error for
// fatal transport problems.
type Provider interface {
	// Name returns the provider identifier used in logs and routing.
	Name() string

	// Connect establishes the underlying connection and loads the tool
	// library. Calling Connect on a connected provider is a no-op.
	Connect(ctx context.Context) error

	// Close releases the connection. Safe to call once after Connect.
	Close() error

	// Tools returns definitions for every tool this provider serves.
	Tools() []model.ToolDefinition

	// Has reports whether the provider serves the named tool.
	Has(tool string) bool

	// Invoke executes the named tool with already-parsed arguments.
	Invoke(ctx context.Context, tool string, args map[string]any) (string, error)
}

// MalformedArgumentsError reports arguments that could not be validated
// against the tool schema. It is recoverable: agents feed the reason back
// into the conversation so the model can self-correct.
type MalformedArgumentsError struct {
	Tool   string
	Reason string
}

func (e *MalformedArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for tool %s: %s", e.Tool, e.Reason)
}

// IsMalformedArguments reports whether err is (or wraps) a
// MalformedArgumentsError.
func IsMalformedArguments(err error) bool {
	var target *MalformedArgumentsError
	return errors.As(err, &target)
}

// ToolError represents a tool-level execution failure. It is not fatal to
// the agent turn: the message is fed back as the tool result so the model
// can adapt.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// IsToolError reports whether err is (or wraps) a ToolError.
func IsToolError(err error) bool {
	var target *ToolError
	return errors.As(err, &target)
}

// ErrNotConnected is returned by providers invoked before Connect.
var ErrNotConnected = errors.New("gateway: provider not connected")

// ConnectionSet owns the lifecycle of every provider a research session
// needs. It is opened exactly once before any concurrent agent work begins
// and closed exactly once when the session ends, regardless of how many
// agents used it.
//
// Contract:
//   - Open connects all providers; a second Open is a no-op
//   - Close tears down all providers; a second Close is a no-op
//   - Open after Close is an error (sets are single-use, like sessions)
type ConnectionSet struct {
	mu        sync.Mutex
	providers []Provider
	opened    bool
	closed    bool
	logger    logging.Logger
}

// ConnectionSetOptions configures a ConnectionSet.
type ConnectionSetOptions struct {
	Logger logging.Logger
}

// NewConnectionSet creates a set owning the given providers.
func NewConnectionSet(providers []Provider, optFns ...func(o *ConnectionSetOptions)) *ConnectionSet {
	opts := ConnectionSetOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ConnectionSet{providers: providers, logger: opts.Logger}
}

// Open connects every provider in the set. Individual connection failures
// are logged and do not prevent the remaining providers from connecting;
// the first error is returned after all attempts.
func (s *ConnectionSet) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("gateway: connection set already closed")
	}
	if s.opened {
		return nil
	}
	s.opened = true

	var firstErr error
	for _, p := range s.providers {
		if err := p.Connect(ctx); err != nil {
			s.logger.Error("gateway.connect.failed", "provider", p.Name(), "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("connect %s: %w", p.Name(), err)
			}
			continue
		}
		s.logger.Info("gateway.connect.ok", "provider", p.Name(), "tools", len(p.Tools()))
	}
	return firstErr
}

// Close tears down every provider. Errors are logged but not returned;
// cleanup failures during shutdown are expected and must not mask the
// session result.
func (s *ConnectionSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, p := range s.providers {
		if err := p.Close(); err != nil {
			s.logger.Debug("gateway.close.error", "provider", p.Name(), "error", err.Error())
			continue
		}
		s.logger.Info("gateway.close.ok", "provider", p.Name())
	}
}

// Providers returns the providers owned by the set.
func (s *ConnectionSet) Providers() []Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// Provider returns the named provider, if present.
func (s *ConnectionSet) Provider(name string) (Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}
