package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// StdioProvider bridges agents to an external tool server running as a
// subprocess (typically a container) speaking a line-delimited JSON
// protocol on stdin/stdout:
//
//	-> {"id":"0","method":"initialize"}
//	<- {"id":"0"}
//	-> {"id":"1","method":"tools/list"}
//	<- {"id":"1","tools":[{"name":"...","description":"...","inputSchema":{...}}]}
//	-> {"id":"2","method":"tools/call","tool":"...","arguments":{...}}
//	<- {"id":"2","result":"..."} or {"id":"2","error":{"code":"...","message":"..."}}
//
// The pipe carries one request at a time; concurrent Invokes serialize on
// an internal mutex. Connection lifecycle belongs to the owning
// ConnectionSet, never to the agents using the tools.
type StdioProvider struct {
	name    string
	command string
	args    []string
	env     []string
	logger  logging.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan stdioLine
	done  chan struct{}
	tools map[string]model.ToolDefinition
}

// StdioProviderOptions configures a StdioProvider.
type StdioProviderOptions struct {
	Env    []string
	Logger logging.Logger
}

// NewStdioProvider creates a provider that will launch the given command on
// Connect.
func NewStdioProvider(name, command string, args []string, optFns ...func(o *StdioProviderOptions)) *StdioProvider {
	opts := StdioProviderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &StdioProvider{
		name:    name,
		command: command,
		args:    args,
		env:     opts.Env,
		logger:  opts.Logger,
	}
}

type stdioRequest struct {
	ID        string         `json:"id"`
	Method    string         `json:"method"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type stdioToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type stdioResponse struct {
	ID     string          `json:"id"`
	Tools  []stdioToolSpec `json:"tools,omitempty"`
	Result string          `json:"result,omitempty"`
	Error  *stdioError     `json:"error,omitempty"`
}

type stdioError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stdioLine is one stdout line (or the terminal read error) delivered by the
// reader goroutine.
type stdioLine struct {
	data []byte
	err  error
}

// Name implements Provider.
func (p *StdioProvider) Name() string { return p.name }

// Connect implements Provider: launches the subprocess and loads the tool
// library. Connecting an already connected provider is a no-op.
func (p *StdioProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return nil
	}

	p.logger.Info("gateway.stdio.starting", "provider", p.name, "command", p.command)

	cmd := exec.Command(p.command, p.args...)
	if len(p.env) > 0 {
		cmd.Env = p.env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.lines = make(chan stdioLine, 16)
	p.done = make(chan struct{})
	go readLines(bufio.NewReader(stdout), p.lines, p.done)

	if _, err := p.roundTripLocked(ctx, stdioRequest{ID: uuid.NewString(), Method: "initialize"}); err != nil {
		p.abortLocked()
		return fmt.Errorf("initialize: %w", err)
	}

	resp, err := p.roundTripLocked(ctx, stdioRequest{ID: uuid.NewString(), Method: "tools/list"})
	if err != nil {
		p.abortLocked()
		return fmt.Errorf("list tools: %w", err)
	}

	p.tools = make(map[string]model.ToolDefinition, len(resp.Tools))
	for _, spec := range resp.Tools {
		p.tools[spec.Name] = model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema, // inputSchema maps 1:1 to function parameters
			},
		}
	}

	p.logger.Info("gateway.stdio.connected", "provider", p.name, "tools", len(p.tools))
	return nil
}

// Close implements Provider: closes stdin so the subprocess can exit
// gracefully, then waits briefly before killing it.
func (p *StdioProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return nil
	}
	defer p.teardownLocked()

	_ = p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		_ = p.cmd.Process.Kill()
		return fmt.Errorf("provider %s did not exit, killed", p.name)
	}
}

// abortLocked kills a half-connected subprocess so a failed or cancelled
// Connect never leaves it running. Callers must hold mu.
func (p *StdioProvider) abortLocked() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	p.teardownLocked()
}

func (p *StdioProvider) teardownLocked() {
	if p.done != nil {
		close(p.done)
	}
	p.cmd = nil
	p.stdin = nil
	p.lines = nil
	p.done = nil
	p.tools = nil
}

// Tools implements Provider.
func (p *StdioProvider) Tools() []model.ToolDefinition {
	p.mu.Lock()
	defer p.mu.Unlock()
	defs := make([]model.ToolDefinition, 0, len(p.tools))
	for _, d := range p.tools {
		defs = append(defs, d)
	}
	return defs
}

// Has implements Provider.
func (p *StdioProvider) Has(tool string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tools[tool]
	return ok
}

// Invoke implements Provider. Validation errors reported by the server
// (code "malformed_arguments") surface as *MalformedArgumentsError; other
// server-reported errors as *ToolError; pipe failures are fatal.
func (p *StdioProvider) Invoke(ctx context.Context, tool string, args map[string]any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	if _, ok := p.tools[tool]; !ok {
		return "", NewToolError(tool, fmt.Sprintf("tool not served by provider %s", p.name), "NOT_FOUND")
	}

	start := time.Now()
	resp, err := p.roundTripLocked(ctx, stdioRequest{
		ID:        uuid.NewString(),
		Method:    "tools/call",
		Tool:      tool,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("provider %s unreachable: %w", p.name, err)
	}

	if resp.Error != nil {
		if resp.Error.Code == "malformed_arguments" {
			return "", &MalformedArgumentsError{Tool: tool, Reason: resp.Error.Message}
		}
		return "", NewToolError(tool, resp.Error.Message, resp.Error.Code)
	}

	p.logger.Info("gateway.stdio.call", "provider", p.name, "tool", tool, "duration_ms", time.Since(start).Milliseconds())
	return resp.Result, nil
}

// roundTripLocked writes one request line and consumes response lines until
// the matching id arrives, the context is cancelled, or the pipe dies.
// Callers must hold mu.
func (p *StdioProvider) roundTripLocked(ctx context.Context, req stdioRequest) (*stdioResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := p.stdin.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case l, ok := <-p.lines:
			if !ok {
				return nil, fmt.Errorf("read response: %w", io.ErrUnexpectedEOF)
			}
			if l.err != nil {
				return nil, fmt.Errorf("read response: %w", l.err)
			}
			var resp stdioResponse
			if err := json.Unmarshal(l.data, &resp); err != nil {
				// Servers may emit diagnostics on stdout; skip non-protocol lines.
				p.logger.Debug("gateway.stdio.skip_line", "provider", p.name)
				continue
			}
			if resp.ID != req.ID {
				continue
			}
			return &resp, nil
		}
	}
}

// readLines pumps subprocess stdout into the line channel so round trips can
// select against context cancellation. It exits on the first read error or
// when the provider tears down.
func readLines(r *bufio.Reader, lines chan<- stdioLine, done <-chan struct{}) {
	defer close(lines)
	for {
		data, err := r.ReadBytes('\n')
		if err != nil {
			select {
			case lines <- stdioLine{err: err}:
			case <-done:
			}
			return
		}
		select {
		case lines <- stdioLine{data: data}:
		case <-done:
			return
		}
	}
}
