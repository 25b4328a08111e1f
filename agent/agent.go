// Package agent implements the per-conversation execution engine: one agent
// owns one conversation and drives a bounded loop of model rounds and tool
// rounds until the model emits terminal content.
//
// The loop tolerates the three recoverable failure classes without losing
// conversational state:
//   - malformed tool arguments are fed back into the conversation once per
//     tool so the model can self-correct
//   - empty model output triggers a bounded active retry with unchanged
//     history
//   - tool-level execution errors become tool-result text the model can
//     adapt to
//
// Only transport failures and exhausted budgets fail the turn, and even then
// the accumulated history stays intact across turns within a session.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/gateway"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// State identifies where an agent is inside a turn.
type State string

const (
	// StateAwaitModel means the agent is about to (or waiting to) invoke the
	// model endpoint.
	StateAwaitModel State = "AWAIT_MODEL"
	// StateAwaitToolResult means the agent is executing requested tool calls.
	StateAwaitToolResult State = "AWAIT_TOOL_RESULT"
	// StateDone is the successful terminal state for a turn.
	StateDone State = "DONE"
	// StateFailed is the failed terminal state for a turn.
	StateFailed State = "FAILED"
)

// Snapshot is the read-only record of an agent's last completed turn,
// pulled by observers; the agent never pushes it anywhere.
type Snapshot struct {
	State        State
	Content      string
	FinishReason string
	Usage        model.TokenUsage
	ToolCycles   int
	ModelCalls   int
	Completed    time.Time
}

// Options configures an Agent.
type Options struct {
	// SystemPrompt is appended once, lazily, at the start of the first turn.
	SystemPrompt string

	// Providers route tool calls. The first provider serving a requested
	// tool wins; the agent never opens or closes provider connections.
	Providers []gateway.Provider

	// MaxToolCycles caps consecutive tool rounds within one turn.
	MaxToolCycles int

	// RetryBudget caps active retries on empty model output within one turn.
	RetryBudget int

	// MaxParallelToolCalls bounds concurrent tool execution within one round.
	MaxParallelToolCalls int

	// OnToolCall observes every tool invocation that reached a provider
	// (agent name, tool name, duration). Observers must be fast and safe for
	// concurrent use; the monitor's RecordToolCall satisfies both.
	OnToolCall func(agent, tool string, duration time.Duration)

	Logger logging.Logger
}

// Agent drives a single stateful conversation against a model endpoint.
// Execute runs one turn at a time; concurrent calls serialize. History
// persists across turns within a session and is reset only explicitly.
type Agent struct {
	mu    sync.Mutex
	name  string
	model model.Model
	conv  *core.Conversation
	opts  Options

	state        State
	systemPinned bool

	lastMu sync.RWMutex
	last   *Snapshot
}

// New creates an agent with the given role name and model.
func New(name string, m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxToolCycles:        15,
		RetryBudget:          2,
		MaxParallelToolCalls: 4,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxParallelToolCalls < 1 {
		opts.MaxParallelToolCalls = 1
	}
	return &Agent{
		name:  name,
		model: m,
		conv:  core.NewConversation(),
		opts:  opts,
		state: StateAwaitModel,
	}
}

// Name returns the agent's role name.
func (a *Agent) Name() string { return a.name }

// State returns the agent's current state.
func (a *Agent) State() State {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	return a.state
}

// History returns a defensive copy of the agent's conversation.
func (a *Agent) History() []core.Message { return a.conv.Messages() }

// ResetHistory clears the conversation for a new session. The system prompt
// is re-pinned on the next turn.
func (a *Agent) ResetHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conv.Reset()
	a.systemPinned = false
}

// LastResponse returns the snapshot of the most recent completed turn, or
// nil before the first turn finishes.
func (a *Agent) LastResponse() *Snapshot {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	if a.last == nil {
		return nil
	}
	snap := *a.last
	return &snap
}

func (a *Agent) setState(s State) {
	a.lastMu.Lock()
	a.state = s
	a.lastMu.Unlock()
}

// toolDefinitions collects the tool schema this agent may call.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	var defs []model.ToolDefinition
	for _, p := range a.opts.Providers {
		defs = append(defs, p.Tools()...)
	}
	return defs
}

// Execute runs one turn: append the user input (when non-empty), then loop
// model rounds and tool rounds until terminal content, a budget is
// exhausted, or a fatal error occurs. DONE and FAILED are terminal for the
// turn only; the history persists either way.
func (a *Agent) Execute(ctx context.Context, input string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.systemPinned && a.opts.SystemPrompt != "" {
		if err := a.conv.Append(core.SystemMessage(a.opts.SystemPrompt)); err != nil {
			return "", err
		}
		a.systemPinned = true
	}
	if input != "" {
		if err := a.conv.Append(core.UserMessage(input)); err != nil {
			return "", err
		}
	}

	a.setState(StateAwaitModel)

	var (
		cycles     int
		retries    int
		modelCalls int
		usage      model.TokenUsage
		// Consecutive malformed-argument count per tool, reset on a clean
		// round for that tool. Scoped to the turn.
		malformed = map[string]int{}
	)

	fail := func(err error) (string, error) {
		a.setState(StateFailed)
		a.record(Snapshot{
			State:      StateFailed,
			Usage:      usage,
			ToolCycles: cycles,
			ModelCalls: modelCalls,
			Completed:  time.Now(),
		})
		return "", err
	}

	tools := a.toolDefinitions()

	for {
		start := time.Now()
		resp, err := a.model.Generate(ctx, model.Request{Messages: a.conv.Messages(), Tools: tools})
		modelCalls++
		if err != nil {
			a.logModelCall(0, time.Since(start), err)
			return fail(fmt.Errorf("model call failed: %w", err))
		}
		roundTokens := 0
		if resp.Usage != nil {
			usage.Add(*resp.Usage)
			roundTokens = resp.Usage.TotalTokens
		}
		a.logModelCall(roundTokens, time.Since(start), nil)

		if resp.HasToolCalls() {
			if cycles >= a.opts.MaxToolCycles {
				a.opts.Logger.Warn("agent.cycle_limit", "agent", a.name, "cycles", cycles)
				return fail(fmt.Errorf("%w after %d cycles", ErrToolCycleLimit, cycles))
			}
			if err := a.conv.Append(resp.Message()); err != nil {
				return fail(err)
			}

			a.setState(StateAwaitToolResult)
			results, err := a.executeToolCalls(ctx, resp.ToolCalls, malformed)
			if err != nil {
				return fail(err)
			}
			for _, r := range results {
				if err := a.conv.Append(r); err != nil {
					return fail(err)
				}
			}
			cycles++
			a.setState(StateAwaitModel)
			continue
		}

		if strings.TrimSpace(resp.Content) == "" {
			// Empty terminal-looking content is a transient provider artifact,
			// not an answer. Re-invoke with the same history; nothing is
			// appended for the blank round.
			if retries >= a.opts.RetryBudget {
				a.opts.Logger.Error("agent.retry_exhausted", "agent", a.name, "retries", retries)
				return fail(fmt.Errorf("%w after %d retries", ErrRetryExhausted, retries))
			}
			retries++
			a.opts.Logger.Warn("agent.empty_response", "agent", a.name, "retry", retries)
			continue
		}

		if err := a.conv.Append(resp.Message()); err != nil {
			return fail(err)
		}
		a.setState(StateDone)
		a.record(Snapshot{
			State:        StateDone,
			Content:      resp.Content,
			FinishReason: resp.FinishReason,
			Usage:        usage,
			ToolCycles:   cycles,
			ModelCalls:   modelCalls,
			Completed:    time.Now(),
		})
		return resp.Content, nil
	}
}

func (a *Agent) record(snap Snapshot) {
	a.lastMu.Lock()
	a.last = &snap
	a.lastMu.Unlock()
}

// toolOutcome carries one call's result text back to its slot in the round.
type toolOutcome struct {
	index int
	text  string
	fatal error
}

// executeToolCalls runs one tool round. Argument payloads are parsed
// sequentially (cheap, and keeps the malformed bookkeeping deterministic);
// valid calls then execute concurrently under the parallelism bound.
// Results are returned in the original call order so the appended history
// is stable regardless of completion order.
//
// Recoverable failures (malformed arguments, tool-level errors) become
// result text. Anything else aborts the round.
func (a *Agent) executeToolCalls(ctx context.Context, calls []core.ToolCall, malformed map[string]int) ([]core.Message, error) {
	results := make([]core.Message, len(calls))

	type pending struct {
		index int
		call  core.ToolCall
		args  map[string]any
	}
	var runnable []pending

	for i, call := range calls {
		args := map[string]any{}
		if strings.TrimSpace(call.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				results[i] = core.ToolResultMessage(call.ID, call.Name, a.malformedFeedback(call.Name, err.Error(), malformed))
				continue
			}
		}
		runnable = append(runnable, pending{index: i, call: call, args: args})
	}

	outcomes := make(chan toolOutcome, len(runnable))
	sem := make(chan struct{}, a.opts.MaxParallelToolCalls)
	var wg sync.WaitGroup

	for _, p := range runnable {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, fatal := a.invokeTool(ctx, p.call.Name, p.args)
			outcomes <- toolOutcome{index: p.index, text: text, fatal: fatal}
		}(p)
	}
	wg.Wait()
	close(outcomes)

	type done struct {
		text  string
		fatal error
	}
	byIndex := make(map[int]done, len(runnable))
	for o := range outcomes {
		byIndex[o.index] = done{text: o.text, fatal: o.fatal}
	}

	// Walk the round in call order so malformed bookkeeping and history
	// order stay deterministic.
	for _, p := range runnable {
		d := byIndex[p.index]
		if d.fatal != nil {
			if gateway.IsMalformedArguments(d.fatal) {
				results[p.index] = core.ToolResultMessage(p.call.ID, p.call.Name, a.malformedFeedback(p.call.Name, d.fatal.Error(), malformed))
				continue
			}
			return nil, d.fatal
		}
		delete(malformed, p.call.Name) // clean round resets self-correction
		results[p.index] = core.ToolResultMessage(p.call.ID, p.call.Name, d.text)
	}
	return results, nil
}

// malformedFeedback produces the tool-result text for a malformed call.
// The first strike per tool asks the model to correct itself; a second
// consecutive strike gives up on that call without failing the turn.
func (a *Agent) malformedFeedback(tool, reason string, malformed map[string]int) string {
	malformed[tool]++
	if malformed[tool] > 1 {
		a.opts.Logger.Warn("agent.tool.malformed_repeated", "agent", a.name, "tool", tool)
		return fmt.Sprintf("Error: tool '%s' received malformed arguments again (%s). This call cannot be completed; continue without it.", tool, reason)
	}
	a.opts.Logger.Debug("agent.tool.malformed", "agent", a.name, "tool", tool, "reason", reason)
	return fmt.Sprintf("Error: arguments for tool '%s' were invalid: %s. Correct the arguments and call the tool again.", tool, reason)
}

// invokeTool routes a call to the first provider serving the tool.
// Tool-level execution errors become result text; malformed-argument and
// transport errors are returned for the caller to classify.
func (a *Agent) invokeTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	var provider gateway.Provider
	for _, p := range a.opts.Providers {
		if p.Has(tool) {
			provider = p
			break
		}
	}
	if provider == nil {
		return fmt.Sprintf("Error: no provider serves tool '%s'.", tool), nil
	}

	start := time.Now()
	result, err := provider.Invoke(ctx, tool, args)
	if a.opts.OnToolCall != nil {
		a.opts.OnToolCall(a.name, tool, time.Since(start))
	}
	a.logToolCall(tool, time.Since(start), err)
	if err != nil {
		if gateway.IsMalformedArguments(err) {
			return "", err
		}
		if gateway.IsToolError(err) {
			return fmt.Sprintf("Error executing tool '%s': %s", tool, err.Error()), nil
		}
		return "", fmt.Errorf("tool gateway failure for %s: %w", tool, err)
	}
	return result, nil
}

// logModelCall routes through the structured model-call helper when the
// configured logger provides one.
func (a *Agent) logModelCall(tokens int, dur time.Duration, err error) {
	if ml, ok := a.opts.Logger.(logging.ModelCallLogger); ok {
		ml.LogModelCall(a.model.Info().Name, tokens, dur, err == nil, err)
		return
	}
	if err != nil {
		a.opts.Logger.Error("agent.model.error", "agent", a.name, "error", err.Error())
		return
	}
	a.opts.Logger.Debug("agent.model.round", "agent", a.name, "duration_ms", dur.Milliseconds(), "tokens", tokens)
}

// logToolCall routes through the structured tool-call helper when the
// configured logger provides one.
func (a *Agent) logToolCall(tool string, dur time.Duration, err error) {
	if tl, ok := a.opts.Logger.(logging.ToolCallLogger); ok {
		tl.LogToolCall(tool, dur, err == nil, err)
		return
	}
	if err != nil {
		a.opts.Logger.Warn("agent.tool.error", "agent", a.name, "tool", tool, "error", err.Error())
		return
	}
	a.opts.Logger.Debug("agent.tool.ok", "agent", a.name, "tool", tool, "duration_ms", dur.Milliseconds())
}
