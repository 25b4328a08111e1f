package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/model"
)

// Function adapts a plain Go function into a provider-served tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates model supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive errors from the shared
//     taxonomy: *MalformedArgumentsError for schema mismatches, *ToolError
//     for execution failures (custom ToolErrors pass through unchanged)
//
// A Function has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type Function struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// NewFunction constructs a Function from explicit schema and implementation.
//
// Example:
//
//	quote := gateway.NewFunction(
//	  "get_stock_quote",
//	  "Fetch the latest quote for a ticker symbol",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "ticker": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"ticker"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return fetchQuote(ctx, args["ticker"].(string))
//	  },
//	)
func NewFunction(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *Function {
	return &Function{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionFromStruct derives the parameter schema from a struct using
// reflection. Convenience for simple argument containers.
func NewFunctionFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *Function {
	return NewFunction(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (f *Function) Name() string { return f.name }

// Definition returns the tool definition exposed to models.
func (f *Function) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        f.name,
			Description: f.description,
			Parameters:  f.parameters,
		},
	}
}

// FunctionProvider serves in-process functions as gateway tools. It mimics
// the remote provider surface so agents are indifferent to where a tool
// actually executes.
type FunctionProvider struct {
	mu        sync.RWMutex
	name      string
	functions map[string]*Function
	connected bool
}

// NewFunctionProvider creates a provider serving the given functions.
func NewFunctionProvider(name string, functions ...*Function) *FunctionProvider {
	p := &FunctionProvider{name: name, functions: make(map[string]*Function, len(functions))}
	for _, f := range functions {
		p.functions[f.Name()] = f
	}
	return p
}

// Register adds a function to the provider's tool library.
func (p *FunctionProvider) Register(f *Function) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.functions[f.Name()] = f
}

// Name implements Provider.
func (p *FunctionProvider) Name() string { return p.name }

// Connect implements Provider. In-process functions need no transport, but
// the connected flag keeps lifecycle symmetry with remote providers.
func (p *FunctionProvider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Close implements Provider.
func (p *FunctionProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// Tools implements Provider.
func (p *FunctionProvider) Tools() []model.ToolDefinition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(p.functions))
	for _, f := range p.functions {
		defs = append(defs, f.Definition())
	}
	return defs
}

// Has implements Provider.
func (p *FunctionProvider) Has(tool string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.functions[tool]
	return ok
}

// Invoke implements Provider. Arguments are validated against the function
// schema before execution; validation failures surface as
// *MalformedArgumentsError so agents can feed them back for self-correction.
func (p *FunctionProvider) Invoke(ctx context.Context, tool string, args map[string]any) (string, error) {
	p.mu.RLock()
	f, ok := p.functions[tool]
	connected := p.connected
	p.mu.RUnlock()

	if !connected {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	if !ok {
		return "", NewToolError(tool, fmt.Sprintf("tool not served by provider %s", p.name), "NOT_FOUND")
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := util.ValidateParameters(args, f.parameters); err != nil {
		return "", &MalformedArgumentsError{Tool: tool, Reason: err.Error()}
	}

	result, err := f.fn(ctx, args)
	if err != nil {
		if IsToolError(err) || IsMalformedArguments(err) {
			return "", err
		}
		return "", NewToolError(tool, err.Error(), "EXECUTION_ERROR")
	}
	return result, nil
}
