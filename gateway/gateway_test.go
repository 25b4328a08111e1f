package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/model"
)

type stubProvider struct {
	mu         sync.Mutex
	name       string
	connects   int
	closes     int
	connectErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	return p.connectErr
}

func (p *stubProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *stubProvider) Tools() []model.ToolDefinition { return nil }
func (p *stubProvider) Has(string) bool               { return false }
func (p *stubProvider) Invoke(context.Context, string, map[string]any) (string, error) {
	return "", ErrNotConnected
}

func TestConnectionSetOpenAndCloseOnce(t *testing.T) {
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "b"}
	set := NewConnectionSet([]Provider{a, b})

	require.NoError(t, set.Open(context.Background()))
	require.NoError(t, set.Open(context.Background()), "second open is a no-op")
	assert.Equal(t, 1, a.connects)
	assert.Equal(t, 1, b.connects)

	set.Close()
	set.Close()
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
}

func TestConnectionSetOpenAfterCloseFails(t *testing.T) {
	set := NewConnectionSet([]Provider{&stubProvider{name: "a"}})
	require.NoError(t, set.Open(context.Background()))
	set.Close()

	assert.Error(t, set.Open(context.Background()), "sets are single-use")
}

func TestConnectionSetPartialFailure(t *testing.T) {
	bad := &stubProvider{name: "bad", connectErr: errors.New("refused")}
	good := &stubProvider{name: "good"}
	set := NewConnectionSet([]Provider{bad, good})

	err := set.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, good.connects, "remaining providers still connect")

	_, ok := set.Provider("good")
	assert.True(t, ok)
	assert.Len(t, set.Providers(), 2)
}

func TestFunctionProviderValidation(t *testing.T) {
	echo := NewFunction("echo", "Echo the input",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	)
	p := NewFunctionProvider("utils", echo)

	// Invoke before Connect is a lifecycle violation.
	_, err := p.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.Has("echo"))
	assert.Len(t, p.Tools(), 1)

	out, err := p.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	// Missing required field surfaces as a malformed-arguments error.
	_, err = p.Invoke(context.Background(), "echo", map[string]any{})
	assert.True(t, IsMalformedArguments(err))

	// Wrong type too.
	_, err = p.Invoke(context.Background(), "echo", map[string]any{"text": 42})
	assert.True(t, IsMalformedArguments(err))

	// Unknown tools are tool errors, not transport failures.
	_, err = p.Invoke(context.Background(), "missing", nil)
	assert.True(t, IsToolError(err))
}

func TestFunctionProviderWrapsExecutionErrors(t *testing.T) {
	flaky := NewFunction("flaky", "Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	)
	p := NewFunctionProvider("utils", flaky)
	require.NoError(t, p.Connect(context.Background()))

	_, err := p.Invoke(context.Background(), "flaky", nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "flaky", toolErr.Tool)
}

func TestNewFunctionFromStruct(t *testing.T) {
	type quoteArgs struct {
		Ticker string `json:"ticker" description:"Ticker symbol"`
		Limit  int    `json:"limit,omitempty"`
	}

	f := NewFunctionFromStruct("quote", "Fetch a quote", quoteArgs{},
		func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	)

	def := f.Definition()
	assert.Equal(t, "quote", def.Function.Name)

	props := def.Function.Parameters["properties"].(map[string]any)
	assert.Contains(t, props, "ticker")
	assert.Contains(t, props, "limit")
	assert.Equal(t, []string{"ticker"}, def.Function.Parameters["required"])
}
