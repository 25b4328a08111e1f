package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioProviderLifecycleBeforeConnect(t *testing.T) {
	p := NewStdioProvider("finance", "finance-tools-server", nil)
	assert.Equal(t, "finance", p.Name())
	assert.Empty(t, p.Tools())
	assert.False(t, p.Has("get_quote"))

	_, err := p.Invoke(context.Background(), "get_quote", map[string]any{"ticker": "RKLB"})
	assert.ErrorIs(t, err, ErrNotConnected)

	// Close before Connect is a safe no-op.
	assert.NoError(t, p.Close())
}

func TestStdioProviderConnectFailsOnMissingBinary(t *testing.T) {
	p := NewStdioProvider("ghost", "/nonexistent/tool-server", nil)
	err := p.Connect(context.Background())
	assert.Error(t, err)
	assert.NoError(t, p.Close())
}

func TestStdioProviderConnectHonorsContextOnHungServer(t *testing.T) {
	// A subprocess that never answers the handshake must not pin Connect
	// past its context deadline.
	p := NewStdioProvider("hung", "sleep", []string{"30"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The half-connected subprocess was torn down with the attempt.
	assert.False(t, p.Has("anything"))
	assert.NoError(t, p.Close())
}
