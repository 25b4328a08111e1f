package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer, level LogLevel) *ResearchLogger {
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf})
}

func TestResearchLoggerContextualAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelInfo).
		WithComponent("orchestrator").
		WithSession("sess-1").
		WithPhase("Gathering")

	l.Info("iteration started", "iteration", 2)

	out := buf.String()
	assert.Contains(t, out, `"component":"orchestrator"`)
	assert.Contains(t, out, `"session_id":"sess-1"`)
	assert.Contains(t, out, `"phase":"Gathering"`)
	assert.Contains(t, out, `"iteration":2`)
}

func TestResearchLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestLogToolCall(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelInfo)

	l.LogToolCall("get_quote", 12*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "Tool execution completed")
	assert.Contains(t, buf.String(), `"tool_name":"get_quote"`)

	buf.Reset()
	l.LogToolCall("get_quote", time.Millisecond, false, errors.New("rate limited"))
	assert.Contains(t, buf.String(), "Tool execution failed")
	assert.Contains(t, buf.String(), "rate limited")
}

func TestLogModelCall(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelInfo)

	l.LogModelCall("gpt-5-mini", 128, 40*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "Model call completed")
	assert.Contains(t, buf.String(), `"token_count":128`)
}

func TestLogPhaseTransition(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, LogLevelInfo)

	l.LogPhaseTransition("Gathering", "Dispatching", 1)
	assert.Contains(t, buf.String(), "Phase transition")
	assert.Contains(t, buf.String(), `"from":"Gathering"`)
	assert.Contains(t, buf.String(), `"to":"Dispatching"`)
}

func TestCapabilityInterfaces(t *testing.T) {
	// A ResearchLogger satisfies the optional structured-record interfaces
	// core code upgrades to; plain adapters do not.
	var l Logger = NewLogger(&LoggerConfig{Output: &bytes.Buffer{}})
	_, ok := l.(ToolCallLogger)
	assert.True(t, ok)
	_, ok = l.(ModelCallLogger)
	assert.True(t, ok)
	_, ok = l.(PhaseLogger)
	assert.True(t, ok)

	var plain Logger = NoOpLogger{}
	_, ok = plain.(ToolCallLogger)
	assert.False(t, ok)
}
