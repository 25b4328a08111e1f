package prune

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputStripsNarrationNoise(t *testing.T) {
	raw := `I'll conduct a quick analysis.
## Phase 1: Search
RKLB is a space company.

---
---
---

## Step 1: Finish
It has NASA contracts.`

	out := Output(raw)

	assert.NotContains(t, out, "I'll conduct")
	assert.NotContains(t, out, "Phase 1")
	assert.NotContains(t, out, "Step 1")
	assert.NotContains(t, out, "---")
	assert.Contains(t, out, "RKLB is a space company.")
	assert.Contains(t, out, "It has NASA contracts.")
}

func TestOutputPreservesLongLines(t *testing.T) {
	long := "I need to emphasize that revenue grew 40% YoY to $2.1B while gross margin expanded 300bps, " +
		"free cash flow turned positive at $180M, and the backlog reached $4.6B with NASA and SDA contracts " +
		"providing multi-year visibility into launch cadence and satellite manufacturing volumes."
	assert.GreaterOrEqual(t, len(long), 200)

	out := Output("Let me check the filings.\n" + long)
	assert.NotContains(t, out, "Let me check")
	assert.Contains(t, out, "revenue grew 40%")
}

func TestOutputKeepsSubstantiveHeaders(t *testing.T) {
	raw := "## Revenue Analysis\nQ3 revenue was $105M.\n## Phase 2: Synthesis\ndone"
	out := Output(raw)
	assert.Contains(t, out, "## Revenue Analysis")
	assert.NotContains(t, out, "Phase 2")
}

func TestOutputStripsThoughtBlocks(t *testing.T) {
	raw := "<thought>secret reasoning</thought>Findings: margins are stable.\n```thought\nmore reasoning\n```"
	out := Output(raw)
	assert.NotContains(t, out, "secret reasoning")
	assert.NotContains(t, out, "more reasoning")
	assert.Contains(t, out, "Findings: margins are stable.")
}

func TestOutputCollapsesBlankRunsAndDashes(t *testing.T) {
	out := Output("a\n\n\n\n\nb\n\nc ----------- d")
	assert.NotContains(t, out, "\n\n\n")
	assert.Contains(t, out, "c --- d")
}

func TestOutputTruncationPreservesHeadAndTail(t *testing.T) {
	raw := strings.Repeat("x", 500) + "MIDDLE" + strings.Repeat("y", 500)
	out := Output(raw, func(o *Options) { o.MaxChars = 200 })

	assert.Less(t, len(out), len(raw))
	assert.Contains(t, out, "truncated for context efficiency")
	assert.True(t, strings.HasPrefix(out, "x"))
	assert.True(t, strings.HasSuffix(out, "y"))
}

func TestOutputEmptyInput(t *testing.T) {
	assert.Equal(t, "", Output(""))
}
