package research

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
)

// RenderReport builds the markdown artifact for a finished session: the
// query, every specialist's verbatim findings grouped per specialist across
// iterations, the final thesis and momentum analysis per mode, and the
// resource usage footer.
func RenderReport(session *core.ResearchSession, mode Mode, usage model.TokenUsage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", session.Query())
	fmt.Fprintf(&b, "**Session**: %s\n", session.ID())
	fmt.Fprintf(&b, "**Timestamp**: %s\n", session.Created().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Strategy Mode**: %s\n", mode)
	if session.Incomplete() {
		b.WriteString("\n> Note: this report is based on incomplete research.\n")
	}
	b.WriteString("\n")

	// Group findings per specialist, preserving iteration order.
	bySpecialist := map[string][]string{}
	var order []string
	for _, rec := range session.Iterations() {
		for _, r := range rec.Results {
			body := r.Raw
			if r.Failed {
				body = fmt.Sprintf("_No contribution: %s_", r.Err)
			}
			if _, seen := bySpecialist[r.Specialist]; !seen {
				order = append(order, r.Specialist)
			}
			bySpecialist[r.Specialist] = append(bySpecialist[r.Specialist],
				fmt.Sprintf("### Iteration %d\n%s", rec.Iteration, body))
		}
	}
	for _, name := range order {
		fmt.Fprintf(&b, "## %s Intelligence Cycle\n%s\n\n", name, strings.Join(bySpecialist[name], "\n\n"))
	}

	if mode == ModeFundamental || mode == ModeAll {
		report := session.FinalReport()
		if report == "" {
			report = "N/A"
		}
		fmt.Fprintf(&b, "## Final Thesis\n%s\n\n", report)
	}
	if mode == ModeMomentum || mode == ModeAll {
		analysis := session.MomentumAnalysis()
		if analysis == "" {
			analysis = "N/A"
		}
		fmt.Fprintf(&b, "## Momentum Analysis\n%s\n\n", analysis)
	}

	if usage.TotalTokens > 0 {
		b.WriteString("---\n### Resource Usage\n")
		fmt.Fprintf(&b, "Total Tokens: %d (prompt %d, completion %d)\n",
			usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
	}

	return b.String()
}

// ExportReport writes the rendered report to
// <dir>/research_<mode>_<timestamp>.md and returns the path.
func ExportReport(dir string, session *core.ResearchSession, mode Mode, usage model.TokenUsage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("research_%s_%s.md", mode, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(RenderReport(session, mode, usage)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
