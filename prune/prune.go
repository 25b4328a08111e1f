// Package prune implements the stateless output filter applied at phase
// boundary handoffs: specialist output is pruned before it enters the
// synthesis context, while the verbatim record kept for the final report is
// never touched.
//
// The filter removes narration noise (thinking preambles, workflow markers,
// decorative separators) and preserves substantive findings: data lines,
// headers carrying content, and any long line survive unchanged.
package prune

import (
	"fmt"
	"regexp"
	"strings"
)

// preservationThreshold protects long lines from the preamble heuristics; a
// paragraph that merely starts like narration is kept.
const preservationThreshold = 200

var (
	thoughtBlockRe = regexp.MustCompile(`(?is)<thought>.*?</thought>`)
	thoughtFenceRe = regexp.MustCompile("(?is)```thought.*?```")
	separatorRe    = regexp.MustCompile(`^-{2,}$`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	dashRunRe      = regexp.MustCompile(`-{5,}`)
)

// Start-of-line phrases marking thinking preamble. Deliberately plain
// prefixes rather than regex to avoid false positives on substantive text.
var preamblePrefixes = []string{
	"i'll conduct", "i'll start by", "i'll follow", "i'll use",
	"let me analyze", "let me check", "let me start", "let me look",
	"i need to", "i will", "here's my approach", "here is my approach",
	"i'm thinking", "i am thinking", "first, i'll", "first, i will",
}

// Workflow markers stripped only when the line is just the marker.
var workflowPrefixes = []string{
	"## phase", "## step", "### phase", "### step",
}

// Options configures a pruning pass.
type Options struct {
	// MaxChars truncates the result to roughly this many characters,
	// preserving head and tail. Zero disables truncation.
	MaxChars int
}

// Output prunes raw agent output for context efficiency. Stateless and
// side-effect free; safe for concurrent use.
func Output(raw string, optFns ...func(o *Options)) string {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if raw == "" {
		return ""
	}

	raw = thoughtBlockRe.ReplaceAllString(raw, "")
	raw = thoughtFenceRe.ReplaceAllString(raw, "")

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		stripped := strings.ToLower(strings.TrimSpace(line))
		if stripped == "" {
			kept = append(kept, line)
			continue
		}

		if len(stripped) < preservationThreshold && hasAnyPrefix(stripped, preamblePrefixes) {
			continue
		}
		if hasAnyPrefix(stripped, workflowPrefixes) && (strings.Contains(stripped, ":") || len(stripped) < 15) {
			continue
		}
		if separatorRe.MatchString(stripped) {
			continue
		}

		kept = append(kept, line)
	}

	content := strings.Join(kept, "\n")
	content = blankRunRe.ReplaceAllString(content, "\n\n")
	content = dashRunRe.ReplaceAllString(content, "---")

	if opts.MaxChars > 0 && len(content) > opts.MaxChars {
		half := opts.MaxChars / 2
		content = content[:half] +
			fmt.Sprintf("\n\n[... %d chars truncated for context efficiency ...]\n\n", len(content)-opts.MaxChars) +
			content[len(content)-half:]
	}

	return strings.TrimSpace(content)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
