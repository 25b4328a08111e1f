package research

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/researchmesh/core"
)

// CompletionDetector decides whether a synthesis turn signals that research
// is complete. It is a pluggable predicate so the fuzzy textual convention
// can later be replaced by structured signaling without touching the phase
// state machine.
type CompletionDetector interface {
	Detect(output string) bool
}

// DominantLineDetector detects completion phrases by full-line match: a
// phrase counts only when it is the dominant content of a line, after
// stripping markdown markers and trailing punctuation. This tolerates
// formatting variance ("## Analysis Status" above a bare "Done.") without
// false-positiving on prose that merely contains a phrase ("We are not Done
// yet").
type DominantLineDetector struct {
	phrases []*regexp.Regexp
}

// NewDominantLineDetector creates the default detector with the standard
// completion phrases.
func NewDominantLineDetector() *DominantLineDetector {
	return &DominantLineDetector{
		phrases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^done$`),
			regexp.MustCompile(`(?i)^there is nothing else needed$`),
			regexp.MustCompile(`(?i)^i have enough information( for a final thesis)?$`),
			regexp.MustCompile(`(?i)^(i am )?ready to provide (the|a) final (thesis|report)$`),
			regexp.MustCompile(`(?i)^no further (research|information|data) (is )?needed$`),
			regexp.MustCompile(`(?i)^(the )?(data|information|context) (is|are) sufficient$`),
		},
	}
}

var lineMarkerRe = regexp.MustCompile(`^[#>*\-\s]+`)

// Detect implements CompletionDetector.
func (d *DominantLineDetector) Detect(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		cleaned := lineMarkerRe.ReplaceAllString(strings.TrimSpace(line), "")
		cleaned = strings.TrimRight(cleaned, " .!:")
		if cleaned == "" {
			continue
		}
		for _, re := range d.phrases {
			if re.MatchString(cleaned) {
				return true
			}
		}
	}
	return false
}

// Section headers of the form "## For Quantitative Agent:"; the request body
// is the header line's remainder plus everything up to the next header or
// end of output.
var gapHeaderRe = regexp.MustCompile(`(?mi)^#{2,3}\s*For\s+(\w[\w ]*?)\s+Agent:?[ \t]*(.*)$`)

// ParseGaps extracts targeted specialist requests from a synthesis turn.
// Headers naming an unknown specialist are ignored; empty request bodies are
// dropped. Specialist matching is case-insensitive against the provided role
// names, and the returned gaps carry the canonical names.
func ParseGaps(output string, specialists []string) []core.ResearchGap {
	canonical := make(map[string]string, len(specialists))
	for _, name := range specialists {
		canonical[strings.ToLower(name)] = name
	}

	matches := gapHeaderRe.FindAllStringSubmatchIndex(output, -1)
	var gaps []core.ResearchGap
	for i, m := range matches {
		name := output[m[2]:m[3]]
		canonicalName, known := canonical[strings.ToLower(name)]
		if !known {
			continue
		}

		sameLine := output[m[4]:m[5]]

		bodyStart := m[1]
		bodyEnd := len(output)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		// Any following header ends the section, not just gap headers.
		if next := strings.Index(output[bodyStart:bodyEnd], "\n##"); next >= 0 {
			bodyEnd = bodyStart + next
		}

		request := strings.TrimSpace(sameLine + "\n" + strings.TrimSpace(output[bodyStart:bodyEnd]))
		if request == "" {
			continue
		}
		gaps = append(gaps, core.ResearchGap{Specialist: canonicalName, Request: request})
	}
	return gaps
}

// BroadFallbackGaps builds one comprehensive request per specialist. Used
// when a synthesis turn neither signals completion nor contains a parseable
// gap section.
func BroadFallbackGaps(specialists []string) []core.ResearchGap {
	gaps := make([]core.ResearchGap, 0, len(specialists))
	for _, name := range specialists {
		gaps = append(gaps, core.ResearchGap{
			Specialist: name,
			Request:    fmt.Sprintf("Provide a comprehensive %s report for the research query.", strings.ToLower(name)),
		})
	}
	return gaps
}
