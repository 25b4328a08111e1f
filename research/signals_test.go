package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominantLineDetector(t *testing.T) {
	d := NewDominantLineDetector()

	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"bare done", "Done", true},
		{"done with punctuation", "Done.", true},
		{"done under status header", "## Analysis Status\nDone", true},
		{"done as list item", "- Done", true},
		{"done inside prose", "We are not Done yet", false},
		{"done inside gap request", "## For Quantitative Agent:\nCheck if the migration is Done in the filings.", false},
		{"nothing else needed", "There is nothing else needed.", true},
		{"enough information", "I have enough information for a final thesis", true},
		{"no further research", "No further research needed", true},
		{"sufficient full line", "The data is sufficient.", true},
		{"sufficient mid-sentence", "We may have sufficient data to proceed with more analysis", false},
		{"empty output", "", false},
		{"plain gap request", "## For Qualitative Agent:\nAssess management credibility.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.output))
		})
	}
}

func TestParseGaps(t *testing.T) {
	specialists := []string{"Quantitative", "Qualitative"}

	output := `Initial assessment follows.

## For Quantitative Agent:
Pull the last four quarters of revenue and margin data.

## For Qualitative Agent:
Assess management credibility and recent executive turnover.

## Summary
Waiting on specialists.`

	gaps := ParseGaps(output, specialists)
	require.Len(t, gaps, 2)
	assert.Equal(t, "Quantitative", gaps[0].Specialist)
	assert.Contains(t, gaps[0].Request, "revenue and margin")
	assert.NotContains(t, gaps[0].Request, "Qualitative")
	assert.Equal(t, "Qualitative", gaps[1].Specialist)
	assert.NotContains(t, gaps[1].Request, "Summary")
}

func TestParseGapsSameLineRequest(t *testing.T) {
	gaps := ParseGaps("## For Quantitative Agent: Fetch the P/E ratio.", []string{"Quantitative"})
	require.Len(t, gaps, 1)
	assert.Equal(t, "Fetch the P/E ratio.", gaps[0].Request)
}

func TestParseGapsCaseInsensitiveNames(t *testing.T) {
	gaps := ParseGaps("## For quantitative Agent:\nGet the numbers.", []string{"Quantitative"})
	require.Len(t, gaps, 1)
	assert.Equal(t, "Quantitative", gaps[0].Specialist, "canonical name restored")
}

func TestParseGapsSkipsUnknownAndEmpty(t *testing.T) {
	output := `## For Astrology Agent:
Read the stars.

## For Quantitative Agent:
`
	gaps := ParseGaps(output, []string{"Quantitative", "Qualitative"})
	assert.Empty(t, gaps)
}

func TestBroadFallbackGaps(t *testing.T) {
	gaps := BroadFallbackGaps([]string{"Quantitative", "Qualitative"})
	require.Len(t, gaps, 2)
	assert.Equal(t, "Quantitative", gaps[0].Specialist)
	assert.Contains(t, gaps[0].Request, "comprehensive quantitative report")
}
