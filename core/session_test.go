package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewResearchSession("Analyze RKLB")
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "Analyze RKLB", s.Query())
	assert.Equal(t, PhaseGathering, s.Phase())
	assert.False(t, s.Done())

	s.SetPhase(PhaseDispatching)
	s.RecordIteration(IterationRecord{
		Iteration: 1,
		Gaps:      []ResearchGap{{Specialist: "Quantitative", Request: "numbers"}},
		Results:   []SpecialistResult{{Specialist: "Quantitative", Raw: "raw", Pruned: "pruned"}},
	})

	s.SetPhase(PhaseFinalizing)
	s.SetFinalReport("thesis")
	s.SetPhase(PhaseComplete)

	assert.True(t, s.Done())
	assert.Equal(t, "thesis", s.FinalReport())
	require.Len(t, s.Iterations(), 1)
	assert.Equal(t, "raw", s.Iterations()[0].Results[0].Raw)
	assert.False(t, s.Incomplete())

	s.MarkIncomplete()
	assert.True(t, s.Incomplete())
}

func TestSessionAbortedIsTerminal(t *testing.T) {
	s := NewResearchSession("q")
	s.SetPhase(PhaseAborted)
	assert.True(t, s.Done())
}
