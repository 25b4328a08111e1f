package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/model"
)

func TestTotalTokensDerivedFromBuckets(t *testing.T) {
	s := NewState()
	s.Reset("sess-1", "Analyze RKLB")

	s.AgentFinished("Quantitative", model.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, false)
	s.AgentFinished("Qualitative", model.TokenUsage{PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300}, false)
	s.AgentFinished("Quantitative", model.TokenUsage{TotalTokens: 50}, false)

	assert.Equal(t, 500, s.TotalTokens())

	snap := s.Snapshot()
	require.Len(t, snap.Agents, 2)
	assert.Equal(t, 500, snap.TotalTokens)
}

func TestResetPreservesAgentListClearsCounters(t *testing.T) {
	s := NewState()
	s.AgentFinished("Synthesis", model.TokenUsage{TotalTokens: 42}, false)
	s.RecordToolCall("Synthesis", "lookup", time.Millisecond)

	s.Reset("sess-2", "new query")

	snap := s.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "idle", snap.Agents[0].Status)
	assert.Zero(t, snap.Agents[0].Usage.TotalTokens)
	assert.Zero(t, snap.Agents[0].ToolCalls)
	assert.Empty(t, snap.ToolCalls)
	assert.Zero(t, snap.TotalTokens)
}

func TestFailedAgentMarkedError(t *testing.T) {
	s := NewState()
	s.AgentStarted("Quantitative", "crunch numbers")
	s.AgentFinished("Quantitative", model.TokenUsage{TotalTokens: 10}, true)

	snap := s.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "error", snap.Agents[0].Status)
	assert.Equal(t, 10, snap.TotalTokens, "usage counts even on failure")
}

func TestActivityFeedCapped(t *testing.T) {
	s := NewState()
	for i := 0; i < 80; i++ {
		s.RecordToolCall("Quantitative", "lookup", time.Millisecond)
	}
	snap := s.Snapshot()
	assert.Len(t, snap.ToolCalls, 50)

	require.Len(t, snap.Agents, 1)
	assert.Equal(t, 80, snap.Agents[0].ToolCalls)
}

func TestOptimizationSummary(t *testing.T) {
	s := NewState()
	s.AgentFinished("Synthesis", model.TokenUsage{TotalTokens: 1000}, false)
	s.RecordPruning(5000, 1000)
	s.RecordPruning(100, 200) // pruning never grows output; negative deltas ignored

	opt := s.Optimization()
	assert.Equal(t, 1000, opt.ActualTokens)
	assert.Equal(t, 4000, opt.TotalCharsSaved)
	assert.Equal(t, 1000, opt.EstimatedTokensSaved)
	assert.Equal(t, 2000, opt.EstimatedPrePruningTokens)
}

func TestConcurrentRecording(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AgentFinished("Quantitative", model.TokenUsage{TotalTokens: 1}, false)
				s.RecordToolCall("Quantitative", "lookup", 0)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, s.TotalTokens())
}
