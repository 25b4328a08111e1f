// Package monitor provides the pull-based observer for a research run:
// per-agent token usage buckets, tool-call counts, the current phase and
// pruning savings. The core records into it at phase boundaries and never
// blocks on or depends on anything reading it.
package monitor

import (
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/model"
)

// AgentStats is the per-agent usage bucket. Total tokens are derived from
// these buckets, never tracked separately, so there is a single source of
// truth.
type AgentStats struct {
	Name        string           `json:"name"`
	Status      string           `json:"status"` // idle, active, completed, error
	CurrentTask string           `json:"current_task,omitempty"`
	Usage       model.TokenUsage `json:"usage"`
	ToolCalls   int              `json:"tool_calls"`
}

// ToolCallRecord is one entry of the tool activity feed.
type ToolCallRecord struct {
	Tool      string    `json:"tool"`
	Agent     string    `json:"agent"`
	Duration  int64     `json:"duration_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the monitoring state.
type Snapshot struct {
	SessionID       string           `json:"session_id"`
	Query           string           `json:"query"`
	Phase           string           `json:"phase"`
	Agents          []AgentStats     `json:"agents"`
	ToolCalls       []ToolCallRecord `json:"tool_calls"`
	TotalTokens     int              `json:"total_tokens"`
	TotalCharsSaved int              `json:"total_chars_saved"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time,omitzero"`
}

// activityFeedLimit caps the tool-call feed carried in snapshots.
const activityFeedLimit = 50

// State is the in-memory monitoring record for one research run. All
// methods are safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	sessionID  string
	query      string
	phase      string
	agents     map[string]*AgentStats
	order      []string
	toolCalls  []ToolCallRecord
	charsSaved int
	startTime  time.Time
	endTime    time.Time
}

// NewState creates an empty monitoring state.
func NewState() *State {
	return &State{phase: "Idle", agents: map[string]*AgentStats{}}
}

// Reset rebinds the state to a new session, clearing per-run counters while
// preserving the known agent list.
func (s *State) Reset(sessionID, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.query = query
	s.startTime = time.Now()
	s.endTime = time.Time{}
	s.toolCalls = nil
	s.charsSaved = 0
	for _, a := range s.agents {
		a.Usage = model.TokenUsage{}
		a.ToolCalls = 0
		a.Status = "idle"
		a.CurrentTask = ""
	}
}

// SetPhase records the current orchestration phase.
func (s *State) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// AgentStarted marks an agent active on a task.
func (s *State) AgentStarted(name, task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.bucketLocked(name)
	a.Status = "active"
	a.CurrentTask = task
}

// AgentFinished records one completed agent turn: its terminal status and
// the usage delta of the turn, accumulated into the agent's bucket.
func (s *State) AgentFinished(name string, usage model.TokenUsage, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.bucketLocked(name)
	a.Usage.Add(usage)
	if failed {
		a.Status = "error"
		return
	}
	a.Status = "completed"
	a.CurrentTask = ""
}

// RecordToolCall appends to the activity feed and bumps the agent's counter.
func (s *State) RecordToolCall(agent, tool string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls = append(s.toolCalls, ToolCallRecord{
		Tool:      tool,
		Agent:     agent,
		Duration:  duration.Milliseconds(),
		Timestamp: time.Now(),
	})
	s.bucketLocked(agent).ToolCalls++
}

// RecordPruning accumulates characters removed by pruning at a handoff.
func (s *State) RecordPruning(rawLen, prunedLen int) {
	if saved := rawLen - prunedLen; saved > 0 {
		s.mu.Lock()
		s.charsSaved += saved
		s.mu.Unlock()
	}
}

// Finish stamps the end of the run.
func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTime = time.Now()
}

func (s *State) bucketLocked(name string) *AgentStats {
	a, ok := s.agents[name]
	if !ok {
		a = &AgentStats{Name: name, Status: "idle"}
		s.agents[name] = a
		s.order = append(s.order, name)
	}
	return a
}

// TotalTokens derives the run total from the per-agent buckets.
func (s *State) TotalTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalLocked().TotalTokens
}

// Usage aggregates usage across all agent buckets.
func (s *State) Usage() model.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalLocked()
}

func (s *State) totalLocked() model.TokenUsage {
	var total model.TokenUsage
	for _, a := range s.agents {
		total.Add(a.Usage)
	}
	return total
}

// Snapshot returns a point-in-time copy safe for serialization.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]AgentStats, 0, len(s.order))
	for _, name := range s.order {
		agents = append(agents, *s.agents[name])
	}

	feed := s.toolCalls
	if len(feed) > activityFeedLimit {
		feed = feed[len(feed)-activityFeedLimit:]
	}
	calls := make([]ToolCallRecord, len(feed))
	copy(calls, feed)

	return Snapshot{
		SessionID:       s.sessionID,
		Query:           s.query,
		Phase:           s.phase,
		Agents:          agents,
		ToolCalls:       calls,
		TotalTokens:     s.totalLocked().TotalTokens,
		TotalCharsSaved: s.charsSaved,
		StartTime:       s.startTime,
		EndTime:         s.endTime,
	}
}

// OptimizationSummary reports pruning efficiency: the actual token cost from
// per-agent tracking plus the estimated pre-pruning cost (4 chars per token
// heuristic).
type OptimizationSummary struct {
	ActualTokens              int `json:"actual_tokens"`
	TotalCharsSaved           int `json:"total_chars_saved"`
	EstimatedTokensSaved      int `json:"estimated_tokens_saved"`
	EstimatedPrePruningTokens int `json:"estimated_pre_pruning_tokens"`
}

// Optimization computes the pruning efficiency summary.
func (s *State) Optimization() OptimizationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actual := s.totalLocked().TotalTokens
	saved := s.charsSaved / 4
	return OptimizationSummary{
		ActualTokens:              actual,
		TotalCharsSaved:           s.charsSaved,
		EstimatedTokensSaved:      saved,
		EstimatedPrePruningTokens: actual + saved,
	}
}
