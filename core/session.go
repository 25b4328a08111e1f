package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase identifies the orchestrator state for a research session.
type Phase string

const (
	// PhaseGathering is the iterative synthesis-driven loop.
	PhaseGathering Phase = "GATHERING"
	// PhaseDispatching is parallel specialist execution within an iteration.
	PhaseDispatching Phase = "DISPATCHING"
	// PhaseFinalizing is the terminal synthesis call.
	PhaseFinalizing Phase = "FINALIZING"
	// PhaseComplete is the successful terminal state.
	PhaseComplete Phase = "COMPLETE"
	// PhaseAborted is the degraded terminal state (cap exhausted or fatal failure).
	PhaseAborted Phase = "ABORTED"
)

// ResearchGap is a targeted request the synthesis role addresses to a named
// specialist. Gaps live for exactly one iteration; they are consumed by the
// dispatch step and never persisted beyond it.
type ResearchGap struct {
	Specialist string // Specialist role name, e.g. "Quantitative"
	Request    string // Free-text ask
}

// SpecialistResult records one specialist's contribution to an iteration.
// Raw is kept verbatim for the final report; Pruned is the copy forwarded
// into the synthesis context. Failed marks an absent contribution.
type SpecialistResult struct {
	Specialist string
	Request    string
	Raw        string
	Pruned     string
	Failed     bool
	Err        string
}

// IterationRecord captures one gathering/dispatching round.
type IterationRecord struct {
	Iteration int
	Gaps      []ResearchGap
	Results   []SpecialistResult
}

// ResearchSession is a single end-to-end run. It is created when a query
// arrives, mutated only by the orchestrator, and discarded (or exported)
// when the final phase emits its report. It is safe for concurrent reads by
// observers.
type ResearchSession struct {
	mu         sync.RWMutex
	id         string
	query      string
	phase      Phase
	iterations []IterationRecord
	finalRep   string
	momentum   string
	incomplete bool
	created    time.Time
}

// NewResearchSession creates a fresh session for a query.
func NewResearchSession(query string) *ResearchSession {
	return &ResearchSession{
		id:      uuid.NewString(),
		query:   query,
		phase:   PhaseGathering,
		created: time.Now(),
	}
}

// ID returns the session identifier.
func (s *ResearchSession) ID() string { return s.id }

// Query returns the original research query.
func (s *ResearchSession) Query() string { return s.query }

// Created returns the session creation time.
func (s *ResearchSession) Created() time.Time { return s.created }

// Phase returns the current phase.
func (s *ResearchSession) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase transitions the session to a new phase.
func (s *ResearchSession) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// RecordIteration appends the record of a completed iteration.
func (s *ResearchSession) RecordIteration(rec IterationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations = append(s.iterations, rec)
}

// Iterations returns a defensive copy of all recorded iterations.
func (s *ResearchSession) Iterations() []IterationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IterationRecord, len(s.iterations))
	copy(out, s.iterations)
	return out
}

// SetFinalReport stores the terminal synthesis output.
func (s *ResearchSession) SetFinalReport(report string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalRep = report
}

// FinalReport returns the terminal synthesis output, if any.
func (s *ResearchSession) FinalReport() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalRep
}

// SetMomentumAnalysis stores the momentum finalization output.
func (s *ResearchSession) SetMomentumAnalysis(analysis string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.momentum = analysis
}

// MomentumAnalysis returns the momentum finalization output, if any.
func (s *ResearchSession) MomentumAnalysis() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.momentum
}

// MarkIncomplete flags the session as based on incomplete research (cap
// exhausted or partial specialist failure).
func (s *ResearchSession) MarkIncomplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomplete = true
}

// Incomplete reports whether the session result is flagged as based on
// incomplete research.
func (s *ResearchSession) Incomplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incomplete
}

// Done reports whether the session reached a terminal phase.
func (s *ResearchSession) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == PhaseComplete || s.phase == PhaseAborted
}
