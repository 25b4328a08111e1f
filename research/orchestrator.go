// Package research implements the session-level phase state machine: a
// stateful synthesis role drives bounded gathering iterations, specialist
// agents execute the resulting research gaps in parallel, and a terminal
// finalization pass emits the report.
//
// The orchestrator owns everything the session shares: the connection set
// (opened before any concurrent work, closed exactly once after the last
// phase), the session record with its verbatim iteration history, and the
// monitoring state. Specialists own nothing but their conversations.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/gateway"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/monitor"
	"github.com/hupe1980/researchmesh/prune"
)

// Mode selects which finalization passes run after gathering.
type Mode string

const (
	// ModeFundamental runs only the synthesis thesis finalization.
	ModeFundamental Mode = "fundamental"
	// ModeMomentum runs only the momentum finalization.
	ModeMomentum Mode = "momentum"
	// ModeAll runs both.
	ModeAll Mode = "all"
)

// Options configures an Orchestrator.
type Options struct {
	// MaxIterations is the hard cap on gathering iterations.
	MaxIterations int

	// Mode selects the finalization passes. Defaults to ModeFundamental.
	Mode Mode

	// Detector decides when a synthesis turn signals completion.
	Detector CompletionDetector

	// Prune filters specialist output before it enters the synthesis
	// context. The verbatim record is never pruned.
	Prune func(raw string) string

	// Momentum is the optional momentum specialist used by ModeMomentum and
	// ModeAll.
	Momentum *agent.Agent

	// Connections is the provider set whose lifecycle the orchestrator
	// owns. Optional; agents may also run tool-free.
	Connections *gateway.ConnectionSet

	// Monitor receives phase, usage and pruning records. Optional.
	Monitor *monitor.State

	// OutputDir enables markdown report export when non-empty.
	OutputDir string

	Logger logging.Logger
}

// Orchestrator drives one research session end to end. Construct a fresh
// orchestrator (with fresh agents) per session rather than reusing one.
type Orchestrator struct {
	synthesis   *agent.Agent
	specialists map[string]*agent.Agent
	names       []string
	opts        Options
}

// NewOrchestrator creates an orchestrator around a synthesis agent and its
// named specialists.
func NewOrchestrator(synthesis *agent.Agent, specialists []*agent.Agent, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxIterations: 5,
		Mode:          ModeFundamental,
		Detector:      NewDominantLineDetector(),
		Prune:         func(raw string) string { return prune.Output(raw) },
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	o := &Orchestrator{
		synthesis:   synthesis,
		specialists: make(map[string]*agent.Agent, len(specialists)),
		opts:        opts,
	}
	for _, s := range specialists {
		o.specialists[s.Name()] = s
		o.names = append(o.names, s.Name())
	}
	return o
}

// Run executes a full research session for the query. The returned session
// is always non-nil and carries whatever was gathered, even on error; its
// phase tells how the run ended.
func (o *Orchestrator) Run(ctx context.Context, query string) (*core.ResearchSession, error) {
	session := core.NewResearchSession(query)
	log := o.opts.Logger

	if o.opts.Monitor != nil {
		o.opts.Monitor.Reset(session.ID(), query)
	}
	o.setPhase(session, core.PhaseGathering)

	// Pre-connect every provider in this call frame, before any concurrent
	// specialist work, and tear down in the same frame after every phase.
	// No branch spawned below ever opens or closes a connection.
	if o.opts.Connections != nil {
		if err := o.opts.Connections.Open(ctx); err != nil {
			log.Warn("research.connect.partial", "error", err.Error())
		}
		defer o.opts.Connections.Close()
	}

	// Fresh histories bound to session start.
	o.synthesis.ResetHistory()
	for _, s := range o.specialists {
		s.ResetHistory()
	}
	if o.opts.Momentum != nil {
		o.opts.Momentum.ResetHistory()
	}

	log.Info("research.session.start", "session_id", session.ID(), "query", query, "mode", string(o.opts.Mode))

	output, err := o.runAgent(ctx, o.synthesis, o.initialPrompt(query))
	if err != nil {
		return o.abort(session, fmt.Errorf("synthesis failed on initial analysis: %w", err))
	}

	completed := false
	for iteration := 1; iteration <= o.opts.MaxIterations; iteration++ {
		if o.opts.Detector.Detect(output) {
			log.Info("research.completion_signal", "iteration", iteration)
			completed = true
			break
		}

		gaps := ParseGaps(output, o.names)
		if len(gaps) == 0 {
			log.Warn("research.ambiguous_synthesis", "iteration", iteration, "output_len", len(output))
			gaps = BroadFallbackGaps(o.names)
		}
		log.Info("research.iteration", "iteration", iteration, "max", o.opts.MaxIterations, "gaps", len(gaps))

		o.setPhase(session, core.PhaseDispatching)
		results := o.dispatch(ctx, gaps)

		failed := 0
		for i := range results {
			if results[i].Failed {
				failed++
				session.MarkIncomplete()
				continue
			}
			pruned := o.opts.Prune(results[i].Raw)
			if o.opts.Monitor != nil {
				o.opts.Monitor.RecordPruning(len(results[i].Raw), len(pruned))
			}
			results[i].Pruned = pruned
		}
		if failed == len(results) {
			return o.abort(session, fmt.Errorf("no specialist produced input in iteration %d", iteration))
		}

		session.RecordIteration(core.IterationRecord{Iteration: iteration, Gaps: gaps, Results: results})

		o.setPhase(session, core.PhaseGathering)
		output, err = o.runAgent(ctx, o.synthesis, o.iterationFeedback(iteration, results))
		if err != nil {
			return o.abort(session, fmt.Errorf("synthesis failed on iteration %d feedback: %w", iteration, err))
		}
	}
	if !completed && o.opts.Detector.Detect(output) {
		completed = true
	}
	if !completed {
		log.Warn("research.iteration_cap", "max", o.opts.MaxIterations)
		session.MarkIncomplete()
	}

	// Finalization runs even after cap exhaustion, on whatever was gathered.
	o.setPhase(session, core.PhaseFinalizing)

	if o.opts.Mode == ModeFundamental || o.opts.Mode == ModeAll {
		report, err := o.runAgent(ctx, o.synthesis, o.finalPrompt(query, session.Incomplete()))
		if err != nil {
			return o.abort(session, fmt.Errorf("final synthesis failed: %w", err))
		}
		session.SetFinalReport(report)
	}

	if (o.opts.Mode == ModeMomentum || o.opts.Mode == ModeAll) && o.opts.Momentum != nil {
		analysis, err := o.runAgent(ctx, o.opts.Momentum, "Finalize the momentum thesis for: "+query)
		if err != nil {
			if o.opts.Mode == ModeMomentum {
				return o.abort(session, fmt.Errorf("momentum finalization failed: %w", err))
			}
			log.Warn("research.momentum.failed", "error", err.Error())
			session.MarkIncomplete()
		} else {
			session.SetMomentumAnalysis(analysis)
		}
	}

	if completed {
		o.setPhase(session, core.PhaseComplete)
	} else {
		o.setPhase(session, core.PhaseAborted)
	}
	if o.opts.Monitor != nil {
		o.opts.Monitor.Finish()
	}

	if o.opts.OutputDir != "" {
		var usage model.TokenUsage
		if o.opts.Monitor != nil {
			usage = o.opts.Monitor.Usage()
		}
		path, err := ExportReport(o.opts.OutputDir, session, o.opts.Mode, usage)
		if err != nil {
			log.Error("research.export.failed", "error", err.Error())
		} else {
			log.Info("research.export.ok", "path", path)
		}
	}

	log.Info("research.session.end", "session_id", session.ID(), "phase", string(session.Phase()), "incomplete", session.Incomplete())
	return session, nil
}

// dispatch fans out every gap to its specialist and joins on all of them;
// completion order does not matter and no result is consumed before the
// join. A failed specialist yields a Failed result, never a panic or an
// early return.
func (o *Orchestrator) dispatch(ctx context.Context, gaps []core.ResearchGap) []core.SpecialistResult {
	results := make([]core.SpecialistResult, len(gaps))
	var wg sync.WaitGroup

	for i, gap := range gaps {
		results[i] = core.SpecialistResult{Specialist: gap.Specialist, Request: gap.Request}

		specialist, ok := o.specialists[gap.Specialist]
		if !ok {
			results[i].Failed = true
			results[i].Err = "no such specialist"
			continue
		}

		wg.Add(1)
		go func(i int, specialist *agent.Agent, request string) {
			defer wg.Done()
			raw, err := o.runAgent(ctx, specialist, request)
			if err != nil {
				o.opts.Logger.Error("research.specialist.failed", "specialist", results[i].Specialist, "error", err.Error())
				results[i].Failed = true
				results[i].Err = err.Error()
				return
			}
			results[i].Raw = raw
		}(i, specialist, gap.Request)
	}
	wg.Wait()
	return results
}

// runAgent executes one agent turn with monitoring bookkeeping around it.
func (o *Orchestrator) runAgent(ctx context.Context, a *agent.Agent, task string) (string, error) {
	if o.opts.Monitor != nil {
		o.opts.Monitor.AgentStarted(a.Name(), task)
	}
	out, err := a.Execute(ctx, task)
	if o.opts.Monitor != nil {
		var usage model.TokenUsage
		if snap := a.LastResponse(); snap != nil {
			usage = snap.Usage
		}
		o.opts.Monitor.AgentFinished(a.Name(), usage, err != nil)
	}
	return out, err
}

func (o *Orchestrator) setPhase(session *core.ResearchSession, phase core.Phase) {
	from := session.Phase()
	session.SetPhase(phase)
	if o.opts.Monitor != nil {
		o.opts.Monitor.SetPhase(string(phase))
	}
	if pl, ok := o.opts.Logger.(logging.PhaseLogger); ok {
		pl.LogPhaseTransition(string(from), string(phase), len(session.Iterations()))
		return
	}
	o.opts.Logger.Debug("research.phase", "from", string(from), "to", string(phase))
}

func (o *Orchestrator) abort(session *core.ResearchSession, err error) (*core.ResearchSession, error) {
	session.MarkIncomplete()
	o.setPhase(session, core.PhaseAborted)
	if o.opts.Monitor != nil {
		o.opts.Monitor.Finish()
	}
	o.opts.Logger.Error("research.session.aborted", "session_id", session.ID(), "error", err.Error())
	return session, err
}

func (o *Orchestrator) initialPrompt(query string) string {
	return fmt.Sprintf(`Research query: %s

Analyze the query and decide what each specialist must investigate first. Address each request with a section of the form "## For <Specialist> Agent:" followed by the specific ask. Available specialists: %s.
If you already have enough information for a final thesis, simply output "Done".`, query, strings.Join(o.names, ", "))
}

func (o *Orchestrator) iterationFeedback(iteration int, results []core.SpecialistResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Specialist Responses (Iteration %d):\n", iteration)
	for _, r := range results {
		body := r.Pruned
		if r.Failed {
			// The synthesis role must reason around the hole, not wait for it.
			body = fmt.Sprintf("ERROR: the %s specialist failed to respond. Treat this contribution as absent.", r.Specialist)
		}
		fmt.Fprintf(&b, "\n## %s Analysis:\n%s\n", r.Specialist, body)
	}
	fmt.Fprintf(&b, `
---
Evaluate these results. If significant gaps remain, request targeted follow-ups (Iterations left: %d).
If you have enough information for a final thesis, simply output "Done".
`, o.opts.MaxIterations-iteration)
	return b.String()
}

func (o *Orchestrator) finalPrompt(query string, incomplete bool) string {
	prompt := fmt.Sprintf("Produce the final research thesis for: %s\nUse the full history of specialist findings already in this conversation; do not request further research.", query)
	if incomplete {
		prompt += "\nThe research budget was exhausted before all gaps were closed: state explicitly that this thesis is based on incomplete research."
	}
	return prompt
}
