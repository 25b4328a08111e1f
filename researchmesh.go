// Package researchmesh provides a high-level façade over the research
// orchestration core: persona-defined specialist agents, the tool gateway
// and the phase state machine, wired from a single configuration. Most
// applications interact with this package by:
//  1. Loading a persona.Config and the markdown role profiles
//  2. Creating a ResearchMesh via New() with a model factory per role
//  3. Running sessions with Research()
//
// The façade delegates orchestration to research.Orchestrator while keeping
// setup concise. Defaults are safe for local development; production
// deployments typically supply a structured logger and real tool providers.
package researchmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/gateway"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/monitor"
	"github.com/hupe1980/researchmesh/persona"
	"github.com/hupe1980/researchmesh/research"
)

// Role names with fixed responsibilities in the workflow. Any other profile
// name becomes a dispatchable specialist.
const (
	RoleSynthesis = "Synthesis"
	RoleMomentum  = "Momentum"
)

// Options configures a ResearchMesh.
type Options struct {
	// Config supplies caps, mode and output settings. Defaults to
	// persona.DefaultConfig().
	Config *persona.Config

	// Providers are the tool gateways shared by all specialists. Their
	// lifecycle is owned by each research session, never by the agents.
	Providers []gateway.Provider

	// Detector overrides completion detection.
	Detector research.CompletionDetector

	// Monitor receives usage and phase records. Defaults to a fresh State.
	Monitor *monitor.State

	Logger logging.Logger
}

// ModelFactory supplies the model implementation for a role name.
type ModelFactory func(role string) model.Model

// ResearchMesh wires persona profiles, models and tool providers into a
// ready-to-run research system. Safe to reuse across sessions: each Research
// call builds a fresh session with fresh connection lifecycle, and agent
// histories are reset at session start.
type ResearchMesh struct {
	synthesis   *agent.Agent
	momentum    *agent.Agent
	specialists []*agent.Agent
	opts        Options
}

// New builds a mesh from role profiles. A profile named "Synthesis" is
// required; a "Momentum" profile is used by the momentum and all modes;
// every other profile becomes a specialist.
func New(models ModelFactory, profiles map[string]*persona.Profile, optFns ...func(o *Options)) (*ResearchMesh, error) {
	opts := Options{
		Config:  persona.DefaultConfig(),
		Monitor: monitor.NewState(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if _, ok := profiles[RoleSynthesis]; !ok {
		return nil, fmt.Errorf("researchmesh: a %q profile is required", RoleSynthesis)
	}

	m := &ResearchMesh{opts: opts}

	newAgent := func(p *persona.Profile, withTools bool) *agent.Agent {
		return agent.New(p.Name, models(p.Name), func(o *agent.Options) {
			o.SystemPrompt = p.SystemPrompt()
			o.MaxToolCycles = opts.Config.MaxToolCycles
			o.RetryBudget = opts.Config.RetryBudget
			o.Logger = opts.Logger
			if withTools {
				o.Providers = opts.Providers
			}
			if opts.Monitor != nil {
				// Tool invocations feed the monitor's activity feed and
				// per-agent counters.
				o.OnToolCall = opts.Monitor.RecordToolCall
			}
		})
	}

	for name, p := range profiles {
		switch name {
		case RoleSynthesis:
			// The synthesis role reasons over specialist output only; it
			// never calls tools itself.
			m.synthesis = newAgent(p, false)
		case RoleMomentum:
			m.momentum = newAgent(p, true)
		default:
			m.specialists = append(m.specialists, newAgent(p, true))
		}
	}
	if len(m.specialists) == 0 {
		return nil, fmt.Errorf("researchmesh: at least one specialist profile is required")
	}
	return m, nil
}

// Research runs one end-to-end session for the query.
func (m *ResearchMesh) Research(ctx context.Context, query string) (*core.ResearchSession, error) {
	// Connection sets are single-use by contract, so each session gets its
	// own around the shared providers.
	connections := gateway.NewConnectionSet(m.opts.Providers, func(o *gateway.ConnectionSetOptions) {
		o.Logger = m.opts.Logger
	})

	orchestrator := research.NewOrchestrator(m.synthesis, m.specialists, func(o *research.Options) {
		o.MaxIterations = m.opts.Config.MaxIterations
		o.Mode = research.Mode(m.opts.Config.Mode)
		o.Momentum = m.momentum
		o.Connections = connections
		o.Monitor = m.opts.Monitor
		o.OutputDir = m.opts.Config.OutputDir
		o.Logger = m.opts.Logger
		if m.opts.Detector != nil {
			o.Detector = m.opts.Detector
		}
	})

	return orchestrator.Run(ctx, query)
}

// Monitor returns the monitoring state for observers.
func (m *ResearchMesh) Monitor() *monitor.State { return m.opts.Monitor }
