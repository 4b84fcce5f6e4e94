// Package engine implements the plan execution core: the plan executor state
// machine, per-phase execution strategies, dependency resolution, delegation
// of tasks to the agent execution service, and the polling loop that
// interprets delegated run outcomes.
//
// The engine is deliberately thin on I/O: it talks to a RecordStore for all
// durable state, an AgentService for agent work, and a SessionProvider for
// repository sessions. Every state transition is persisted before the next
// dependent action so a process restart can resume from stored state alone.
package engine

import (
	"context"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// RecordStore is the durable store for plans, phases, tasks, and runs.
// *store.Store satisfies this interface.
type RecordStore interface {
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	UpdatePlanCounters(ctx context.Context, plan *models.Plan) error
	GetPhase(ctx context.Context, id string) (*models.Phase, error)
	ListPhases(ctx context.Context, planID string) ([]*models.Phase, error)
	UpdatePhase(ctx context.Context, phase *models.Phase) error
	GetTask(ctx context.Context, id string) (*models.PlanTask, error)
	ListTasksByPhase(ctx context.Context, phaseID string) ([]*models.PlanTask, error)
	ListTasksByPlan(ctx context.Context, planID string) ([]*models.PlanTask, error)
	UpdateTask(ctx context.Context, task *models.PlanTask) error
}

// AgentService is the external agent execution boundary. Delegate must
// return promptly with a pending run record; Start kicks off the actual
// agent work out-of-band; RunStatus reports the run's current state.
// The engine never holds a handle that can interrupt a running agent.
type AgentService interface {
	Delegate(ctx context.Context, sessionID, taskID, prompt string) (runID string, err error)
	Start(ctx context.Context, runID string) error
	RunStatus(ctx context.Context, runID string) (*models.AgentRun, error)
}

// SessionProvider supplies the active agent session for a repository,
// creating one if needed.
type SessionProvider interface {
	GetOrCreateActiveSession(ctx context.Context, repositoryID string) (string, error)
}

// Config holds engine tuning parameters.
type Config struct {
	// PollInterval is the fixed interval between delegated run status checks.
	PollInterval time.Duration
	// PollTimeout is the hard ceiling on total time waiting for one run.
	// Exceeding it fails the task; the engine never polls indefinitely.
	PollTimeout time.Duration
	// MaxParallel bounds concurrent task dispatch within one readiness round.
	// Zero or negative means no bound beyond the round size.
	MaxParallel int
}

// DefaultConfig returns engine defaults suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		PollTimeout:  30 * time.Minute,
		MaxParallel:  4,
	}
}

// Engine drives plan execution against the record store.
type Engine struct {
	store    RecordStore
	agent    AgentService
	sessions SessionProvider
	events   EventSink
	cfg      Config
	leases   *leaseRegistry
}

// New creates an Engine. The events sink is optional and may be nil.
func New(store RecordStore, agent AgentService, sessions SessionProvider, events EventSink, cfg Config) *Engine {
	if store == nil {
		panic("engine: record store is required")
	}
	if agent == nil {
		panic("engine: agent service is required")
	}
	if sessions == nil {
		panic("engine: session provider is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	return &Engine{
		store:    store,
		agent:    agent,
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		leases:   newLeaseRegistry(),
	}
}
