package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// RunStore is the subset of persistence the service needs for agent runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.AgentRun) error
	GetRun(ctx context.Context, id string) (*models.AgentRun, error)
	UpdateRun(ctx context.Context, run *models.AgentRun) error
}

// CLIRunner abstracts the claude CLI so tests can script outcomes.
type CLIRunner interface {
	Invoke(ctx context.Context, dir, prompt string) (*InvocationResult, error)
}

// ServiceConfig tunes the agent execution service.
type ServiceConfig struct {
	// WorkDir is the repository checkout the agent operates in.
	WorkDir string
	// RunTimeout bounds a single CLI invocation including gates.
	RunTimeout time.Duration
	// RequireApproval holds completed runs in waiting_approval until a
	// human approves or rejects them.
	RequireApproval bool
}

// DefaultRunTimeout bounds a single agent run.
const DefaultRunTimeout = 30 * time.Minute

// Service executes delegated tasks asynchronously. Delegate records a
// pending run; Start launches it in the background; RunStatus reads back the
// persisted state. All state lives in the store, so a restarted process can
// keep polling runs it did not start.
type Service struct {
	store  RunStore
	runner CLIRunner
	git    GitInspector
	gates  GateRunner
	cfg    ServiceConfig

	wg sync.WaitGroup
}

// NewService creates an agent execution service. git and gates may be nil,
// which disables commit capture and quality gates respectively.
func NewService(store RunStore, runner CLIRunner, git GitInspector, gates GateRunner, cfg ServiceConfig) *Service {
	if store == nil {
		panic("agent: store is required")
	}
	if runner == nil {
		panic("agent: runner is required")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Service{
		store:  store,
		runner: runner,
		git:    git,
		gates:  gates,
		cfg:    cfg,
	}
}

// Delegate records a new pending run for a task and returns its id.
// Nothing executes until Start is called with the returned id.
func (s *Service) Delegate(ctx context.Context, sessionID, taskID, prompt string) (string, error) {
	run := &models.AgentRun{
		ID:         models.NewID(),
		SessionID:  sessionID,
		PlanTaskID: taskID,
		Prompt:     prompt,
		Status:     models.RunStatusPending,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("record run for task %s: %w", taskID, err)
	}
	return run.ID, nil
}

// Start launches a previously delegated run in the background and returns
// immediately. The run's progress is observable through RunStatus.
func (s *Service) Start(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != models.RunStatusPending {
		return fmt.Errorf("run %s is %s, only pending runs can start", runID, run.Status)
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now
	if err := s.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run %s running: %w", runID, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the caller's context: the engine polls the run
		// rather than awaiting this goroutine.
		runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()
		s.execute(runCtx, run)
	}()

	return nil
}

// RunStatus returns the persisted state of a run.
func (s *Service) RunStatus(ctx context.Context, runID string) (*models.AgentRun, error) {
	return s.store.GetRun(ctx, runID)
}

// Approve releases a run held in waiting_approval as completed.
func (s *Service) Approve(ctx context.Context, runID string) error {
	return s.resolveHeldRun(ctx, runID, models.RunStatusCompleted)
}

// Reject marks a run held in waiting_approval as rejected. The engine skips
// the task instead of treating it as a failure.
func (s *Service) Reject(ctx context.Context, runID string) error {
	return s.resolveHeldRun(ctx, runID, models.RunStatusRejected)
}

// Wait blocks until all in-flight runs have finished. Intended for shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) resolveHeldRun(ctx context.Context, runID string, status models.RunStatus) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != models.RunStatusWaitingApproval {
		return fmt.Errorf("run %s is %s, only waiting_approval runs can be resolved", runID, run.Status)
	}

	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if err := s.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("resolve run %s: %w", runID, err)
	}
	return nil
}

// execute drives one run to a terminal (or waiting_approval) state.
func (s *Service) execute(ctx context.Context, run *models.AgentRun) {
	result, err := s.runner.Invoke(ctx, s.cfg.WorkDir, run.Prompt)
	if err != nil {
		s.finish(run, models.RunStatusFailed, "", "", err.Error())
		return
	}
	if result.Error != nil {
		s.finish(run, models.RunStatusFailed, result.Output, "", result.Error.Error())
		return
	}

	parsed, _ := ParseClaudeOutput(result.Output)
	if result.ExitCode != 0 {
		errText := parsed.Error
		if errText == "" {
			errText = fmt.Sprintf("agent exited with code %d", result.ExitCode)
		}
		s.finish(run, models.RunStatusFailed, parsed.Content, "", errText)
		return
	}
	if parsed.Error != "" {
		s.finish(run, models.RunStatusFailed, parsed.Content, "", parsed.Error)
		return
	}

	commit := ""
	if s.git != nil {
		sha, err := s.git.HeadCommit(ctx, s.cfg.WorkDir)
		if err == nil {
			commit = sha
		}
	}

	if s.gates != nil {
		results, err := s.gates.Run(ctx, s.cfg.WorkDir)
		if err != nil {
			s.finish(run, models.RunStatusFailed, parsed.Content, commit, fmt.Sprintf("quality gates aborted: %v", err))
			return
		}
		if !AllPassed(results) {
			s.finish(run, models.RunStatusQAGateFailed, parsed.Content, commit, gateFailureText(results))
			return
		}
	}

	if s.cfg.RequireApproval {
		s.hold(run, parsed.Content, commit)
		return
	}
	s.finish(run, models.RunStatusCompleted, parsed.Content, commit, "")
}

func (s *Service) finish(run *models.AgentRun, status models.RunStatus, output, commit, errText string) {
	now := time.Now().UTC()
	run.Status = status
	run.Output = output
	run.CommitSHA = commit
	run.ErrorText = errText
	run.CompletedAt = &now
	s.persist(run)
}

func (s *Service) hold(run *models.AgentRun, output, commit string) {
	run.Status = models.RunStatusWaitingApproval
	run.Output = output
	run.CommitSHA = commit
	s.persist(run)
}

func (s *Service) persist(run *models.AgentRun) {
	// Best effort with a fresh context: the run context may already be
	// cancelled, and losing the final state would strand the task.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.store.UpdateRun(ctx, run)
}

func gateFailureText(results []GateResult) string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name)
		}
	}
	return fmt.Sprintf("quality gates failed: %s", strings.Join(failed, ", "))
}
