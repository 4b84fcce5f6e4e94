package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// taskOutcome classifies how one task delegation resolved.
type taskOutcome int

const (
	// outcomeCompleted: the delegated run completed; task marked completed.
	outcomeCompleted taskOutcome = iota
	// outcomeSkipped: the run was rejected; task marked skipped, not failed.
	outcomeSkipped
	// outcomeFailed: agent failure, QA gate failure, or poll timeout.
	outcomeFailed
	// outcomeWaiting: the run awaits external approval; the plan must pause
	// with the task left in its delegated state for later resumption.
	outcomeWaiting
)

// taskResult is the resolution of one task delegation. failure is set only
// for outcomeFailed and carries the context recorded on the paused plan.
type taskResult struct {
	outcome taskOutcome
	failure *TaskError
}

// runTask turns one plan task into a delegated agent run and resolves it to
// a terminal outcome. The returned error is reserved for infrastructure
// problems and cancellation; task-level failures come back as outcomeFailed.
func (e *Engine) runTask(ctx context.Context, plan *models.Plan, phase *models.Phase, task *models.PlanTask) (taskResult, error) {
	// Crash recovery: a task left running with a run attached is re-polled,
	// not re-delegated.
	if task.Status == models.TaskStatusRunning && task.RunID != "" {
		return e.awaitRun(ctx, plan, task)
	}

	sessionID, err := e.sessions.GetOrCreateActiveSession(ctx, plan.RepositoryID)
	if err != nil {
		return taskResult{}, fmt.Errorf("acquire session for repository %s: %w", plan.RepositoryID, err)
	}

	prompt := buildPrompt(plan, phase, task)

	runID, err := e.agent.Delegate(ctx, sessionID, task.ID, prompt)
	if err != nil {
		return taskResult{}, fmt.Errorf("delegate task %s: %w", task.ID, err)
	}

	now := time.Now().UTC()
	task.RunID = runID
	task.SessionID = sessionID
	task.Status = models.TaskStatusRunning
	task.Attempts++
	task.StartedAt = &now
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return taskResult{}, fmt.Errorf("persist task start: %w", err)
	}

	e.publish(EventTaskStarted, plan.ID, phase.ID, task.ID, task.Title)

	// Fire-and-forget: the agent works out-of-band and reports by mutating
	// the run record. From here on the engine only observes.
	if err := e.agent.Start(ctx, runID); err != nil {
		return taskResult{}, fmt.Errorf("start agent run %s: %w", runID, err)
	}

	return e.awaitRun(ctx, plan, task)
}

// awaitRun polls the delegated run at a fixed interval until it reaches a
// decidable status or the polling ceiling elapses. Each iteration re-reads
// the plan so a concurrent cancel aborts the wait promptly.
func (e *Engine) awaitRun(ctx context.Context, plan *models.Plan, task *models.PlanTask) (taskResult, error) {
	deadline := time.Now().Add(e.cfg.PollTimeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		current, err := e.store.GetPlan(ctx, plan.ID)
		if err != nil {
			return taskResult{}, fmt.Errorf("reload plan %s: %w", plan.ID, err)
		}
		if current.Status == models.PlanStatusFailed {
			return taskResult{}, ErrPlanCancelled
		}

		run, err := e.agent.RunStatus(ctx, task.RunID)
		if err != nil {
			return taskResult{}, fmt.Errorf("poll run %s: %w", task.RunID, err)
		}

		switch run.Status {
		case models.RunStatusCompleted:
			return e.resolveCompleted(ctx, plan, task, run)
		case models.RunStatusFailed, models.RunStatusQAGateFailed:
			msg := run.ErrorText
			if msg == "" {
				msg = fmt.Sprintf("agent run %s ended with status %s", run.ID, run.Status)
			}
			return e.resolveFailed(ctx, plan, task, msg)
		case models.RunStatusRejected:
			return e.resolveSkipped(ctx, plan, task)
		case models.RunStatusWaitingApproval:
			// Leave the task in its delegated state; the plan pauses and a
			// later resume re-enters this wait.
			return taskResult{outcome: outcomeWaiting}, nil
		}

		if time.Now().After(deadline) {
			msg := fmt.Sprintf("%v: no terminal status after %s", ErrPollTimeout, e.cfg.PollTimeout)
			return e.resolveFailed(ctx, plan, task, msg)
		}

		select {
		case <-ctx.Done():
			return taskResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) resolveCompleted(ctx context.Context, plan *models.Plan, task *models.PlanTask, run *models.AgentRun) (taskResult, error) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusCompleted
	task.CommitSHA = run.CommitSHA
	task.LastError = ""
	task.CompletedAt = &now
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return taskResult{}, fmt.Errorf("persist task completion: %w", err)
	}
	if err := e.refreshPlanTaskCounters(ctx, plan); err != nil {
		return taskResult{}, err
	}
	e.publish(EventTaskCompleted, plan.ID, task.PhaseID, task.ID, task.Title)
	return taskResult{outcome: outcomeCompleted}, nil
}

func (e *Engine) resolveFailed(ctx context.Context, plan *models.Plan, task *models.PlanTask, msg string) (taskResult, error) {
	task.Status = models.TaskStatusFailed
	task.LastError = msg
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return taskResult{}, fmt.Errorf("persist task failure: %w", err)
	}
	e.publish(EventTaskFailed, plan.ID, task.PhaseID, task.ID, msg)
	return taskResult{
		outcome: outcomeFailed,
		failure: NewTaskError(task.ID, task.Title, msg, nil),
	}, nil
}

func (e *Engine) resolveSkipped(ctx context.Context, plan *models.Plan, task *models.PlanTask) (taskResult, error) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusSkipped
	task.CompletedAt = &now
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return taskResult{}, fmt.Errorf("persist task skip: %w", err)
	}
	if err := e.refreshPlanTaskCounters(ctx, plan); err != nil {
		return taskResult{}, err
	}
	e.publish(EventTaskSkipped, plan.ID, task.PhaseID, task.ID, task.Title)
	return taskResult{outcome: outcomeSkipped}, nil
}

// refreshPlanTaskCounters recomputes the plan's completed-task counter from
// the authoritative task set and persists it. The caller's plan is updated
// in place so later decisions see fresh counts. Only the counter columns are
// written: the caller's copy may be stale, and a concurrent cancel must not
// be undone by it.
func (e *Engine) refreshPlanTaskCounters(ctx context.Context, plan *models.Plan) error {
	tasks, err := e.store.ListTasksByPlan(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("list plan tasks: %w", err)
	}
	completed := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	plan.CompletedTasks = completed
	plan.TotalTasks = len(tasks)
	return e.store.UpdatePlanCounters(ctx, plan)
}

// buildPrompt composes the delegated agent prompt from plan context and the
// task payload. When the task has failed before, the prior error is included
// as corrective context.
func buildPrompt(plan *models.Plan, phase *models.Phase, task *models.PlanTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n", plan.Title)
	fmt.Fprintf(&b, "Phase: %s\n", phase.Title)
	fmt.Fprintf(&b, "Task: %s\n\n", task.Title)
	b.WriteString(task.Description)
	if task.Attempts > 0 && task.LastError != "" {
		fmt.Fprintf(&b, "\n\nA previous attempt at this task failed with:\n%s\n", task.LastError)
		b.WriteString("Correct the underlying problem before repeating the work.")
	}
	return b.String()
}
