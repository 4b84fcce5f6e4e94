package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// Execute drives a plan to completion, a pause boundary, or failure. It
// acquires the per-plan lease for the duration, iterates phases in ascending
// order skipping completed ones, and persists every transition so execution
// is resumable across restarts.
//
// Task-level failures pause the plan with the failing task as context and
// are returned to the caller as a *TaskError; only configuration and
// infrastructure errors fail the plan outright.
func (e *Engine) Execute(ctx context.Context, planID string) error {
	if err := e.leases.acquire(planID); err != nil {
		return fmt.Errorf("plan %s: %w", planID, err)
	}
	defer e.leases.release(planID)

	return e.execute(ctx, planID)
}

// Resume transitions a paused plan back to running and re-invokes the
// execute routine. Completed phases are skipped, so resumption is idempotent.
func (e *Engine) Resume(ctx context.Context, planID string) error {
	if err := e.leases.acquire(planID); err != nil {
		return fmt.Errorf("plan %s: %w", planID, err)
	}
	defer e.leases.release(planID)

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status != models.PlanStatusPaused {
		return fmt.Errorf("plan %s is %s, only paused plans can be resumed", planID, plan.Status)
	}

	e.publish(EventPlanResumed, planID, plan.CurrentPhaseID, plan.CurrentTaskID, plan.Title)
	return e.execute(ctx, planID)
}

// Cancel unconditionally fails the plan regardless of phase progress. It is
// immediate, not a graceful drain: an in-flight poll loop observes the
// status change on its next iteration and aborts. The agent process itself
// is not interrupted.
func (e *Engine) Cancel(ctx context.Context, planID string) error {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status == models.PlanStatusFailed {
		return nil
	}

	plan.Status = models.PlanStatusFailed
	if err := e.store.UpdatePlan(ctx, plan); err != nil {
		return fmt.Errorf("persist plan cancel: %w", err)
	}
	e.publish(EventPlanCancelled, planID, plan.CurrentPhaseID, plan.CurrentTaskID, plan.Title)
	return nil
}

func (e *Engine) execute(ctx context.Context, planID string) error {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status.IsTerminal() {
		return fmt.Errorf("plan %s is already %s", planID, plan.Status)
	}

	now := time.Now().UTC()
	plan.Status = models.PlanStatusRunning
	if plan.StartedAt == nil {
		plan.StartedAt = &now
	}
	if err := e.store.UpdatePlan(ctx, plan); err != nil {
		return fmt.Errorf("persist plan start: %w", err)
	}
	e.publish(EventPlanStarted, plan.ID, "", "", plan.Title)

	// Configuration is checked before any task runs: unknown modes and bad
	// dependency graphs fail fast without delegation.
	planTasks, err := e.store.ListTasksByPlan(ctx, plan.ID)
	if err != nil {
		return e.failPlan(ctx, plan, fmt.Errorf("list plan tasks: %w", err))
	}
	if err := ValidateTaskGraph(planTasks); err != nil {
		return e.failPlan(ctx, plan, NewConfigError(plan.ID, "%v", err))
	}

	phases, err := e.store.ListPhases(ctx, plan.ID)
	if err != nil {
		return e.failPlan(ctx, plan, fmt.Errorf("list phases: %w", err))
	}
	for _, phase := range phases {
		if !phase.ExecutionMode.Valid() {
			return e.failPlan(ctx, plan, NewConfigError(plan.ID,
				"phase %s has unknown execution mode %q", phase.ID, phase.ExecutionMode))
		}
	}

	for _, phase := range phases {
		if phase.Status == models.PhaseStatusCompleted {
			continue
		}

		plan.CurrentPhaseID = phase.ID
		if err := e.store.UpdatePlan(ctx, plan); err != nil {
			return fmt.Errorf("persist current phase: %w", err)
		}

		result, err := e.runPhase(ctx, plan, phase)
		if err != nil {
			if errors.Is(err, ErrPlanCancelled) {
				// Cancel already put the plan in its final state.
				return err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Process shutdown: leave state for the startup sweep.
				return err
			}
			return e.failPlan(ctx, plan, err)
		}

		if result.failure != nil {
			// Recoverable task failure: pause with the failing task as
			// context and surface the failure to the caller.
			if err := e.pausePlan(ctx, plan, phase.ID, result.blockID); err != nil {
				return err
			}
			return result.failure
		}

		if result.paused {
			if err := e.pausePlan(ctx, plan, phase.ID, result.blockID); err != nil {
				return err
			}
			return nil
		}

		if err := e.refreshPlanPhaseCounters(ctx, plan); err != nil {
			return err
		}

		if phase.PauseAfter {
			if err := e.pausePlan(ctx, plan, phase.ID, ""); err != nil {
				return err
			}
			return nil
		}
	}

	return e.completePlan(ctx, plan)
}

func (e *Engine) pausePlan(ctx context.Context, plan *models.Plan, phaseID, taskID string) error {
	plan.Status = models.PlanStatusPaused
	plan.CurrentPhaseID = phaseID
	plan.CurrentTaskID = taskID
	if err := e.store.UpdatePlan(ctx, plan); err != nil {
		return fmt.Errorf("persist plan pause: %w", err)
	}
	e.publish(EventPlanPaused, plan.ID, phaseID, taskID, plan.Title)
	return nil
}

func (e *Engine) completePlan(ctx context.Context, plan *models.Plan) error {
	now := time.Now().UTC()
	plan.Status = models.PlanStatusCompleted
	plan.CurrentPhaseID = ""
	plan.CurrentTaskID = ""
	plan.CompletedAt = &now
	if err := e.store.UpdatePlan(ctx, plan); err != nil {
		return fmt.Errorf("persist plan completion: %w", err)
	}
	e.publish(EventPlanCompleted, plan.ID, "", "", plan.Title)
	return nil
}

// failPlan marks the plan failed and returns cause so callers can
// `return e.failPlan(...)` directly.
func (e *Engine) failPlan(ctx context.Context, plan *models.Plan, cause error) error {
	plan.Status = models.PlanStatusFailed
	if err := e.store.UpdatePlan(ctx, plan); err != nil {
		return errors.Join(cause, fmt.Errorf("persist plan failure: %w", err))
	}
	e.publish(EventPlanFailed, plan.ID, plan.CurrentPhaseID, plan.CurrentTaskID, cause.Error())
	return cause
}

func (e *Engine) refreshPlanPhaseCounters(ctx context.Context, plan *models.Plan) error {
	phases, err := e.store.ListPhases(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("list phases: %w", err)
	}
	completed := 0
	for _, p := range phases {
		if p.Status == models.PhaseStatusCompleted {
			completed++
		}
	}
	plan.TotalPhases = len(phases)
	plan.CompletedPhases = completed
	return e.store.UpdatePlanCounters(ctx, plan)
}
