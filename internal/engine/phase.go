package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrison/foreman/internal/models"
)

// phaseResult describes how one phase invocation ended.
type phaseResult struct {
	completed bool       // every task terminal, none failed
	paused    bool       // plan must pause (manual boundary or approval wait)
	blockID   string     // task blocking progress, recorded on the paused plan
	failure   *TaskError // set when a task failed
}

// runPhase executes all not-yet-terminal tasks of one phase according to its
// execution mode. Failed tasks from a prior invocation are reset to pending
// so a resume retries them with corrective context.
func (e *Engine) runPhase(ctx context.Context, plan *models.Plan, phase *models.Phase) (phaseResult, error) {
	if !phase.ExecutionMode.Valid() {
		return phaseResult{}, NewConfigError(plan.ID, "phase %s has unknown execution mode %q", phase.ID, phase.ExecutionMode)
	}

	tasks, err := e.store.ListTasksByPhase(ctx, phase.ID)
	if err != nil {
		return phaseResult{}, fmt.Errorf("list phase tasks: %w", err)
	}

	for _, task := range tasks {
		if task.Status == models.TaskStatusFailed {
			task.Status = models.TaskStatusPending
			if err := e.store.UpdateTask(ctx, task); err != nil {
				return phaseResult{}, fmt.Errorf("reset failed task %s: %w", task.ID, err)
			}
		}
	}

	phase.Status = models.PhaseStatusRunning
	if err := e.store.UpdatePhase(ctx, phase); err != nil {
		return phaseResult{}, fmt.Errorf("persist phase start: %w", err)
	}
	e.publish(EventPhaseStarted, plan.ID, phase.ID, "", phase.Title)

	var result phaseResult
	switch phase.ExecutionMode {
	case models.ModeSequential:
		result, err = e.runSequential(ctx, plan, phase, tasks)
	case models.ModeParallel:
		result, err = e.runParallel(ctx, plan, phase, tasks)
	case models.ModeManual:
		result, err = e.runManual(ctx, plan, phase, tasks)
	}
	if err != nil {
		return phaseResult{}, err
	}

	// Counters come from the authoritative task set, never from speculative
	// increments along the way.
	if err := e.recomputePhaseCounters(ctx, phase); err != nil {
		return phaseResult{}, err
	}

	switch {
	case result.failure != nil:
		phase.Status = models.PhaseStatusFailed
		e.publish(EventPhaseFailed, plan.ID, phase.ID, result.blockID, result.failure.Message)
	case result.completed:
		phase.Status = models.PhaseStatusCompleted
		e.publish(EventPhaseCompleted, plan.ID, phase.ID, "", phase.Title)
	default:
		// Manual boundary or approval wait: the phase stays running and the
		// plan pauses around it.
		phase.Status = models.PhaseStatusRunning
	}
	if err := e.store.UpdatePhase(ctx, phase); err != nil {
		return phaseResult{}, fmt.Errorf("persist phase outcome: %w", err)
	}

	return result, nil
}

// runSequential executes tasks one at a time in ascending order. A failure
// short-circuits: no later task is attempted.
func (e *Engine) runSequential(ctx context.Context, plan *models.Plan, phase *models.Phase, tasks []*models.PlanTask) (phaseResult, error) {
	for _, task := range tasks {
		if task.CanSkip() {
			continue
		}
		res, err := e.runTask(ctx, plan, phase, task)
		if err != nil {
			return phaseResult{}, err
		}
		switch res.outcome {
		case outcomeFailed:
			return phaseResult{blockID: task.ID, failure: res.failure}, nil
		case outcomeWaiting:
			return phaseResult{paused: true, blockID: task.ID}, nil
		}
	}
	return phaseResult{completed: true}, nil
}

// runParallel repeatedly computes the ready set, dispatching tasks marked
// for parallel execution concurrently and the rest one at a time in order.
// Readiness rounds are strictly serialized: no round starts before every
// task dispatched in the previous round has resolved.
func (e *Engine) runParallel(ctx context.Context, plan *models.Plan, phase *models.Phase, tasks []*models.PlanTask) (phaseResult, error) {
	// Dependencies may reference tasks in earlier phases, so satisfaction is
	// judged against the whole plan's task set.
	planTasks, err := e.store.ListTasksByPlan(ctx, plan.ID)
	if err != nil {
		return phaseResult{}, fmt.Errorf("list plan tasks: %w", err)
	}
	completed := CompletedSet(planTasks)

	for {
		// A task left running with a run attached (an approval wait or a
		// prior process exit) is re-polled before new work is considered.
		// ReadySet excludes running tasks, so without this the phase would
		// look stalled.
		for _, task := range tasks {
			if task.Status != models.TaskStatusRunning || task.RunID == "" {
				continue
			}
			res, err := e.runTask(ctx, plan, phase, task)
			if err != nil {
				return phaseResult{}, err
			}
			switch res.outcome {
			case outcomeFailed:
				return phaseResult{blockID: task.ID, failure: res.failure}, nil
			case outcomeWaiting:
				return phaseResult{paused: true, blockID: task.ID}, nil
			case outcomeCompleted, outcomeSkipped:
				completed[task.ID] = true
			}
		}

		ready := ReadySet(tasks, completed)
		if len(ready) == 0 {
			for _, task := range tasks {
				if !task.Status.IsTerminal() {
					return phaseResult{}, NewConfigError(plan.ID,
						"phase %s stalled: %v (task %s has unsatisfiable dependencies)",
						phase.ID, ErrStalled, task.ID)
				}
			}
			return phaseResult{completed: true}, nil
		}

		var batch, serial []*models.PlanTask
		for _, task := range ready {
			if task.CanRunInParallel {
				batch = append(batch, task)
			} else {
				serial = append(serial, task)
			}
		}

		if len(batch) > 0 {
			results, err := e.runParallelBatch(ctx, plan, phase, batch)
			if err != nil {
				return phaseResult{}, err
			}
			// Refresh the caller's plan: batch workers persisted counter
			// updates through their own copies.
			fresh, err := e.store.GetPlan(ctx, plan.ID)
			if err != nil {
				return phaseResult{}, fmt.Errorf("reload plan %s: %w", plan.ID, err)
			}
			*plan = *fresh
			for _, r := range results {
				switch r.res.outcome {
				case outcomeFailed:
					return phaseResult{blockID: r.task.ID, failure: r.res.failure}, nil
				case outcomeWaiting:
					return phaseResult{paused: true, blockID: r.task.ID}, nil
				case outcomeCompleted, outcomeSkipped:
					completed[r.task.ID] = true
				}
			}
		}

		for _, task := range serial {
			res, err := e.runTask(ctx, plan, phase, task)
			if err != nil {
				return phaseResult{}, err
			}
			switch res.outcome {
			case outcomeFailed:
				return phaseResult{blockID: task.ID, failure: res.failure}, nil
			case outcomeWaiting:
				return phaseResult{paused: true, blockID: task.ID}, nil
			case outcomeCompleted, outcomeSkipped:
				completed[task.ID] = true
			}
		}
	}
}

type parallelTaskResult struct {
	task *models.PlanTask
	res  taskResult
	err  error
}

// runParallelBatch dispatches one readiness round's parallel tasks through a
// bounded semaphore and awaits them all together. Dispatch order within the
// batch is unordered.
func (e *Engine) runParallelBatch(ctx context.Context, plan *models.Plan, phase *models.Phase, batch []*models.PlanTask) ([]parallelTaskResult, error) {
	maxConcurrency := e.cfg.MaxParallel
	if maxConcurrency <= 0 || maxConcurrency > len(batch) {
		maxConcurrency = len(batch)
	}

	semaphore := make(chan struct{}, maxConcurrency)
	resultsCh := make(chan parallelTaskResult, len(batch))
	var wg sync.WaitGroup
	var launchErr error

	for _, task := range batch {
		select {
		case <-ctx.Done():
			launchErr = ctx.Err()
		case semaphore <- struct{}{}:
		}
		if launchErr != nil {
			break
		}

		wg.Add(1)
		go func(task *models.PlanTask) {
			defer wg.Done()
			defer func() { <-semaphore }()

			// Each worker gets its own plan copy; counter refreshes persist
			// through the store, and the caller reloads afterwards.
			planCopy := *plan
			res, err := e.runTask(ctx, &planCopy, phase, task)
			resultsCh <- parallelTaskResult{task: task, res: res, err: err}
		}(task)
	}

	wg.Wait()
	close(resultsCh)

	var results []parallelTaskResult
	var firstErr error
	for r := range resultsCh {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		results = append(results, r)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if launchErr != nil {
		return nil, launchErr
	}
	return results, nil
}

// runManual executes at most one task, then reports a pause so the plan
// waits for external approval. A manual phase never completes in one
// invocation; only a later call finding no pending work completes it.
func (e *Engine) runManual(ctx context.Context, plan *models.Plan, phase *models.Phase, tasks []*models.PlanTask) (phaseResult, error) {
	for _, task := range tasks {
		if task.CanSkip() {
			continue
		}
		res, err := e.runTask(ctx, plan, phase, task)
		if err != nil {
			return phaseResult{}, err
		}
		if res.outcome == outcomeFailed {
			return phaseResult{blockID: task.ID, failure: res.failure}, nil
		}
		return phaseResult{paused: true, blockID: task.ID}, nil
	}
	return phaseResult{completed: true}, nil
}

// recomputePhaseCounters rebuilds the phase's task counters from the stored
// task set and persists them.
func (e *Engine) recomputePhaseCounters(ctx context.Context, phase *models.Phase) error {
	tasks, err := e.store.ListTasksByPhase(ctx, phase.ID)
	if err != nil {
		return fmt.Errorf("list phase tasks: %w", err)
	}
	completed, failed := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}
	phase.TotalTasks = len(tasks)
	phase.CompletedTasks = completed
	phase.FailedTasks = failed
	return e.store.UpdatePhase(ctx, phase)
}
