package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// MonitorStore is the record store surface the monitor needs.
type MonitorStore interface {
	RecordStore
	ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]*models.Plan, error)
}

// Monitor is a reconciliation pass over plan state, not a source of truth.
// It detects plans that appear wedged and only ever moves them toward
// paused, where the normal resume path re-engages. It never marks anything
// completed or failed.
type Monitor struct {
	store    MonitorStore
	agent    AgentService
	events   EventSink
	interval time.Duration
}

// NewMonitor creates a Monitor. The events sink may be nil.
func NewMonitor(store MonitorStore, agent AgentService, events EventSink, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{store: store, agent: agent, events: events, interval: interval}
}

// Start runs the reconciliation pass on a fixed interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors here are transient infrastructure problems; the next
			// tick retries.
			_ = m.RunOnce(ctx)
		}
	}
}

// RunOnce inspects failed plans for two specific inconsistent states and
// repairs them by pausing:
//
//  1. The plan's current task actually completed while the plan is marked
//     failed. Pausing lets the normal resume path pick up after it.
//  2. The plan is failed with zero failed tasks and pending work remaining.
//     The current-task pointer is cleared and the plan paused.
func (m *Monitor) RunOnce(ctx context.Context) error {
	plans, err := m.store.ListPlansByStatus(ctx, models.PlanStatusFailed)
	if err != nil {
		return fmt.Errorf("list failed plans: %w", err)
	}

	for _, plan := range plans {
		repaired, err := m.reconcilePlan(ctx, plan)
		if err != nil {
			return err
		}
		if repaired {
			m.publish(EventPlanRepaired, plan, "plan moved to paused for re-evaluation")
		}
	}
	return nil
}

func (m *Monitor) reconcilePlan(ctx context.Context, plan *models.Plan) (bool, error) {
	if plan.CurrentTaskID != "" {
		task, err := m.store.GetTask(ctx, plan.CurrentTaskID)
		if err != nil {
			return false, fmt.Errorf("load current task %s: %w", plan.CurrentTaskID, err)
		}
		if task.Status == models.TaskStatusCompleted {
			plan.Status = models.PlanStatusPaused
			if err := m.store.UpdatePlan(ctx, plan); err != nil {
				return false, fmt.Errorf("repair plan %s: %w", plan.ID, err)
			}
			return true, nil
		}
	}

	tasks, err := m.store.ListTasksByPlan(ctx, plan.ID)
	if err != nil {
		return false, fmt.Errorf("list tasks for plan %s: %w", plan.ID, err)
	}
	failedCount, pendingCount := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusFailed:
			failedCount++
		case models.TaskStatusPending:
			pendingCount++
		}
	}
	if failedCount == 0 && pendingCount > 0 {
		plan.CurrentTaskID = ""
		plan.Status = models.PlanStatusPaused
		if err := m.store.UpdatePlan(ctx, plan); err != nil {
			return false, fmt.Errorf("repair plan %s: %w", plan.ID, err)
		}
		return true, nil
	}

	return false, nil
}

// SweepInFlight runs once at startup, before normal execution resumes. Plans
// left running by a crashed process are paused; their in-flight tasks are
// either kept attached to their delegated run (re-polled on resume) or reset
// to pending when the run shows no progress (re-delegated on resume).
func (m *Monitor) SweepInFlight(ctx context.Context) error {
	plans, err := m.store.ListPlansByStatus(ctx, models.PlanStatusRunning)
	if err != nil {
		return fmt.Errorf("list running plans: %w", err)
	}

	for _, plan := range plans {
		tasks, err := m.store.ListTasksByPlan(ctx, plan.ID)
		if err != nil {
			return fmt.Errorf("list tasks for plan %s: %w", plan.ID, err)
		}

		for _, task := range tasks {
			if task.Status != models.TaskStatusRunning {
				continue
			}
			if task.RunID == "" {
				// Delegation was never recorded; queue for a fresh attempt.
				task.Status = models.TaskStatusPending
				if err := m.store.UpdateTask(ctx, task); err != nil {
					return fmt.Errorf("reset task %s: %w", task.ID, err)
				}
				continue
			}

			run, err := m.agent.RunStatus(ctx, task.RunID)
			if err != nil || run.Status == models.RunStatusPending {
				// Missing or never-started run: re-delegate rather than wait
				// on work that is not happening.
				task.Status = models.TaskStatusPending
				task.RunID = ""
				if err := m.store.UpdateTask(ctx, task); err != nil {
					return fmt.Errorf("reset task %s: %w", task.ID, err)
				}
			}
			// Otherwise the run made progress. The task stays attached to it;
			// the resume path re-polls instead of re-delegating.
		}

		plan.Status = models.PlanStatusPaused
		if err := m.store.UpdatePlan(ctx, plan); err != nil {
			return fmt.Errorf("pause swept plan %s: %w", plan.ID, err)
		}
		m.publish(EventPlanRepaired, plan, "interrupted plan paused after startup sweep")
	}
	return nil
}

func (m *Monitor) publish(eventType EventType, plan *models.Plan, message string) {
	if m.events == nil {
		return
	}
	m.events.Publish(Event{
		Type:    eventType,
		PlanID:  plan.ID,
		PhaseID: plan.CurrentPhaseID,
		TaskID:  plan.CurrentTaskID,
		Message: message,
		Time:    time.Now(),
	})
}
