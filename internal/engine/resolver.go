package engine

import (
	"fmt"
	"sort"

	"github.com/harrison/foreman/internal/models"
)

// ReadySet returns the subset of tasks eligible to run now: tasks that are
// not yet terminal and whose every dependency is present in completed.
// Tasks with no dependencies are always eligible. The result is ordered by
// the tasks' Order field for deterministic dispatch.
func ReadySet(tasks []*models.PlanTask, completed map[string]bool) []*models.PlanTask {
	var ready []*models.PlanTask
	for _, task := range tasks {
		if task.Status.IsTerminal() || task.Status == models.TaskStatusRunning {
			continue
		}
		if depsSatisfied(task, completed) {
			ready = append(ready, task)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Order < ready[j].Order
	})
	return ready
}

func depsSatisfied(task *models.PlanTask, completed map[string]bool) bool {
	for _, dep := range task.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// CompletedSet builds the set of task ids that count as satisfied
// dependencies: completed and skipped tasks.
func CompletedSet(tasks []*models.PlanTask) map[string]bool {
	completed := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusSkipped {
			completed[task.ID] = true
		}
	}
	return completed
}

// ValidateTaskGraph checks a plan's full task set for configuration errors:
// duplicate ids, dependencies on tasks outside the plan, and dependency
// cycles. A plan failing validation must not execute any task.
func ValidateTaskGraph(tasks []*models.PlanTask) error {
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			return fmt.Errorf("task %q has empty id", task.Title)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		seen[task.ID] = true
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %s (%s) depends on unknown task %s", task.ID, task.Title, dep)
			}
		}
	}

	byValue := make([]models.PlanTask, len(tasks))
	for i, task := range tasks {
		byValue[i] = *task
	}
	if models.HasCyclicDependencies(byValue) {
		return fmt.Errorf("circular dependency detected")
	}

	return nil
}
