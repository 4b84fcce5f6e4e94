package models

import (
	"errors"
	"time"
)

// TaskStatus represents the lifecycle state of a plan task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// IsTerminal returns true if the task is in a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}

// PlanTask represents a single unit of agent work within a phase.
type PlanTask struct {
	ID               string
	PhaseID          string
	PlanID           string // denormalized for plan-wide queries
	Order            int
	Title            string
	Description      string // instruction payload handed to the agent
	Status           TaskStatus
	DependsOn        []string // plan task ids within the same plan
	CanRunInParallel bool
	Attempts         int
	LastError        string
	SessionID        string // agent session used for the latest delegation
	RunID            string // delegated agent run record id
	CommitSHA        string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks that the task has all required fields.
func (t *PlanTask) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Title == "" {
		return errors.New("task title is required")
	}
	if t.Description == "" {
		return errors.New("task description is required")
	}
	return nil
}

// CanSkip returns true if the task needs no further execution
// (already completed or explicitly skipped).
func (t *PlanTask) CanSkip() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusSkipped
}

// HasCyclicDependencies detects circular dependencies in a list of tasks
// using DFS with color marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicDependencies(tasks []PlanTask) bool {
	graph := make(map[string][]string)
	taskSet := make(map[string]bool)

	for _, task := range tasks {
		taskSet[task.ID] = true
		graph[task.ID] = []string{}
	}

	// Build edges: if task A depends on B, then B -> A.
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return true // self-reference is a cycle
			}
			if taskSet[dep] {
				graph[dep] = append(graph[dep], task.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int)
	for id := range taskSet {
		colors[id] = white
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				return true // back edge = cycle
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range taskSet {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}
