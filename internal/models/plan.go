// Package models defines the core entities for foreman plan execution:
// plans, phases, plan tasks, and delegated agent runs.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusReady     PlanStatus = "ready"
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusPaused    PlanStatus = "paused"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
)

// IsTerminal returns true if the plan is in a final state.
// A paused plan is not terminal; it can be resumed.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed
}

// Plan represents a unit of multi-phase work scoped to one repository.
// Plans are created by the planning layer and mutated exclusively by the
// plan executor; the engine never deletes them.
type Plan struct {
	ID              string
	RepositoryID    string
	Title           string
	Status          PlanStatus
	CurrentPhaseID  string // phase currently executing or blocking progress ("" if none)
	CurrentTaskID   string // task currently blocking progress ("" if none)
	TotalPhases     int
	CompletedPhases int
	TotalTasks      int
	CompletedTasks  int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExecutionMode governs how a phase schedules its tasks.
type ExecutionMode string

const (
	// ModeSequential runs tasks one at a time in ascending order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs dependency-ready tasks concurrently where allowed.
	ModeParallel ExecutionMode = "parallel"
	// ModeManual runs at most one task, then pauses for approval.
	ModeManual ExecutionMode = "manual"
)

// Valid reports whether the mode is one of the supported execution modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeManual:
		return true
	}
	return false
}

// PhaseStatus represents the lifecycle state of a phase.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusRunning   PhaseStatus = "running"
	PhaseStatusCompleted PhaseStatus = "completed"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusPaused    PhaseStatus = "paused"
)

// Phase is an ordered grouping of tasks within a plan. Phases execute
// strictly in ascending Order; a completed phase is skipped on resume.
type Phase struct {
	ID             string
	PlanID         string
	Order          int
	Title          string
	Status         PhaseStatus
	ExecutionMode  ExecutionMode
	PauseAfter     bool // pause the plan once this phase completes
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewID returns a new unique identifier for plans, phases, tasks, and runs.
func NewID() string {
	return uuid.NewString()
}
