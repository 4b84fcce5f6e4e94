package models

import "time"

// RunStatus represents the state of a delegated agent run. The agent
// execution service owns these transitions; the engine only observes them.
type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusQAGateFailed    RunStatus = "qa_gate_failed"
	RunStatusRejected        RunStatus = "rejected"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
)

// IsTerminal returns true if the run will not change state again.
// waiting_approval is not terminal: a human decision turns it into
// completed or rejected out-of-band.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusQAGateFailed, RunStatusRejected:
		return true
	}
	return false
}

// AgentRun is the delegated task record for one agent execution attempt.
// Created by the engine in pending state, then mutated by the agent
// execution service as the run progresses.
type AgentRun struct {
	ID          string
	SessionID   string
	PlanTaskID  string
	Prompt      string
	Status      RunStatus
	Output      string
	ErrorText   string
	CommitSHA   string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is an active agent working session bound to one repository.
// At most one session per repository is active at a time.
type Session struct {
	ID           string
	RepositoryID string
	Active       bool
	CreatedAt    time.Time
	LastUsedAt   time.Time
}
