package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for engine control flow.
var (
	// ErrPlanLeaseHeld indicates another executor is already driving the plan.
	ErrPlanLeaseHeld = errors.New("plan execution lease already held")
	// ErrPollTimeout indicates the polling ceiling elapsed before the
	// delegated run reached a terminal status.
	ErrPollTimeout = errors.New("polling ceiling exceeded waiting for agent run")
	// ErrPlanCancelled indicates the plan was cancelled while work was in flight.
	ErrPlanCancelled = errors.New("plan cancelled")
	// ErrStalled indicates no task is ready but non-terminal tasks remain.
	ErrStalled = errors.New("no runnable task but unfinished tasks remain")
)

// ConfigError represents a plan configuration problem (unsatisfiable or
// cyclic dependencies, unknown execution mode). Configuration errors fail
// fast: the plan transitions to failed without attempting any task.
type ConfigError struct {
	PlanID string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("plan %s configuration: %s", e.PlanID, e.Reason)
}

// NewConfigError creates a ConfigError for the given plan.
func NewConfigError(planID, format string, args ...any) *ConfigError {
	return &ConfigError{PlanID: planID, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TaskError represents a recoverable task execution failure. It carries
// enough context for a paused plan to explain why it stopped.
type TaskError struct {
	TaskID    string
	Title     string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewTaskError creates a TaskError with the current timestamp.
func NewTaskError(taskID, title, msg string, err error) *TaskError {
	return &TaskError{
		TaskID:    taskID,
		Title:     title,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s (%s): %s: %v", e.TaskID, e.Title, e.Message, e.Err)
	}
	return fmt.Sprintf("task %s (%s): %s", e.TaskID, e.Title, e.Message)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
