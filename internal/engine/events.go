package engine

import (
	"sync"
	"time"
)

// EventType identifies a notable execution transition.
type EventType string

const (
	EventPlanStarted    EventType = "plan.started"
	EventPlanPaused     EventType = "plan.paused"
	EventPlanResumed    EventType = "plan.resumed"
	EventPlanCompleted  EventType = "plan.completed"
	EventPlanFailed     EventType = "plan.failed"
	EventPlanCancelled  EventType = "plan.cancelled"
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"
	EventTaskStarted    EventType = "task.started"
	EventTaskCompleted  EventType = "task.completed"
	EventTaskFailed     EventType = "task.failed"
	EventTaskSkipped    EventType = "task.skipped"
	EventPlanRepaired   EventType = "plan.repaired"
)

// Event describes one execution transition for UI or log consumption.
type Event struct {
	Type    EventType
	PlanID  string
	PhaseID string
	TaskID  string
	Message string
	Time    time.Time
}

// EventSink receives execution events. Implementations must not block for
// long; the engine publishes synchronously from the execution path.
type EventSink interface {
	Publish(event Event)
}

// MultiSink fans events out to multiple sinks. Safe for concurrent use.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []EventSink
}

// NewMultiSink creates a MultiSink over the given sinks. Nil sinks are ignored.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add registers an additional sink.
func (m *MultiSink) Add(sink EventSink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Publish delivers the event to every registered sink.
func (m *MultiSink) Publish(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Publish(event)
	}
}

// publish emits an event through the engine's sink, if one is configured.
func (e *Engine) publish(eventType EventType, planID, phaseID, taskID, message string) {
	if e.events == nil {
		return
	}
	e.events.Publish(Event{
		Type:    eventType,
		PlanID:  planID,
		PhaseID: phaseID,
		TaskID:  taskID,
		Message: message,
		Time:    time.Now(),
	})
}
