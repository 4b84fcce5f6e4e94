package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// fakeStore is an in-memory MonitorStore for engine tests. All methods
// return copies so test goroutines never share entity pointers with the
// engine.
type fakeStore struct {
	mu     sync.Mutex
	plans  map[string]*models.Plan
	phases map[string]*models.Phase
	tasks  map[string]*models.PlanTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:  make(map[string]*models.Plan),
		phases: make(map[string]*models.Phase),
		tasks:  make(map[string]*models.PlanTask),
	}
}

func copyPlan(p *models.Plan) *models.Plan {
	c := *p
	return &c
}

func copyPhase(p *models.Phase) *models.Phase {
	c := *p
	return &c
}

func copyTask(t *models.PlanTask) *models.PlanTask {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	return &c
}

func (s *fakeStore) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", id)
	}
	return copyPlan(p), nil
}

func (s *fakeStore) UpdatePlan(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; !ok {
		return fmt.Errorf("plan %s not found", plan.ID)
	}
	s.plans[plan.ID] = copyPlan(plan)
	return nil
}

func (s *fakeStore) UpdatePlanCounters(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[plan.ID]
	if !ok {
		return fmt.Errorf("plan %s not found", plan.ID)
	}
	stored.TotalPhases = plan.TotalPhases
	stored.CompletedPhases = plan.CompletedPhases
	stored.TotalTasks = plan.TotalTasks
	stored.CompletedTasks = plan.CompletedTasks
	return nil
}

func (s *fakeStore) GetPhase(_ context.Context, id string) (*models.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[id]
	if !ok {
		return nil, fmt.Errorf("phase %s not found", id)
	}
	return copyPhase(p), nil
}

func (s *fakeStore) ListPhases(_ context.Context, planID string) ([]*models.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var phases []*models.Phase
	for _, p := range s.phases {
		if p.PlanID == planID {
			phases = append(phases, copyPhase(p))
		}
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].Order < phases[j].Order })
	return phases, nil
}

func (s *fakeStore) UpdatePhase(_ context.Context, phase *models.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.phases[phase.ID]; !ok {
		return fmt.Errorf("phase %s not found", phase.ID)
	}
	s.phases[phase.ID] = copyPhase(phase)
	return nil
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*models.PlanTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return copyTask(t), nil
}

func (s *fakeStore) ListTasksByPhase(_ context.Context, phaseID string) ([]*models.PlanTask, error) {
	return s.listTasks(func(t *models.PlanTask) bool { return t.PhaseID == phaseID })
}

func (s *fakeStore) ListTasksByPlan(_ context.Context, planID string) ([]*models.PlanTask, error) {
	return s.listTasks(func(t *models.PlanTask) bool { return t.PlanID == planID })
}

func (s *fakeStore) listTasks(match func(*models.PlanTask) bool) ([]*models.PlanTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []*models.PlanTask
	for _, t := range s.tasks {
		if match(t) {
			tasks = append(tasks, copyTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	return tasks, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, task *models.PlanTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s not found", task.ID)
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *fakeStore) ListPlansByStatus(_ context.Context, status models.PlanStatus) ([]*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var plans []*models.Plan
	for _, p := range s.plans {
		if p.Status == status {
			plans = append(plans, copyPlan(p))
		}
	}
	return plans, nil
}

// fakeAgent is a scripted AgentService. Each task id maps to the run status
// the fake reports once Start has been called; unscripted tasks complete.
// Tasks in hold never leave pending, for timeout and cancellation tests.
type fakeAgent struct {
	mu         sync.Mutex
	runs       map[string]*models.AgentRun
	outcomes   map[string]models.RunStatus // task id -> status after Start
	commits    map[string]string           // task id -> commit sha
	errTexts   map[string]string           // task id -> error text
	hold       map[string]bool             // task id -> stay pending forever
	dispatches []string                    // task ids in Delegate order
	prompts    map[string]string           // task id -> last delegated prompt
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		runs:     make(map[string]*models.AgentRun),
		outcomes: make(map[string]models.RunStatus),
		commits:  make(map[string]string),
		errTexts: make(map[string]string),
		hold:     make(map[string]bool),
		prompts:  make(map[string]string),
	}
}

func (a *fakeAgent) Delegate(_ context.Context, sessionID, taskID, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	runID := fmt.Sprintf("run-%s-%d", taskID, len(a.dispatches))
	a.runs[runID] = &models.AgentRun{
		ID:         runID,
		SessionID:  sessionID,
		PlanTaskID: taskID,
		Prompt:     prompt,
		Status:     models.RunStatusPending,
	}
	a.dispatches = append(a.dispatches, taskID)
	a.prompts[taskID] = prompt
	return runID, nil
}

func (a *fakeAgent) Start(_ context.Context, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	run, ok := a.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	if a.hold[run.PlanTaskID] {
		return nil
	}
	status, ok := a.outcomes[run.PlanTaskID]
	if !ok {
		status = models.RunStatusCompleted
	}
	run.Status = status
	run.CommitSHA = a.commits[run.PlanTaskID]
	run.ErrorText = a.errTexts[run.PlanTaskID]
	return nil
}

func (a *fakeAgent) RunStatus(_ context.Context, runID string) (*models.AgentRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	run, ok := a.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	c := *run
	return &c, nil
}

// seedRun preloads a run record, simulating a delegation made by an earlier
// process whose outcome is already known to the agent service.
func (a *fakeAgent) seedRun(runID, taskID string, status models.RunStatus, commit string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs[runID] = &models.AgentRun{
		ID:         runID,
		PlanTaskID: taskID,
		Status:     status,
		CommitSHA:  commit,
	}
}

func (a *fakeAgent) dispatchOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.dispatches...)
}

func (a *fakeAgent) promptFor(taskID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompts[taskID]
}

// fakeSessions hands out a single session id.
type fakeSessions struct{}

func (fakeSessions) GetOrCreateActiveSession(context.Context, string) (string, error) {
	return "sess-1", nil
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
		MaxParallel:  4,
	}
}

// taskSpec describes one task for plan fixtures.
type taskSpec struct {
	id        string
	order     int
	dependsOn []string
	parallel  bool
	status    models.TaskStatus
	runID     string
}

// phaseSpec describes one phase for plan fixtures.
type phaseSpec struct {
	id         string
	order      int
	mode       models.ExecutionMode
	pauseAfter bool
	status     models.PhaseStatus
	tasks      []taskSpec
}

func seedPlan(s *fakeStore, planID string, status models.PlanStatus, phases ...phaseSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, ph := range phases {
		total += len(ph.tasks)
	}
	s.plans[planID] = &models.Plan{
		ID:           planID,
		RepositoryID: "repo-1",
		Title:        "Test plan " + planID,
		Status:       status,
		TotalPhases:  len(phases),
		TotalTasks:   total,
	}

	for _, ph := range phases {
		phStatus := ph.status
		if phStatus == "" {
			phStatus = models.PhaseStatusPending
		}
		s.phases[ph.id] = &models.Phase{
			ID:            ph.id,
			PlanID:        planID,
			Order:         ph.order,
			Title:         "Phase " + ph.id,
			Status:        phStatus,
			ExecutionMode: ph.mode,
			PauseAfter:    ph.pauseAfter,
			TotalTasks:    len(ph.tasks),
		}
		for _, ts := range ph.tasks {
			tStatus := ts.status
			if tStatus == "" {
				tStatus = models.TaskStatusPending
			}
			s.tasks[ts.id] = &models.PlanTask{
				ID:               ts.id,
				PhaseID:          ph.id,
				PlanID:           planID,
				Order:            ts.order,
				Title:            "Task " + ts.id,
				Description:      "Do " + ts.id,
				Status:           tStatus,
				DependsOn:        ts.dependsOn,
				CanRunInParallel: ts.parallel,
				RunID:            ts.runID,
			}
		}
	}
}

func newTestEngine(s *fakeStore, a *fakeAgent, sink EventSink) *Engine {
	return New(s, a, fakeSessions{}, sink, testConfig())
}
