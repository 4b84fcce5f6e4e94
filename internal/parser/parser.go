// Package parser reads plan files in YAML or Markdown form and turns them
// into persistable plan records. File parsing and validation happen up front,
// before anything touches the database, so a malformed plan never executes.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/foreman/internal/models"
)

// PlanDocument is the file-level representation of a plan. Tasks reference
// each other by author-chosen keys; ids are assigned at materialization.
type PlanDocument struct {
	Title      string
	Repository string
	Phases     []PhaseDocument
}

// PhaseDocument is one phase as authored in a plan file.
type PhaseDocument struct {
	Title      string
	Mode       models.ExecutionMode
	PauseAfter bool
	Tasks      []TaskDocument
}

// TaskDocument is one task as authored in a plan file.
type TaskDocument struct {
	Key         string
	Title       string
	Description string
	DependsOn   []string
	Parallel    bool
}

// Parser parses a plan document from a reader.
type Parser interface {
	Parse(r io.Reader) (*PlanDocument, error)
}

// ForFile selects a parser based on the file extension.
func ForFile(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLParser(), nil
	case ".md", ".markdown":
		return NewMarkdownParser(), nil
	default:
		return nil, fmt.Errorf("unsupported plan file extension %q (expected .yaml, .yml, .md)", filepath.Ext(path))
	}
}

// ParseFile parses and validates the plan file at path.
func ParseFile(path string) (*PlanDocument, error) {
	p, err := ForFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	doc, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return doc, nil
}

// Validate checks the document for structural problems: missing titles,
// unknown modes, duplicate or unknown task keys, and dependency cycles.
func (d *PlanDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("plan title is required")
	}
	if strings.TrimSpace(d.Repository) == "" {
		return fmt.Errorf("plan repository is required")
	}
	if len(d.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	keys := make(map[string]bool)
	for i, phase := range d.Phases {
		if strings.TrimSpace(phase.Title) == "" {
			return fmt.Errorf("phase %d has no title", i+1)
		}
		if !phase.Mode.Valid() {
			return fmt.Errorf("phase %q has unknown execution mode %q", phase.Title, phase.Mode)
		}
		for _, task := range phase.Tasks {
			if strings.TrimSpace(task.Key) == "" {
				return fmt.Errorf("phase %q has a task without a key", phase.Title)
			}
			if strings.TrimSpace(task.Title) == "" {
				return fmt.Errorf("task %q has no title", task.Key)
			}
			if strings.TrimSpace(task.Description) == "" {
				return fmt.Errorf("task %q has no description", task.Key)
			}
			if keys[task.Key] {
				return fmt.Errorf("duplicate task key %q", task.Key)
			}
			keys[task.Key] = true
		}
	}

	// Dependencies may reference tasks in any phase, so resolve them over
	// the whole plan.
	var flat []models.PlanTask
	for _, phase := range d.Phases {
		for _, task := range phase.Tasks {
			for _, dep := range task.DependsOn {
				if !keys[dep] {
					return fmt.Errorf("task %q depends on unknown task %q", task.Key, dep)
				}
			}
			flat = append(flat, models.PlanTask{ID: task.Key, DependsOn: task.DependsOn})
		}
	}
	if models.HasCyclicDependencies(flat) {
		return fmt.Errorf("plan has cyclic task dependencies")
	}
	return nil
}

// Materialize converts the document into persistable records with fresh ids.
// Task keys in depends_on are rewritten to task ids. The plan comes out in
// ready state with its counters initialized.
func (d *PlanDocument) Materialize() (*models.Plan, []models.Phase, []models.PlanTask) {
	plan := &models.Plan{
		ID:           models.NewID(),
		RepositoryID: d.Repository,
		Title:        d.Title,
		Status:       models.PlanStatusReady,
	}

	idByKey := make(map[string]string)
	for _, phase := range d.Phases {
		for _, task := range phase.Tasks {
			idByKey[task.Key] = models.NewID()
		}
	}

	var phases []models.Phase
	var tasks []models.PlanTask
	for i, phaseDoc := range d.Phases {
		phase := models.Phase{
			ID:            models.NewID(),
			PlanID:        plan.ID,
			Title:         phaseDoc.Title,
			Order:         i + 1,
			ExecutionMode: phaseDoc.Mode,
			Status:        models.PhaseStatusPending,
			PauseAfter:    phaseDoc.PauseAfter,
			TotalTasks:    len(phaseDoc.Tasks),
		}
		phases = append(phases, phase)

		for j, taskDoc := range phaseDoc.Tasks {
			deps := make([]string, 0, len(taskDoc.DependsOn))
			for _, dep := range taskDoc.DependsOn {
				deps = append(deps, idByKey[dep])
			}
			tasks = append(tasks, models.PlanTask{
				ID:               idByKey[taskDoc.Key],
				PhaseID:          phase.ID,
				PlanID:           plan.ID,
				Title:            taskDoc.Title,
				Description:      taskDoc.Description,
				Order:            j + 1,
				Status:           models.TaskStatusPending,
				DependsOn:        deps,
				CanRunInParallel: taskDoc.Parallel,
			})
		}
		plan.TotalTasks += len(phaseDoc.Tasks)
	}
	plan.TotalPhases = len(phases)

	return plan, phases, tasks
}
