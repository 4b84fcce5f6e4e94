package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

const taskColumns = `id, phase_id, plan_id, task_order, title, description, status,
	depends_on, can_run_in_parallel, attempts, last_error, session_id, run_id,
	commit_sha, started_at, completed_at, created_at, updated_at`

// CreateTask inserts a new plan task record.
func (s *Store) CreateTask(ctx context.Context, task *models.PlanTask) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	dependsJSON, err := marshalDeps(task.DependsOn)
	if err != nil {
		return err
	}

	query := `INSERT INTO plan_tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.PhaseID, task.PlanID, task.Order, task.Title, task.Description,
		string(task.Status), dependsJSON, task.CanRunInParallel, task.Attempts,
		task.LastError, task.SessionID, task.RunID, task.CommitSHA,
		nullTime(task.StartedAt), nullTime(task.CompletedAt),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan task: %w", err)
	}
	return nil
}

// GetTask loads a plan task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.PlanTask, error) {
	query := `SELECT ` + taskColumns + ` FROM plan_tasks WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, notFound("plan task", id, err)
	}
	return task, nil
}

// ListTasksByPhase returns a phase's tasks in ascending order.
func (s *Store) ListTasksByPhase(ctx context.Context, phaseID string) ([]*models.PlanTask, error) {
	return s.listTasks(ctx, `phase_id = ?`, phaseID)
}

// ListTasksByPlan returns all of a plan's tasks in ascending order.
func (s *Store) ListTasksByPlan(ctx context.Context, planID string) ([]*models.PlanTask, error) {
	return s.listTasks(ctx, `plan_id = ?`, planID)
}

func (s *Store) listTasks(ctx context.Context, where string, arg any) ([]*models.PlanTask, error) {
	query := `SELECT ` + taskColumns + ` FROM plan_tasks WHERE ` + where + ` ORDER BY task_order ASC`
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query plan tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.PlanTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask persists all mutable plan task fields.
func (s *Store) UpdateTask(ctx context.Context, task *models.PlanTask) error {
	task.UpdatedAt = time.Now().UTC()

	dependsJSON, err := marshalDeps(task.DependsOn)
	if err != nil {
		return err
	}

	query := `UPDATE plan_tasks SET
		task_order = ?, title = ?, description = ?, status = ?, depends_on = ?,
		can_run_in_parallel = ?, attempts = ?, last_error = ?, session_id = ?,
		run_id = ?, commit_sha = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		task.Order, task.Title, task.Description, string(task.Status), dependsJSON,
		task.CanRunInParallel, task.Attempts, task.LastError, task.SessionID,
		task.RunID, task.CommitSHA,
		nullTime(task.StartedAt), nullTime(task.CompletedAt), task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update plan task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan task rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "plan task", ID: task.ID}
	}
	return nil
}

func marshalDeps(deps []string) (string, error) {
	if len(deps) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(deps)
	if err != nil {
		return "", fmt.Errorf("marshal depends_on: %w", err)
	}
	return string(data), nil
}

func scanTask(row rowScanner) (*models.PlanTask, error) {
	var task models.PlanTask
	var status, dependsJSON string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&task.ID, &task.PhaseID, &task.PlanID, &task.Order, &task.Title, &task.Description,
		&status, &dependsJSON, &task.CanRunInParallel, &task.Attempts,
		&task.LastError, &task.SessionID, &task.RunID, &task.CommitSHA,
		&startedAt, &completedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.StartedAt = timePtr(startedAt)
	task.CompletedAt = timePtr(completedAt)
	if dependsJSON != "" && dependsJSON != "[]" {
		if err := json.Unmarshal([]byte(dependsJSON), &task.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	return &task, nil
}
