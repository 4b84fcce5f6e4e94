package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

const planColumns = `id, repository_id, title, status, current_phase_id, current_task_id,
	total_phases, completed_phases, total_tasks, completed_tasks,
	started_at, completed_at, created_at, updated_at`

// CreatePlan inserts a new plan record.
func (s *Store) CreatePlan(ctx context.Context, plan *models.Plan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Status == "" {
		plan.Status = models.PlanStatusDraft
	}

	query := `INSERT INTO plans (` + planColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		plan.ID, plan.RepositoryID, plan.Title, string(plan.Status),
		plan.CurrentPhaseID, plan.CurrentTaskID,
		plan.TotalPhases, plan.CompletedPhases, plan.TotalTasks, plan.CompletedTasks,
		nullTime(plan.StartedAt), nullTime(plan.CompletedAt),
		plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	plan, err := scanPlan(row)
	if err != nil {
		return nil, notFound("plan", id, err)
	}
	return plan, nil
}

// ListPlans returns all plans ordered by creation time, newest first.
func (s *Store) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// ListPlansByStatus returns plans in the given status, newest first.
func (s *Store) ListPlansByStatus(ctx context.Context, status models.PlanStatus) ([]*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE status = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query plans by status: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// UpdatePlan persists all mutable plan fields.
func (s *Store) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	query := `UPDATE plans SET
		repository_id = ?, title = ?, status = ?, current_phase_id = ?, current_task_id = ?,
		total_phases = ?, completed_phases = ?, total_tasks = ?, completed_tasks = ?,
		started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		plan.RepositoryID, plan.Title, string(plan.Status),
		plan.CurrentPhaseID, plan.CurrentTaskID,
		plan.TotalPhases, plan.CompletedPhases, plan.TotalTasks, plan.CompletedTasks,
		nullTime(plan.StartedAt), nullTime(plan.CompletedAt), plan.UpdatedAt,
		plan.ID,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "plan", ID: plan.ID}
	}
	return nil
}

// UpdatePlanCounters persists only the plan's phase and task counters.
// Status and the current-position pointers are deliberately excluded so a
// stale in-memory copy can never overwrite a concurrent status change.
func (s *Store) UpdatePlanCounters(ctx context.Context, plan *models.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	query := `UPDATE plans SET
		total_phases = ?, completed_phases = ?, total_tasks = ?, completed_tasks = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		plan.TotalPhases, plan.CompletedPhases, plan.TotalTasks, plan.CompletedTasks,
		plan.UpdatedAt, plan.ID,
	)
	if err != nil {
		return fmt.Errorf("update plan counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan counters rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "plan", ID: plan.ID}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var plan models.Plan
	var status string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&plan.ID, &plan.RepositoryID, &plan.Title, &status,
		&plan.CurrentPhaseID, &plan.CurrentTaskID,
		&plan.TotalPhases, &plan.CompletedPhases, &plan.TotalTasks, &plan.CompletedTasks,
		&startedAt, &completedAt, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.Status = models.PlanStatus(status)
	plan.StartedAt = timePtr(startedAt)
	plan.CompletedAt = timePtr(completedAt)
	return &plan, nil
}
