package store

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

const phaseColumns = `id, plan_id, phase_order, title, status, execution_mode, pause_after,
	total_tasks, completed_tasks, failed_tasks, created_at, updated_at`

// CreatePhase inserts a new phase record.
func (s *Store) CreatePhase(ctx context.Context, phase *models.Phase) error {
	now := time.Now().UTC()
	phase.CreatedAt = now
	phase.UpdatedAt = now
	if phase.Status == "" {
		phase.Status = models.PhaseStatusPending
	}

	query := `INSERT INTO phases (` + phaseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		phase.ID, phase.PlanID, phase.Order, phase.Title,
		string(phase.Status), string(phase.ExecutionMode), phase.PauseAfter,
		phase.TotalTasks, phase.CompletedTasks, phase.FailedTasks,
		phase.CreatedAt, phase.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert phase: %w", err)
	}
	return nil
}

// GetPhase loads a phase by id.
func (s *Store) GetPhase(ctx context.Context, id string) (*models.Phase, error) {
	query := `SELECT ` + phaseColumns + ` FROM phases WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	phase, err := scanPhase(row)
	if err != nil {
		return nil, notFound("phase", id, err)
	}
	return phase, nil
}

// ListPhases returns a plan's phases in ascending order.
func (s *Store) ListPhases(ctx context.Context, planID string) ([]*models.Phase, error) {
	query := `SELECT ` + phaseColumns + ` FROM phases WHERE plan_id = ? ORDER BY phase_order ASC`
	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	var phases []*models.Phase
	for rows.Next() {
		phase, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, phase)
	}
	return phases, rows.Err()
}

// UpdatePhase persists all mutable phase fields.
func (s *Store) UpdatePhase(ctx context.Context, phase *models.Phase) error {
	phase.UpdatedAt = time.Now().UTC()
	query := `UPDATE phases SET
		phase_order = ?, title = ?, status = ?, execution_mode = ?, pause_after = ?,
		total_tasks = ?, completed_tasks = ?, failed_tasks = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		phase.Order, phase.Title, string(phase.Status), string(phase.ExecutionMode),
		phase.PauseAfter, phase.TotalTasks, phase.CompletedTasks, phase.FailedTasks,
		phase.UpdatedAt, phase.ID,
	)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update phase rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "phase", ID: phase.ID}
	}
	return nil
}

func scanPhase(row rowScanner) (*models.Phase, error) {
	var phase models.Phase
	var status, mode string
	err := row.Scan(
		&phase.ID, &phase.PlanID, &phase.Order, &phase.Title,
		&status, &mode, &phase.PauseAfter,
		&phase.TotalTasks, &phase.CompletedTasks, &phase.FailedTasks,
		&phase.CreatedAt, &phase.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	phase.Status = models.PhaseStatus(status)
	phase.ExecutionMode = models.ExecutionMode(mode)
	return &phase, nil
}
