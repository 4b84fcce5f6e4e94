package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

const runColumns = `id, session_id, plan_task_id, prompt, status, output, error_text,
	commit_sha, started_at, completed_at, created_at, updated_at`

// CreateRun inserts a new delegated agent run record.
func (s *Store) CreateRun(ctx context.Context, run *models.AgentRun) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	query := `INSERT INTO agent_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.SessionID, run.PlanTaskID, run.Prompt, string(run.Status),
		run.Output, run.ErrorText, run.CommitSHA,
		nullTime(run.StartedAt), nullTime(run.CompletedAt),
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}
	return nil
}

// GetRun loads an agent run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, notFound("agent run", id, err)
	}
	return run, nil
}

// UpdateRun persists all mutable run fields.
func (s *Store) UpdateRun(ctx context.Context, run *models.AgentRun) error {
	run.UpdatedAt = time.Now().UTC()
	query := `UPDATE agent_runs SET
		status = ?, output = ?, error_text = ?, commit_sha = ?,
		started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(run.Status), run.Output, run.ErrorText, run.CommitSHA,
		nullTime(run.StartedAt), nullTime(run.CompletedAt), run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent run rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "agent run", ID: run.ID}
	}
	return nil
}

func scanRun(row rowScanner) (*models.AgentRun, error) {
	var run models.AgentRun
	var status string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.SessionID, &run.PlanTaskID, &run.Prompt, &status,
		&run.Output, &run.ErrorText, &run.CommitSHA,
		&startedAt, &completedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completedAt)
	return &run, nil
}
