package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// CreateSession inserts a new session record.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.LastUsedAt = now
	sess.Active = true

	query := `INSERT INTO sessions (id, repository_id, active, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.RepositoryID, sess.Active, sess.CreatedAt, sess.LastUsedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetActiveSession returns the most recently used active session for a
// repository, or a NotFoundError if none exists.
func (s *Store) GetActiveSession(ctx context.Context, repositoryID string) (*models.Session, error) {
	query := `SELECT id, repository_id, active, created_at, last_used_at
		FROM sessions WHERE repository_id = ? AND active = 1
		ORDER BY last_used_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, repositoryID)

	var sess models.Session
	err := row.Scan(&sess.ID, &sess.RepositoryID, &sess.Active, &sess.CreatedAt, &sess.LastUsedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Kind: "active session", ID: repositoryID}
		}
		return nil, fmt.Errorf("query active session: %w", err)
	}
	return &sess, nil
}

// TouchSession updates a session's last-used timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_used_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeactivateSession marks a session inactive.
func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	query := `UPDATE sessions SET active = 0 WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}
