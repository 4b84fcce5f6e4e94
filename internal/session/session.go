// Package session manages agent working sessions. Each repository has at
// most one active session at a time; delegations for the repository's tasks
// reuse it until it goes idle for too long, at which point a fresh session
// replaces it.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/store"
)

// Store is the subset of session persistence the provider needs.
type Store interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetActiveSession(ctx context.Context, repositoryID string) (*models.Session, error)
	TouchSession(ctx context.Context, id string) error
	DeactivateSession(ctx context.Context, id string) error
}

// DefaultIdleTimeout is how long a session may sit unused before a new one
// replaces it.
const DefaultIdleTimeout = 2 * time.Hour

// Provider hands out the active session for a repository, creating or
// rotating sessions as needed.
type Provider struct {
	store       Store
	idleTimeout time.Duration
	now         func() time.Time
}

// NewProvider creates a session provider. A zero idleTimeout selects
// DefaultIdleTimeout.
func NewProvider(store Store, idleTimeout time.Duration) *Provider {
	if store == nil {
		panic("session: store is required")
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Provider{
		store:       store,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// GetOrCreateActiveSession returns the id of the repository's active session.
// An existing session is reused and touched; an idle or missing session is
// replaced with a new one.
func (p *Provider) GetOrCreateActiveSession(ctx context.Context, repositoryID string) (string, error) {
	if repositoryID == "" {
		return "", fmt.Errorf("repository id is required")
	}

	sess, err := p.store.GetActiveSession(ctx, repositoryID)
	switch {
	case err == nil:
		if p.now().Sub(sess.LastUsedAt) <= p.idleTimeout {
			if err := p.store.TouchSession(ctx, sess.ID); err != nil {
				return "", fmt.Errorf("touch session %s: %w", sess.ID, err)
			}
			return sess.ID, nil
		}
		// Idle sessions are retired, not reused. The agent's context is
		// likely stale after hours away from the repository.
		if err := p.store.DeactivateSession(ctx, sess.ID); err != nil {
			return "", fmt.Errorf("retire idle session %s: %w", sess.ID, err)
		}
	case store.IsNotFound(err):
		// No active session yet; fall through and create one.
	default:
		return "", fmt.Errorf("look up active session for %s: %w", repositoryID, err)
	}

	fresh := &models.Session{
		ID:           models.NewID(),
		RepositoryID: repositoryID,
	}
	if err := p.store.CreateSession(ctx, fresh); err != nil {
		return "", fmt.Errorf("create session for %s: %w", repositoryID, err)
	}
	return fresh.ID, nil
}
