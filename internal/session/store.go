// Package session defines the session store contract and its in-memory and Redis backends.
package session

import (
	"context"
	"errors"

	"llmhub/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations are safe for concurrent use and
// return copies, so callers may mutate what they get back.
type Store interface {
	Name() string
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	// Get returns ErrNotFound for unknown ids. A session past its expiry is
	// returned with status expired when the backend still holds it.
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	// List returns sessions newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.Session, error)
	// Count returns how many sessions the backend holds, including expired
	// ones not yet swept.
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) domain.ComponentHealth
	Close() error
}

// Sweeper is implemented by stores that need explicit removal of expired sessions.
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) || limit <= 0 {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
