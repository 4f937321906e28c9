// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tenxafrica/intake/internal/domain"
)

// ErrNotFound is returned when no session exists for an id.
var ErrNotFound = errors.New("session not found")

// Repository persists engine session snapshots. It stores only what the
// browser would otherwise hold in memory; submitted leads live elsewhere.
type Repository interface {
	// GetSession retrieves a session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// SaveSession creates or replaces a session snapshot.
	SaveSession(ctx context.Context, s *domain.Session) error

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpired removes sessions not updated within ttl and returns how
	// many were removed.
	DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

func encodeSession(s *domain.Session) ([]byte, error) {
	data, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*domain.Session, error) {
	var s domain.Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.EnsureMaps()
	return &s, nil
}
