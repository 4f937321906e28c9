package store

import (
	"context"
	"sync"
	"time"

	"github.com/tenxafrica/intake/internal/domain"
)

// MemoryStore keeps encoded snapshots in process. Callers get copies, never
// the stored value.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	data      []byte
	updatedAt time.Time
}

// NewMemory creates an in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// GetSession retrieves a session by id.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSession(entry.data)
}

// SaveSession stores a snapshot of s.
func (m *MemoryStore) SaveSession(_ context.Context, s *domain.Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = memoryEntry{data: data, updatedAt: m.now()}
	m.mu.Unlock()
	return nil
}

// DeleteSession removes a session.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// DeleteExpired removes sessions idle for longer than ttl.
func (m *MemoryStore) DeleteExpired(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, entry := range m.sessions {
		if entry.updatedAt.Before(threshold) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
