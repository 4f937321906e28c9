package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tenxafrica/intake/internal/domain"
)

// RedisKeyPrefix namespaces session keys.
const RedisKeyPrefix = "intake:session:"

// RedisStore keeps snapshots as string keys whose expiry is refreshed on every
// save, so Redis itself evicts idle sessions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Repository = (*RedisStore)(nil)

// NewRedis creates a Redis-backed repository. ttl is the idle lifetime of a
// session.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// GetSession retrieves a session by id.
func (r *RedisStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	v, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(v)
}

// SaveSession stores a snapshot and refreshes its expiry.
func (r *RedisStore) SaveSession(ctx context.Context, s *domain.Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// DeleteSession removes a session.
func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: keys expire on their own.
func (r *RedisStore) DeleteExpired(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sessionKey(id string) string {
	return RedisKeyPrefix + id
}
