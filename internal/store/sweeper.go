package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often StartSweeper looks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically removes sessions
// idle for longer than ttl. It stops when ctx is cancelled; the returned
// channel is closed once it has.
func StartSweeper(ctx context.Context, repo Repository, interval, ttl time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, repo Repository, ttl time.Duration) {
	deleted, err := repo.DeleteExpired(ctx, ttl)
	if err != nil {
		slog.Error("Session sweeper failed to delete expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper removed idle sessions", "count", deleted)
	}
}
