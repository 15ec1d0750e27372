// Package retention expires old idempotency records. MongoDB-style TTL
// indexes do not exist in PostgreSQL, so expiry runs as a periodic sweep
// owned by this service instead of the store.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleet-lab/fleet-reporter/internal/core/storage"
)

// Sweeper periodically deletes processed-id records older than the TTL.
type Sweeper struct {
	store    storage.ProcessedStore
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper creates a sweeper deleting records older than ttl every interval.
func NewSweeper(store storage.ProcessedStore, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, ttl: ttl, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled. A failed sweep is logged
// and retried on the next tick; deletes are idempotent so nothing is lost.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Retention] Sweeper started", "ttl", s.ttl, "interval", s.interval)

	// Initial sweep catches up after downtime.
	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("[Retention] Sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	deleted, err := s.store.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("[Retention] Sweep failed", "cutoff", cutoff, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("[Retention] Expired idempotency records deleted",
			"deleted", deleted,
			"cutoff", cutoff)
	}
}
