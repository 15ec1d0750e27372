// Package processor implements the idempotent batch commit path: each batch
// from the pipeline contributes to the fleet aggregate at most once per
// event id, applied atomically and strictly in window order.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/fleet-lab/fleet-reporter/internal/core/stats"
	"github.com/fleet-lab/fleet-reporter/internal/core/storage"
	"github.com/google/uuid"
)

// Notifier receives the refreshed aggregate after each successful non-empty
// commit. Implementations must not block the commit path on failure.
type Notifier interface {
	NotifyStatisticsUpdated(statistics *v1.FleetStatistics)
}

// CommitResult summarizes one batch commit.
type CommitResult struct {
	// Stats is the aggregate after the commit; nil when the batch
	// contributed nothing.
	Stats *v1.FleetStatistics

	// BatchID is the diagnostic tag stamped on the idempotency records.
	BatchID string

	ReceivedCount  int
	DuplicateCount int
	ProcessedCount int
}

// Processor orchestrates idempotent batch commits against the stores.
// It must never run two commits concurrently: the serialized Run loop plus
// the store's atomic increment statement are what keep the aggregate
// consistent without any application-level lock.
type Processor struct {
	statsStore     storage.StatsStore
	processedStore storage.ProcessedStore
	notifier       Notifier
	nowFn          func() time.Time
}

// New creates a Processor. notifier may be nil when no downstream
// subscription fan-out is wired.
func New(statsStore storage.StatsStore, processedStore storage.ProcessedStore, notifier Notifier) *Processor {
	if statsStore == nil {
		panic("processor: stats store must not be nil")
	}
	if processedStore == nil {
		panic("processor: processed store must not be nil")
	}
	return &Processor{
		statsStore:     statsStore,
		processedStore: processedStore,
		notifier:       notifier,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run consumes batches sequentially until the channel closes. A failed batch
// is logged and skipped, never retried here: its events were not marked as
// processed, so a redelivery from the bus can still contribute them later.
func (p *Processor) Run(ctx context.Context, batches <-chan []*v1.VehicleEvent) error {
	slog.Info("[Processor] Commit loop started")

	for batch := range batches {
		result, err := p.commitWithGrace(ctx, batch)
		if err != nil {
			slog.Error("[Processor] Batch commit failed",
				"batch_size", len(batch),
				"error", err)
			continue
		}

		slog.Debug("[Processor] Processed batch",
			"batch_id", result.BatchID,
			"received", result.ReceivedCount,
			"duplicates", result.DuplicateCount,
			"new_vehicles", result.ProcessedCount)

		if result.ProcessedCount > 0 && p.notifier != nil {
			p.notifier.NotifyStatisticsUpdated(result.Stats)
		}
	}

	slog.Info("[Processor] Commit loop stopped, batch channel closed")
	return nil
}

// shutdownGrace bounds how long commits of already-buffered batches may run
// once the parent context is cancelled.
const shutdownGrace = 30 * time.Second

// commitWithGrace commits a batch, switching to a bounded grace context once
// shutdown began so batches flushed by the pipeline still reach the store.
func (p *Processor) commitWithGrace(ctx context.Context, batch []*v1.VehicleEvent) (*CommitResult, error) {
	if ctx.Err() == nil {
		return p.CommitBatch(ctx, batch)
	}
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return p.CommitBatch(graceCtx, batch)
}

// CommitBatch runs the idempotent commit algorithm for one batch:
//
//  1. Extract candidate aids, discarding events without one.
//  2. Ask the idempotency store which aids were already processed.
//     A lookup failure degrades to "nothing processed yet" so no event is
//     wrongly discarded, accepting double-count risk during store outages.
//  3. Keep only new events; return early when none remain.
//  4. Compute the batch delta (pure).
//  5. Apply the delta as one atomic increment-upsert.
//  6. Recompute the derived average from the fresh totals; skipped when the
//     fleet is empty, leaving the prior average in place.
//  7. Mark the new aids as processed. Only reached when 5 and 6 succeeded,
//     so a failed batch stays eligible for a future redelivery.
func (p *Processor) CommitBatch(ctx context.Context, batch []*v1.VehicleEvent) (*CommitResult, error) {
	result := &CommitResult{
		BatchID:       fmt.Sprintf("batch_%s", uuid.NewString()),
		ReceivedCount: len(batch),
	}
	if len(batch) == 0 {
		return result, nil
	}

	candidates, aids := extractCandidates(batch)
	if len(candidates) == 0 {
		slog.Warn("[Processor] Batch carried no identifiable events",
			"batch_id", result.BatchID,
			"received", result.ReceivedCount)
		return result, nil
	}

	processed, err := p.processedStore.FilterProcessed(ctx, aids)
	if err != nil {
		slog.Warn("[Processor] Idempotency lookup failed, treating all events as new",
			"batch_id", result.BatchID,
			"error", err)
		processed = map[string]struct{}{}
	}

	newEvents, newAids := partitionNew(candidates, processed)
	result.DuplicateCount = len(candidates) - len(newEvents)
	if len(newEvents) == 0 {
		slog.Debug("[Processor] Batch fully deduplicated, nothing to commit",
			"batch_id", result.BatchID,
			"received", result.ReceivedCount)
		return result, nil
	}

	committedAt := p.nowFn()
	delta := stats.ComputeBatchDelta(newEvents, committedAt)

	updated, err := p.statsStore.ApplyDelta(ctx, delta, committedAt)
	if err != nil {
		return nil, fmt.Errorf("apply batch delta: %w", err)
	}

	if updated.TotalVehicles > 0 {
		average := stats.AverageHorsepower(updated.TotalHorsepower, updated.TotalVehicles)
		if err := p.statsStore.SetAverageHorsepower(ctx, average); err != nil {
			return nil, fmt.Errorf("recompute average horsepower: %w", err)
		}
		updated.AverageHorsepower = average
	}

	if err := p.processedStore.MarkProcessed(ctx, newAids, result.BatchID); err != nil {
		return nil, fmt.Errorf("mark %d aids processed: %w", len(newAids), err)
	}

	result.Stats = updated
	result.ProcessedCount = len(newEvents)

	slog.Info("[Processor] Batch committed",
		"batch_id", result.BatchID,
		"new_vehicles", result.ProcessedCount,
		"duplicates", result.DuplicateCount,
		"total_vehicles", updated.TotalVehicles,
		"average_horsepower", updated.AverageHorsepower)
	return result, nil
}

// extractCandidates keeps events carrying a valid aid, in arrival order.
func extractCandidates(batch []*v1.VehicleEvent) ([]*v1.VehicleEvent, []string) {
	candidates := make([]*v1.VehicleEvent, 0, len(batch))
	aids := make([]string, 0, len(batch))
	for _, evt := range batch {
		if err := evt.Validate(); err != nil {
			continue
		}
		candidates = append(candidates, evt)
		aids = append(aids, evt.AID)
	}
	return candidates, aids
}

// partitionNew drops events whose aid was already recorded. newAids is
// deduplicated so redeliveries inside a single window count once.
func partitionNew(candidates []*v1.VehicleEvent, processed map[string]struct{}) ([]*v1.VehicleEvent, []string) {
	newEvents := make([]*v1.VehicleEvent, 0, len(candidates))
	newAids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, evt := range candidates {
		if _, ok := processed[evt.AID]; ok {
			continue
		}
		if _, ok := seen[evt.AID]; ok {
			continue
		}
		seen[evt.AID] = struct{}{}
		newEvents = append(newEvents, evt)
		newAids = append(newAids, evt.AID)
	}
	return newEvents, newAids
}
