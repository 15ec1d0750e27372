package storage

import (
	"context"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/fleet-lab/fleet-reporter/internal/core/stats"
)

// StatsStore owns the fleet_statistics singleton document.
// Only the commit processor writes to it.
type StatsStore interface {
	// ApplyDelta applies the batch delta as one atomic increment-upsert:
	// counters and sums are added, lastUpdated/lastBatchSize overwritten,
	// and the document is created on first commit. Returns the statistics
	// as they stand after the update.
	ApplyDelta(ctx context.Context, delta stats.BatchDelta, committedAt time.Time) (*v1.FleetStatistics, error)

	// SetAverageHorsepower writes back the derived average. Separate from
	// ApplyDelta because an increment primitive cannot compute ratios.
	SetAverageHorsepower(ctx context.Context, average int64) error

	// GetFleetStatistics reads the singleton. A missing document yields the
	// zero-valued default, never an error.
	GetFleetStatistics(ctx context.Context) (*v1.FleetStatistics, error)
}

// ProcessedStore owns the processed_vehicles idempotency collection.
type ProcessedStore interface {
	// FilterProcessed returns the subset of aids already recorded as
	// processed. The empty set for an empty input without a round-trip.
	FilterProcessed(ctx context.Context, aids []string) (map[string]struct{}, error)

	// MarkProcessed records aids as processed under a diagnostic batch id.
	// Re-marking an aid that a concurrent committer already recorded is
	// expected and absorbed, never surfaced as an error.
	MarkProcessed(ctx context.Context, aids []string, batchID string) error

	// DeleteProcessedBefore removes idempotency records older than cutoff,
	// returning how many were deleted. Backs the retention sweeper.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
