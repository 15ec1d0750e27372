package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ProcessedAdapter implements storage.ProcessedStore on the processed_vehicles
// table. The unique aid constraint there is the sole correctness backstop
// against double counting if a second service instance runs the same pipeline.
type ProcessedAdapter struct {
	db *sql.DB
}

// NewProcessedAdapter creates a ProcessedAdapter sharing the given connection pool.
func NewProcessedAdapter(db *sql.DB) *ProcessedAdapter {
	return &ProcessedAdapter{db: db}
}

// FilterProcessed returns which of the given aids are already recorded.
func (a *ProcessedAdapter) FilterProcessed(ctx context.Context, aids []string) (map[string]struct{}, error) {
	processed := make(map[string]struct{})
	if len(aids) == 0 {
		return processed, nil
	}

	rows, err := a.db.QueryContext(ctx, queryFilterProcessed, pq.Array(aids))
	if err != nil {
		return nil, fmt.Errorf("filter processed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var aid string
		if err := rows.Scan(&aid); err != nil {
			return nil, fmt.Errorf("filter processed: scan row: %w", err)
		}
		processed[aid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter processed: iterate rows: %w", err)
	}

	return processed, nil
}

// MarkProcessed records the given aids under one batch id. Aids already
// recorded by a concurrent committer are skipped by ON CONFLICT DO NOTHING;
// the insert reports how many rows actually landed.
func (a *ProcessedAdapter) MarkProcessed(ctx context.Context, aids []string, batchID string) error {
	if len(aids) == 0 {
		return nil
	}

	result, err := a.db.ExecContext(ctx, queryMarkProcessed,
		pq.Array(aids), time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processed: check rows affected: %w", err)
	}
	if inserted < int64(len(aids)) {
		slog.Debug("[ProcessedAdapter] Some aids already recorded by another committer",
			"batch_id", batchID,
			"requested", len(aids),
			"inserted", inserted)
	}
	return nil
}

// DeleteProcessedBefore removes idempotency records older than cutoff.
func (a *ProcessedAdapter) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, queryDeleteProcessedBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete processed: check rows affected: %w", err)
	}
	return deleted, nil
}
