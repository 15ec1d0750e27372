package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/fleet-lab/fleet-reporter/internal/core/stats"
)

// StatsAdapter implements storage.StatsStore on the fleet_statistics table.
// The whole table is one row; statement-level atomicity of the increment
// upsert is what keeps concurrent increments from corrupting it.
type StatsAdapter struct {
	db *sql.DB
}

// NewStatsAdapter creates a StatsAdapter sharing the given connection pool.
func NewStatsAdapter(db *sql.DB) *StatsAdapter {
	return &StatsAdapter{db: db}
}

// ApplyDelta applies a batch delta as a single atomic increment-upsert and
// returns the statistics as they stand after the update.
func (a *StatsAdapter) ApplyDelta(
	ctx context.Context,
	delta stats.BatchDelta,
	committedAt time.Time,
) (*v1.FleetStatistics, error) {
	typeCount, err := marshalCounts(delta.TypeCount)
	if err != nil {
		return nil, fmt.Errorf("stats apply delta: encode type counts: %w", err)
	}
	powerSourceCount, err := marshalCounts(delta.PowerSourceCount)
	if err != nil {
		return nil, fmt.Errorf("stats apply delta: encode power source counts: %w", err)
	}
	decadeCount, err := marshalCounts(delta.DecadeCount)
	if err != nil {
		return nil, fmt.Errorf("stats apply delta: encode decade counts: %w", err)
	}

	row := a.db.QueryRowContext(ctx, queryApplyDelta,
		statsDocumentID,
		delta.VehicleCount,
		delta.HorsepowerSum,
		typeCount,
		powerSourceCount,
		decadeCount,
		committedAt,
		delta.VehicleCount,
	)

	updated, err := scanStatistics(row)
	if err != nil {
		return nil, fmt.Errorf("stats apply delta: %w", err)
	}

	slog.Debug("[StatsAdapter] Applied batch delta",
		"vehicles_added", delta.VehicleCount,
		"total_vehicles", updated.TotalVehicles)
	return updated, nil
}

// SetAverageHorsepower writes back the derived average for the singleton row.
func (a *StatsAdapter) SetAverageHorsepower(ctx context.Context, average int64) error {
	result, err := a.db.ExecContext(ctx, querySetAverage,
		statsDocumentID, average, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("stats set average: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("stats set average: check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("stats set average: statistics row missing")
	}
	return nil
}

// GetFleetStatistics reads the singleton row. A missing row yields the
// zero-valued default so the read path never errors on "no data yet".
func (a *StatsAdapter) GetFleetStatistics(ctx context.Context) (*v1.FleetStatistics, error) {
	row := a.db.QueryRowContext(ctx, queryGetStatistics, statsDocumentID)

	current, err := scanStatistics(row)
	if err == sql.ErrNoRows {
		return v1.DefaultFleetStatistics(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats get: %w", err)
	}
	return current, nil
}

// rowScanner lets scanStatistics serve both QueryRow results.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatistics(row rowScanner) (*v1.FleetStatistics, error) {
	var (
		result           v1.FleetStatistics
		typeCount        []byte
		powerSourceCount []byte
		decadeCount      []byte
	)

	err := row.Scan(
		&result.TotalVehicles,
		&result.TotalHorsepower,
		&result.AverageHorsepower,
		&typeCount,
		&powerSourceCount,
		&decadeCount,
		&result.LastUpdated,
		&result.LastBatchSize,
	)
	if err != nil {
		return nil, err
	}

	if result.TypeCount, err = unmarshalCounts(typeCount); err != nil {
		return nil, fmt.Errorf("decode type counts: %w", err)
	}
	if result.PowerSourceCount, err = unmarshalCounts(powerSourceCount); err != nil {
		return nil, fmt.Errorf("decode power source counts: %w", err)
	}
	if result.DecadeCount, err = unmarshalCounts(decadeCount); err != nil {
		return nil, fmt.Errorf("decode decade counts: %w", err)
	}

	result.Normalize()
	return &result, nil
}

func marshalCounts(counts map[string]int64) ([]byte, error) {
	if counts == nil {
		counts = map[string]int64{}
	}
	return json.Marshal(counts)
}

func unmarshalCounts(raw []byte) (map[string]int64, error) {
	if len(raw) == 0 {
		return map[string]int64{}, nil
	}
	var counts map[string]int64
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}
