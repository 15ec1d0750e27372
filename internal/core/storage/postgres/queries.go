package postgres

// SQL queries for the fleet statistics and idempotency collections.
// Organized here to keep adapter logic readable.
const (
	// statsDocumentID keys the singleton fleet_statistics row. The table
	// holds exactly one document for the whole fleet.
	statsDocumentID = "fleet-statistics"

	// queryApplyDelta is the one-statement increment-upsert that applies a
	// batch delta. Counters and sums are added onto the stored values, the
	// jsonb count maps are merged key-wise by jsonb_add_counts (installed by
	// migrations), and the bookkeeping fields are overwritten. The upsert
	// creates the document on the first ever commit.
	queryApplyDelta = `
		INSERT INTO fleet_statistics (
			id, total_vehicles, total_horsepower,
			type_count, power_source_count, decade_count,
			last_updated, last_batch_size
		) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			total_vehicles     = fleet_statistics.total_vehicles + EXCLUDED.total_vehicles,
			total_horsepower   = fleet_statistics.total_horsepower + EXCLUDED.total_horsepower,
			type_count         = jsonb_add_counts(fleet_statistics.type_count, EXCLUDED.type_count),
			power_source_count = jsonb_add_counts(fleet_statistics.power_source_count, EXCLUDED.power_source_count),
			decade_count       = jsonb_add_counts(fleet_statistics.decade_count, EXCLUDED.decade_count),
			last_updated       = EXCLUDED.last_updated,
			last_batch_size    = EXCLUDED.last_batch_size
		RETURNING
			total_vehicles, total_horsepower, average_horsepower,
			type_count, power_source_count, decade_count,
			last_updated, last_batch_size
	`

	// querySetAverage writes back the derived average. Separate statement:
	// the increment-upsert cannot compute ratios.
	querySetAverage = `
		UPDATE fleet_statistics
		SET average_horsepower = $2, averages_updated_at = $3
		WHERE id = $1
	`

	queryGetStatistics = `
		SELECT
			total_vehicles, total_horsepower, average_horsepower,
			type_count, power_source_count, decade_count,
			last_updated, last_batch_size
		FROM fleet_statistics
		WHERE id = $1
	`

	queryFilterProcessed = `
		SELECT aid
		FROM processed_vehicles
		WHERE aid = ANY($1)
	`

	// queryMarkProcessed records a batch of aids. ON CONFLICT DO NOTHING
	// absorbs aids already recorded by an earlier commit, so redelivered
	// ids never fail the insert.
	queryMarkProcessed = `
		INSERT INTO processed_vehicles (aid, processed_at, batch_id)
		SELECT unnest($1::text[]), $2, $3
		ON CONFLICT (aid) DO NOTHING
	`

	queryDeleteProcessedBefore = `
		DELETE FROM processed_vehicles
		WHERE processed_at < $1
	`
)
