// Package stats holds the pure aggregation math for fleet statistics.
// Nothing in this package touches a store or a clock beyond the injected
// reference time, so every function is independently unit-testable.
package stats

import (
	"fmt"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/shopspring/decimal"
)

// BatchDelta is the incremental contribution of one batch of new vehicles.
// All values are additive: applying a delta to the aggregate is a set of
// counter increments, never an overwrite.
type BatchDelta struct {
	VehicleCount     int64
	HorsepowerSum    int64
	TypeCount        map[string]int64
	PowerSourceCount map[string]int64
	DecadeCount      map[string]int64
}

// IsZero reports whether the delta carries no contribution.
func (d *BatchDelta) IsZero() bool {
	return d.VehicleCount == 0
}

// ComputeBatchDelta folds a batch of vehicle events into count/sum deltas.
// Defaulting rules: hp missing -> 0, type/powerSource missing -> "unknown",
// year missing -> the year of the reference time now.
func ComputeBatchDelta(events []*v1.VehicleEvent, now time.Time) BatchDelta {
	delta := BatchDelta{
		TypeCount:        make(map[string]int64),
		PowerSourceCount: make(map[string]int64),
		DecadeCount:      make(map[string]int64),
	}

	for _, evt := range events {
		delta.VehicleCount++
		delta.HorsepowerSum += evt.HP

		vehicleType := evt.Type
		if vehicleType == "" {
			vehicleType = v1.CategoryUnknown
		}
		delta.TypeCount[vehicleType]++

		powerSource := evt.PowerSource
		if powerSource == "" {
			powerSource = v1.CategoryUnknown
		}
		delta.PowerSourceCount[powerSource]++

		year := evt.Year
		if year == 0 {
			year = now.Year()
		}
		delta.DecadeCount[DecadeLabel(year)]++
	}

	return delta
}

// DecadeLabel buckets a model year into its decade, e.g. 1995 -> "1990s".
func DecadeLabel(year int) string {
	decade := (year / 10) * 10
	return fmt.Sprintf("%ds", decade)
}

// AverageHorsepower computes round(totalHorsepower / totalVehicles).
// Returns 0 when totalVehicles is 0; callers must not write that value back
// (the prior average stays untouched when the fleet is empty).
func AverageHorsepower(totalHorsepower, totalVehicles int64) int64 {
	if totalVehicles == 0 {
		return 0
	}
	return decimal.NewFromInt(totalHorsepower).
		DivRound(decimal.NewFromInt(totalVehicles), 0).
		IntPart()
}
