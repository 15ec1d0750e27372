package stats

import (
	"testing"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/stretchr/testify/require"
)

var refTime = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func TestComputeBatchDelta_Example(t *testing.T) {
	events := []*v1.VehicleEvent{
		{AID: "a", HP: 100, Type: "sedan", PowerSource: "gasoline", Year: 2015},
		{AID: "b", HP: 300, Type: "truck", PowerSource: "diesel", Year: 1995},
	}

	delta := ComputeBatchDelta(events, refTime)

	require.Equal(t, int64(2), delta.VehicleCount)
	require.Equal(t, int64(400), delta.HorsepowerSum)
	require.Equal(t, map[string]int64{"sedan": 1, "truck": 1}, delta.TypeCount)
	require.Equal(t, map[string]int64{"gasoline": 1, "diesel": 1}, delta.PowerSourceCount)
	require.Equal(t, map[string]int64{"2010s": 1, "1990s": 1}, delta.DecadeCount)
}

func TestComputeBatchDelta_DefaultsMissingFields(t *testing.T) {
	// Only an aid: hp counts as 0, categories bucket under unknown and the
	// decade comes from the reference time's year.
	delta := ComputeBatchDelta([]*v1.VehicleEvent{{AID: "bare"}}, refTime)

	require.Equal(t, int64(1), delta.VehicleCount)
	require.Equal(t, int64(0), delta.HorsepowerSum)
	require.Equal(t, map[string]int64{v1.CategoryUnknown: 1}, delta.TypeCount)
	require.Equal(t, map[string]int64{v1.CategoryUnknown: 1}, delta.PowerSourceCount)
	require.Equal(t, map[string]int64{"2020s": 1}, delta.DecadeCount)
}

func TestComputeBatchDelta_EmptyBatch(t *testing.T) {
	delta := ComputeBatchDelta(nil, refTime)

	require.True(t, delta.IsZero())
	require.Empty(t, delta.TypeCount)
	require.Empty(t, delta.PowerSourceCount)
	require.Empty(t, delta.DecadeCount)
}

func TestComputeBatchDelta_CountInvariant(t *testing.T) {
	events := []*v1.VehicleEvent{
		{AID: "1", Type: "sedan", PowerSource: "electric", Year: 2021},
		{AID: "2", Type: "sedan", Year: 2019},
		{AID: "3", PowerSource: "hybrid"},
		{AID: "4", Type: "suv", PowerSource: "gasoline", Year: 1987},
		{AID: "5"},
	}

	delta := ComputeBatchDelta(events, refTime)

	require.Equal(t, delta.VehicleCount, sumCounts(delta.TypeCount))
	require.Equal(t, delta.VehicleCount, sumCounts(delta.PowerSourceCount))
	require.Equal(t, delta.VehicleCount, sumCounts(delta.DecadeCount))
}

func TestDecadeLabel(t *testing.T) {
	tests := []struct {
		year int
		want string
	}{
		{2015, "2010s"},
		{1995, "1990s"},
		{2000, "2000s"},
		{2009, "2000s"},
		{1980, "1980s"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, DecadeLabel(tc.year), "year %d", tc.year)
	}
}

func TestAverageHorsepower(t *testing.T) {
	tests := []struct {
		name          string
		totalHP       int64
		totalVehicles int64
		want          int64
	}{
		{"exact division", 400, 2, 200},
		{"rounds down", 100, 3, 33},
		{"rounds up", 200, 3, 67},
		{"rounds half up", 150, 4, 38},
		{"zero vehicles yields zero", 500, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, AverageHorsepower(tc.totalHP, tc.totalVehicles))
		})
	}
}

func sumCounts(counts map[string]int64) int64 {
	var total int64
	for _, count := range counts {
		total += count
	}
	return total
}
