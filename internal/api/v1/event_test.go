package v1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVehicleEventFromData(t *testing.T) {
	// Decoded JSON payloads carry numbers as float64.
	data := map[string]interface{}{
		"aid":         "veh-1",
		"type":        "sedan",
		"powerSource": "gasoline",
		"hp":          float64(150),
		"year":        float64(2015),
	}

	evt := VehicleEventFromData(data)
	require.Equal(t, "veh-1", evt.AID)
	require.Equal(t, "sedan", evt.Type)
	require.Equal(t, "gasoline", evt.PowerSource)
	require.Equal(t, int64(150), evt.HP)
	require.Equal(t, 2015, evt.Year)
}

func TestVehicleEventFromData_MissingFields(t *testing.T) {
	evt := VehicleEventFromData(map[string]interface{}{"aid": "veh-2"})
	require.Equal(t, "veh-2", evt.AID)
	require.Empty(t, evt.Type)
	require.Empty(t, evt.PowerSource)
	require.Zero(t, evt.HP)
	require.Zero(t, evt.Year)
}

func TestVehicleEventFromData_NilAndWrongTypes(t *testing.T) {
	require.Error(t, VehicleEventFromData(nil).Validate())

	evt := VehicleEventFromData(map[string]interface{}{
		"aid":  42, // not a string, ignored
		"hp":   "fast",
		"year": "old",
	})
	require.Error(t, evt.Validate())
	require.Zero(t, evt.HP)
	require.Zero(t, evt.Year)
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	raw := []byte(`{
		"eventType": "VehicleGenerated",
		"eventTypeVersion": 1,
		"data": {"aid": "veh-3", "type": "truck", "hp": 300, "year": 1995},
		"timestamp": 1756468800000
	}`)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, "VehicleGenerated", envelope.EventType)

	evt := VehicleEventFromData(envelope.Data)
	require.NoError(t, evt.Validate())
	require.Equal(t, "truck", evt.Type)
	require.Equal(t, int64(300), evt.HP)
	require.Equal(t, 1995, evt.Year)
}

func TestDefaultFleetStatistics(t *testing.T) {
	defaults := DefaultFleetStatistics()
	require.Zero(t, defaults.TotalVehicles)
	require.Zero(t, defaults.AverageHorsepower)
	require.NotNil(t, defaults.TypeCount)
	require.NotNil(t, defaults.PowerSourceCount)
	require.NotNil(t, defaults.DecadeCount)
	require.False(t, defaults.LastUpdated.IsZero())
}
