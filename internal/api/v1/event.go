package v1

import (
	"fmt"
	"time"
)

// CategoryUnknown is the fallback bucket used whenever an event omits
// type or powerSource.
const CategoryUnknown = "unknown"

// EventEnvelope is the broker-level wrapper around every domain event.
// It separates the "Envelope" (routing/system attributes) from the "Letter" (Data).
type EventEnvelope struct {
	// EventType names the domain event, e.g. "VehicleGenerated" or
	// "FleetStatisticsUpdated".
	EventType string `json:"eventType"`

	// EventTypeVersion allows evolving the Data shape without breaking consumers.
	EventTypeVersion int `json:"eventTypeVersion"`

	// AggregateType and AggregateID identify the aggregate the event belongs to.
	AggregateType string `json:"aggregateType,omitempty"`
	AggregateID   string `json:"aggregateId,omitempty"`

	// Data is the domain-specific payload.
	Data map[string]interface{} `json:"data"`

	// Timestamp is the producer-side publish time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// VehicleEvent is the decoded payload of a VehicleGenerated envelope.
// Events are transient: once a batch commit has folded them into the fleet
// aggregate they are discarded, never persisted individually.
type VehicleEvent struct {
	// AID is the unique event identifier and the idempotency key:
	// each AID may contribute to the aggregate at most once.
	AID string `json:"aid"`

	// Type is the vehicle category ("sedan", "truck", ...). Missing or empty
	// values bucket under CategoryUnknown.
	Type string `json:"type,omitempty"`

	// PowerSource is the propulsion category ("gasoline", "electric", ...).
	PowerSource string `json:"powerSource,omitempty"`

	// HP is the horsepower rating. Absent counts as 0.
	HP int64 `json:"hp,omitempty"`

	// Year is the model year. Absent counts as the current calendar year.
	Year int `json:"year,omitempty"`
}

// Validate ensures the event carries an idempotency key. Events without one
// cannot be tracked and are dropped at the pipeline boundary.
func (e *VehicleEvent) Validate() error {
	if e.AID == "" {
		return fmt.Errorf("aid is required")
	}
	return nil
}

// VehicleEventFromData decodes the loosely-typed envelope Data map into a
// VehicleEvent. JSON numbers arrive as float64; missing fields are defaulted
// rather than rejected, matching the lossy-input policy of the pipeline.
func VehicleEventFromData(data map[string]interface{}) *VehicleEvent {
	evt := &VehicleEvent{}
	if data == nil {
		return evt
	}
	if aid, ok := data["aid"].(string); ok {
		evt.AID = aid
	}
	if t, ok := data["type"].(string); ok {
		evt.Type = t
	}
	if ps, ok := data["powerSource"].(string); ok {
		evt.PowerSource = ps
	}
	switch hp := data["hp"].(type) {
	case float64:
		evt.HP = int64(hp)
	case int64:
		evt.HP = hp
	case int:
		evt.HP = int64(hp)
	}
	switch year := data["year"].(type) {
	case float64:
		evt.Year = int(year)
	case int64:
		evt.Year = int(year)
	case int:
		evt.Year = year
	}
	return evt
}

// FleetStatistics is the single running-totals aggregate for the whole fleet.
// There is exactly one logical instance, keyed by a fixed identifier in the
// aggregate store and mutated only by the commit processor.
type FleetStatistics struct {
	TotalVehicles     int64            `json:"totalVehicles"`
	TotalHorsepower   int64            `json:"totalHorsepower"`
	AverageHorsepower int64            `json:"averageHorsepower"`
	TypeCount         map[string]int64 `json:"typeCount"`
	PowerSourceCount  map[string]int64 `json:"powerSourceCount"`
	DecadeCount       map[string]int64 `json:"decadeCount"`
	LastUpdated       time.Time        `json:"lastUpdated"`
	LastBatchSize     int64            `json:"lastBatchSize"`
}

// DefaultFleetStatistics returns the zero-valued aggregate served before the
// first batch commit. The read path never reports "no data yet" as an error;
// it substitutes this shape instead.
func DefaultFleetStatistics() *FleetStatistics {
	return &FleetStatistics{
		TypeCount:        map[string]int64{},
		PowerSourceCount: map[string]int64{},
		DecadeCount:      map[string]int64{},
		LastUpdated:      time.Now().UTC(),
	}
}

// Normalize fills nil maps so the reported shape is always complete,
// regardless of which fields the store returned.
func (s *FleetStatistics) Normalize() {
	if s.TypeCount == nil {
		s.TypeCount = map[string]int64{}
	}
	if s.PowerSourceCount == nil {
		s.PowerSourceCount = map[string]int64{}
	}
	if s.DecadeCount == nil {
		s.DecadeCount = map[string]int64{}
	}
}
