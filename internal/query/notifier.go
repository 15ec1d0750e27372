package query

import (
	"encoding/json"
	"log/slog"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
)

const (
	updatedEventType    = "FleetStatisticsUpdated"
	updatedEventVersion = 1
	aggregateType       = "FleetStats"
	aggregateID         = "fleet-statistics"
)

// Publisher sends an envelope to a bus topic.
type Publisher interface {
	Publish(topic string, envelope *v1.EventEnvelope) error
}

// UpdateNotifier publishes refreshed statistics to the materialized-view
// topic after each successful commit. Notification is fire-and-forget:
// publish failures are logged and never roll back or retry the commit.
type UpdateNotifier struct {
	publisher Publisher
	topic     string
}

// NewUpdateNotifier creates the notifier for the given topic.
func NewUpdateNotifier(publisher Publisher, topic string) *UpdateNotifier {
	if publisher == nil {
		panic("query: publisher must not be nil")
	}
	return &UpdateNotifier{publisher: publisher, topic: topic}
}

// NotifyStatisticsUpdated wraps the aggregate in the materialized-view
// envelope and publishes it.
func (n *UpdateNotifier) NotifyStatisticsUpdated(statistics *v1.FleetStatistics) {
	if statistics == nil {
		return
	}

	data, err := statisticsToData(statistics)
	if err != nil {
		slog.Error("[Notifier] Failed to encode statistics update", "error", err)
		return
	}

	envelope := &v1.EventEnvelope{
		EventType:        updatedEventType,
		EventTypeVersion: updatedEventVersion,
		AggregateType:    aggregateType,
		AggregateID:      aggregateID,
		Data:             data,
		Timestamp:        time.Now().UnixMilli(),
	}

	if err := n.publisher.Publish(n.topic, envelope); err != nil {
		slog.Error("[Notifier] Failed to publish statistics update",
			"topic", n.topic,
			"error", err)
		return
	}

	slog.Debug("[Notifier] Statistics update published",
		"topic", n.topic,
		"total_vehicles", statistics.TotalVehicles)
}

// statisticsToData round-trips the typed aggregate into the envelope's
// generic Data map.
func statisticsToData(statistics *v1.FleetStatistics) (map[string]interface{}, error) {
	raw, err := json.Marshal(statistics)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
