package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Message headers consumers filter on without deserializing the value.
const (
	HeaderSeverity    = "severity"
	HeaderEquipmentID = "equipment_id"
)

// ReadingRecord builds the sensor-data record for one enriched reading.
// Keying by equipment id keeps one machine's readings on one partition.
func ReadingRecord(topic string, r *types.SensorReading) (*kgo.Record, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding reading: %w", err)
	}

	severity := types.SeverityLow
	if r.HasAnomalies {
		severity = types.HighestSeverity(r.Anomalies)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(r.EquipmentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSeverity, Value: []byte(severity)},
			{Key: HeaderEquipmentID, Value: []byte(r.EquipmentID)},
		},
	}, nil
}

// AlertRecord builds the wire record for one alert, stamping published_at
// at build time.
func AlertRecord(topic string, alert *types.Alert) (*kgo.Record, error) {
	msg := types.AlertMessage{
		Alert:       *alert,
		PublishedAt: time.Now().UnixMilli(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding alert: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(alert.EquipmentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSeverity, Value: []byte(alert.Severity)},
			{Key: HeaderEquipmentID, Value: []byte(alert.EquipmentID)},
		},
	}, nil
}

// NotificationRecord builds the record for a notification topic.
func NotificationRecord(topic string, n *types.Notification) (*kgo.Record, error) {
	value, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(n.EquipmentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSeverity, Value: []byte(n.Severity)},
			{Key: HeaderEquipmentID, Value: []byte(n.EquipmentID)},
		},
	}, nil
}
