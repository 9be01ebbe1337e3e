package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// HotStore persists raw readings into the time-series tier.
type HotStore struct {
	logger *slog.Logger
}

// NewHotStore creates the hot-tier store.
func NewHotStore(logger *slog.Logger) *HotStore {
	return &HotStore{logger: logger.With("component", "hot_store")}
}

// InitSchema creates the hypertable, retention policy, indexes, and the
// tenant-isolation policy. Safe to run on every process start.
func (s *HotStore) InitSchema(ctx context.Context, q Querier) error {
	for _, stmt := range hotSchemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing hot schema: %w", err)
		}
	}
	s.logger.Info("hot tier schema ready",
		"chunk_interval", config.HotChunkInterval,
		"retention_days", config.HotRetentionDays)
	return nil
}

// UpsertReading writes one reading. A redelivery with the same identity and
// measurements hits the conflict target and rewrites the row in place, so
// duplicates are invisible to readers.
func (s *HotStore) UpsertReading(ctx context.Context, q Querier, r *types.SensorReading) error {
	var customMetrics []byte
	if len(r.CustomMetrics) > 0 {
		var err error
		customMetrics, err = json.Marshal(r.CustomMetrics)
		if err != nil {
			return fmt.Errorf("encoding custom metrics: %w", err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO sensor_data_raw (
			time, equipment_id, tenant_id,
			temperature, vibration, pressure, power_consumption,
			custom_metrics, facility_id, line_id,
			ingestion_timestamp, source, has_anomalies, data_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (time, equipment_id, tenant_id) DO UPDATE SET
			temperature = EXCLUDED.temperature,
			vibration = EXCLUDED.vibration,
			pressure = EXCLUDED.pressure,
			power_consumption = EXCLUDED.power_consumption,
			custom_metrics = EXCLUDED.custom_metrics,
			facility_id = EXCLUDED.facility_id,
			line_id = EXCLUDED.line_id,
			ingestion_timestamp = EXCLUDED.ingestion_timestamp,
			source = EXCLUDED.source,
			has_anomalies = EXCLUDED.has_anomalies,
			data_hash = EXCLUDED.data_hash`,
		r.Timestamp, r.EquipmentID, r.TenantID,
		r.Temperature, r.Vibration, r.Pressure, r.PowerConsumption,
		customMetrics, r.FacilityID, r.LineID,
		timeOrNil(r.IngestionTimestamp), r.Source, r.HasAnomalies, r.ContentHash())
	if err != nil {
		return fmt.Errorf("upserting reading: %w", err)
	}
	return nil
}

// RecentReadings returns readings for one piece of equipment in [start, end),
// newest first. limit caps the row count; zero applies the configured maximum.
func (s *HotStore) RecentReadings(ctx context.Context, q Querier, equipmentID string, start, end time.Time, limit int) ([]types.SensorReading, error) {
	if limit <= 0 || limit > config.MaxMetricsRows {
		limit = config.MaxMetricsRows
	}

	rows, err := q.Query(ctx, `
		SELECT time, equipment_id, tenant_id,
			temperature, vibration, pressure, power_consumption,
			custom_metrics, facility_id, line_id,
			ingestion_timestamp, source, has_anomalies
		FROM sensor_data_raw
		WHERE equipment_id = $1 AND time >= $2 AND time < $3
		ORDER BY time DESC
		LIMIT $4`,
		equipmentID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []types.SensorReading
	for rows.Next() {
		var r types.SensorReading
		var customMetrics []byte
		var facility, line, source *string
		var ingestion *time.Time
		if err := rows.Scan(
			&r.Timestamp, &r.EquipmentID, &r.TenantID,
			&r.Temperature, &r.Vibration, &r.Pressure, &r.PowerConsumption,
			&customMetrics, &facility, &line,
			&ingestion, &source, &r.HasAnomalies,
		); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if len(customMetrics) > 0 {
			if err := json.Unmarshal(customMetrics, &r.CustomMetrics); err != nil {
				return nil, fmt.Errorf("decoding custom metrics: %w", err)
			}
		}
		if facility != nil {
			r.FacilityID = *facility
		}
		if line != nil {
			r.LineID = *line
		}
		if ingestion != nil {
			r.IngestionTimestamp = *ingestion
		}
		if source != nil {
			r.Source = *source
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
