package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

// WarmStore maintains the per-equipment current-state snapshot.
type WarmStore struct {
	logger *slog.Logger
}

// NewWarmStore creates the warm-tier store.
func NewWarmStore(logger *slog.Logger) *WarmStore {
	return &WarmStore{logger: logger.With("component", "warm_store")}
}

// InitSchema creates the equipment_status table and its tenant-isolation
// policy. Safe to run on every process start.
func (s *WarmStore) InitSchema(ctx context.Context, q Querier) error {
	for _, stmt := range warmSchemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing warm schema: %w", err)
		}
	}
	s.logger.Info("warm tier schema ready")
	return nil
}

// UpsertStatus overwrites the equipment's snapshot with the values from one
// reading. Equipment with any anomaly attached is marked anomalous,
// otherwise online.
func (s *WarmStore) UpsertStatus(ctx context.Context, q Querier, r *types.SensorReading) error {
	status := types.EquipmentOnline
	if r.HasAnomalies {
		status = types.EquipmentAnomalous
	}

	_, err := q.Exec(ctx, `
		INSERT INTO equipment_status (
			equipment_id, tenant_id, last_seen,
			current_temperature, current_vibration, current_pressure,
			status, facility_id, line_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (equipment_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			last_seen = EXCLUDED.last_seen,
			current_temperature = EXCLUDED.current_temperature,
			current_vibration = EXCLUDED.current_vibration,
			current_pressure = EXCLUDED.current_pressure,
			status = EXCLUDED.status,
			facility_id = EXCLUDED.facility_id,
			line_id = EXCLUDED.line_id,
			updated_at = NOW()`,
		r.EquipmentID, r.TenantID, r.Timestamp,
		r.Temperature, r.Vibration, r.Pressure,
		status, r.FacilityID, r.LineID)
	if err != nil {
		return fmt.Errorf("upserting equipment status: %w", err)
	}
	return nil
}

// GetStatus returns one equipment's snapshot, or (nil, nil) when the
// equipment has never reported.
func (s *WarmStore) GetStatus(ctx context.Context, q Querier, equipmentID string) (*types.EquipmentStatus, error) {
	row := q.QueryRow(ctx, `
		SELECT equipment_id, last_seen,
			current_temperature, current_vibration, current_pressure,
			status, facility_id, line_id, updated_at
		FROM equipment_status
		WHERE equipment_id = $1`,
		equipmentID)

	st, err := scanStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying equipment status: %w", err)
	}
	return st, nil
}

// ListStatuses returns every equipment snapshot visible on the connection,
// most recently seen first. Row-level security scopes the result to the
// session's tenant.
func (s *WarmStore) ListStatuses(ctx context.Context, q Querier) ([]types.EquipmentStatus, error) {
	rows, err := q.Query(ctx, `
		SELECT equipment_id, last_seen,
			current_temperature, current_vibration, current_pressure,
			status, facility_id, line_id, updated_at
		FROM equipment_status
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing equipment statuses: %w", err)
	}
	defer rows.Close()

	var statuses []types.EquipmentStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment status: %w", err)
		}
		statuses = append(statuses, *st)
	}
	return statuses, rows.Err()
}

// MarkOffline flags equipment that has not reported within the window and
// returns the rows it transitioned, so the caller can raise an anomaly per
// newly silent machine.
func (s *WarmStore) MarkOffline(ctx context.Context, q Querier, silentFor time.Duration) ([]types.EquipmentStatus, error) {
	rows, err := q.Query(ctx, `
		UPDATE equipment_status
		SET status = $1, updated_at = NOW()
		WHERE status <> $1 AND last_seen < NOW() - $2::interval
		RETURNING equipment_id, last_seen, facility_id, line_id`,
		types.EquipmentOffline, silentFor.String())
	if err != nil {
		return nil, fmt.Errorf("marking equipment offline: %w", err)
	}
	defer rows.Close()

	var marked []types.EquipmentStatus
	for rows.Next() {
		var st types.EquipmentStatus
		var facility, line *string
		if err := rows.Scan(&st.EquipmentID, &st.LastSeen, &facility, &line); err != nil {
			return nil, fmt.Errorf("scanning offline equipment: %w", err)
		}
		if facility != nil {
			st.FacilityID = *facility
		}
		if line != nil {
			st.LineID = *line
		}
		st.Status = types.EquipmentOffline
		marked = append(marked, st)
	}
	return marked, rows.Err()
}

func scanStatus(row pgx.Row) (*types.EquipmentStatus, error) {
	var st types.EquipmentStatus
	var facility, line *string
	if err := row.Scan(
		&st.EquipmentID, &st.LastSeen,
		&st.CurrentTemperature, &st.CurrentVibration, &st.CurrentPressure,
		&st.Status, &facility, &line, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if facility != nil {
		st.FacilityID = *facility
	}
	if line != nil {
		st.LineID = *line
	}
	return &st, nil
}
