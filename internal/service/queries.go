package service

import (
	"context"
	"fmt"
	"time"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// ListEquipment returns every equipment snapshot the tenant can see, served
// from the response cache when fresh.
func (s *Service) ListEquipment(ctx context.Context, tn *types.TenantContext) ([]types.EquipmentStatus, error) {
	cacheKey := "equipment:" + tn.TenantID

	var cached []types.EquipmentStatus
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		return nil, fmt.Errorf("selecting data plane: %w", err)
	}

	conn, err := plane.Warm.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring warm connection: %w", err)
	}
	defer conn.Release()

	statuses, err := s.warm.ListStatuses(ctx, conn)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cacheKey, statuses, config.CacheTTLEquipmentList)
	return statuses, nil
}

// GetEquipmentStatus returns one equipment snapshot, or (nil, nil) when the
// equipment has never reported.
func (s *Service) GetEquipmentStatus(ctx context.Context, tn *types.TenantContext, equipmentID string) (*types.EquipmentStatus, error) {
	cacheKey := "equipment:" + tn.TenantID + ":" + equipmentID

	var cached types.EquipmentStatus
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		return nil, fmt.Errorf("selecting data plane: %w", err)
	}

	conn, err := plane.Warm.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring warm connection: %w", err)
	}
	defer conn.Release()

	status, err := s.warm.GetStatus(ctx, conn, equipmentID)
	if err != nil || status == nil {
		return status, err
	}

	s.cacheSet(ctx, cacheKey, status, config.CacheTTLEquipmentStatus)
	return status, nil
}

// RecentMetrics returns raw readings for one piece of equipment within
// [start, end), newest first. A zero end defaults to now; a zero start
// defaults to the configured lookback window before end.
func (s *Service) RecentMetrics(ctx context.Context, tn *types.TenantContext, equipmentID string, start, end time.Time, limit int) ([]types.SensorReading, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-config.DefaultMetricsWindow)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start %s must precede end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		return nil, fmt.Errorf("selecting data plane: %w", err)
	}

	conn, err := plane.Hot.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring hot connection: %w", err)
	}
	defer conn.Release()

	return s.hot.RecentReadings(ctx, conn, equipmentID, start, end, limit)
}

// ArchiveKeys lists the cold-tier documents for one piece of equipment
// within [start, end). Defaults mirror RecentMetrics.
func (s *Service) ArchiveKeys(ctx context.Context, tn *types.TenantContext, equipmentID string, start, end time.Time) ([]string, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-config.DefaultMetricsWindow)
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		return nil, fmt.Errorf("selecting data plane: %w", err)
	}
	return s.archive.ListKeys(ctx, plane.Object, equipmentID, start, end)
}

// Plane exposes data-plane selection for callers outside the ingest path.
func (s *Service) Plane(ctx context.Context, tn *types.TenantContext) (*dataplane.DataPlane, error) {
	return s.selector.Select(ctx, tn)
}

func (s *Service) cacheGet(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.GetJSON(ctx, key, v)
	if err != nil {
		s.logger.Debug("response cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v, ttl); err != nil {
		s.logger.Debug("response cache write failed", "key", key, "error", err)
	}
}
