package dataplane

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Selector resolves a tenant context into concrete data-plane resources.
type Selector interface {
	Select(ctx context.Context, tenant *types.TenantContext) (*DataPlane, error)
}

// UsageStatsProvider supplies the traffic figures the promotion rules
// compare against. Implementations may return (nil, nil) when no stats
// exist for the tenant yet.
type UsageStatsProvider interface {
	Stats(ctx context.Context, tenantID string) (*types.UsageStats, error)
}

// Config holds the process-wide resources the selector allocates from.
type Config struct {
	SharedHot    *pgxpool.Pool
	SharedWarm   *pgxpool.Pool
	SharedBucket string

	// PriorityTopic and SharedTopic are platform-wide topic names; the
	// per-tenant topics are derived from the tenant id.
	PriorityTopic string
	SharedTopic   string

	// Usage feeds the dedicated-pool promotion rules. Nil disables
	// usage-based promotion; enterprise-tier promotion still applies.
	Usage UsageStatsProvider
}

// PoolSelector is the production Selector. It owns the lazy map of
// dedicated tenant pools.
type PoolSelector struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	dedicated map[string]*pgxpool.Pool
}

// NewPoolSelector creates a selector over the process-wide shared pools.
func NewPoolSelector(cfg Config, logger *slog.Logger) *PoolSelector {
	return &PoolSelector{
		cfg:       cfg,
		logger:    logger.With("component", "dataplane"),
		dedicated: make(map[string]*pgxpool.Pool),
	}
}

// Select returns the data plane for one tenant. The result is cheap to
// build and not cached; the pools behind it are.
func (s *PoolSelector) Select(ctx context.Context, tenant *types.TenantContext) (*DataPlane, error) {
	hot, err := s.hotHandle(ctx, tenant)
	if err != nil {
		return nil, err
	}

	// The warm tier is always pooled. Per-equipment snapshots are low
	// volume, so dedicated warm pools would buy isolation nothing extra
	// beyond what the session tag already enforces.
	warm := tenantHandle{
		inner:    directHandle{pool: s.cfg.SharedWarm, acquireTimeout: config.DedicatedAcquireTimeout},
		tenantID: tenant.TenantID,
	}

	dp := &DataPlane{
		TenantID: tenant.TenantID,
		Hot:      hot,
		Warm:     warm,
		Object:   s.objectTarget(tenant),
		Topics:   s.topics(tenant),
		Sinks: SinkConfig{
			NotificationTopics: tenant.Alerting.NotificationTopics,
			WebhookURLs:        tenant.Alerting.WebhookURLs,
		},
	}
	return dp, nil
}

func (s *PoolSelector) hotHandle(ctx context.Context, tenant *types.TenantContext) (PoolHandle, error) {
	if tenant.Isolated() && s.shouldPromote(ctx, tenant) {
		pool, err := s.dedicatedPool(ctx, tenant)
		if err != nil {
			return nil, err
		}
		return directHandle{pool: pool, acquireTimeout: config.DedicatedAcquireTimeout}, nil
	}

	return tenantHandle{
		inner:    directHandle{pool: s.cfg.SharedHot, acquireTimeout: config.SharedAcquireTimeout},
		tenantID: tenant.TenantID,
	}, nil
}

// shouldPromote decides whether an isolated tenant's traffic justifies its
// own hot pool. Enterprise tenants always qualify; everyone else earns it
// through volume, query rate, or SLA pressure.
func (s *PoolSelector) shouldPromote(ctx context.Context, tenant *types.TenantContext) bool {
	if tenant.Tier == types.TierEnterprise {
		return true
	}
	if s.cfg.Usage == nil {
		return false
	}

	stats, err := s.cfg.Usage.Stats(ctx, tenant.TenantID)
	if err != nil {
		s.logger.Warn("usage stats unavailable, keeping shared pool",
			"tenant_id", tenant.TenantID, "error", err)
		return false
	}
	if stats == nil {
		return false
	}
	return stats.DailyVolumeGB > config.PromotionDailyVolumeGB ||
		stats.AvgQueriesPerSec > config.PromotionQueriesPerSec ||
		stats.SLAViolations > config.PromotionSLAViolations
}

func (s *PoolSelector) dedicatedPool(ctx context.Context, tenant *types.TenantContext) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pool, ok := s.dedicated[tenant.TenantID]; ok {
		return pool, nil
	}

	size := tenant.Data.MaxPoolConnections
	if size <= 0 {
		size = config.DefaultDedicatedPoolSize
	}
	if size > config.MaxDedicatedConnections {
		size = config.MaxDedicatedConnections
	}

	pcfg, err := pgxpool.ParseConfig(tenant.Data.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: parsing dedicated connection string: %w", tenant.TenantID, err)
	}
	pcfg.MaxConns = int32(size)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: opening dedicated pool: %w", tenant.TenantID, err)
	}

	s.dedicated[tenant.TenantID] = pool
	s.logger.Info("dedicated hot pool opened",
		"tenant_id", tenant.TenantID, "max_conns", size)
	return pool, nil
}

func (s *PoolSelector) objectTarget(tenant *types.TenantContext) ObjectTarget {
	if tenant.Isolated() && tenant.Objects.DedicatedBucket != "" {
		return ObjectTarget{Bucket: tenant.Objects.DedicatedBucket}
	}
	return ObjectTarget{
		Bucket: s.cfg.SharedBucket,
		Prefix: "tenants/" + tenant.TenantID + "/",
	}
}

func (s *PoolSelector) topics(tenant *types.TenantContext) StreamTopics {
	t := StreamTopics{
		SensorData:     "sensor-data-" + tenant.TenantID,
		Alerts:         "alerts-" + tenant.TenantID,
		PriorityAlerts: s.cfg.PriorityTopic,
	}
	if tenant.DeploymentMode == types.DeploymentShared {
		t.Shared = s.cfg.SharedTopic
	}
	return t
}

// DedicatedPoolCount reports how many tenant pools have been opened.
func (s *PoolSelector) DedicatedPoolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dedicated)
}

// Close releases every dedicated pool. The shared pools belong to the
// caller and are closed separately.
func (s *PoolSelector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, pool := range s.dedicated {
		pool.Close()
		delete(s.dedicated, tenantID)
	}
}
