package dataplane

import (
	"context"
	"strconv"

	"github.com/plantops/sensor-pipeline/internal/cache"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// RedisUsageStats reads the operator-maintained per-tenant usage hash from
// Redis. An analytics exporter outside this process keeps the hash current;
// the selector only ever samples it.
type RedisUsageStats struct {
	cache *cache.Cache
}

// NewRedisUsageStats wraps the shared cache client as a stats provider.
func NewRedisUsageStats(c *cache.Cache) *RedisUsageStats {
	return &RedisUsageStats{cache: c}
}

// Stats returns the tenant's usage figures, or (nil, nil) when the hash is
// absent. Unparseable fields read as zero.
func (p *RedisUsageStats) Stats(ctx context.Context, tenantID string) (*types.UsageStats, error) {
	fields, err := p.cache.UsageStats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	stats := &types.UsageStats{TenantID: tenantID}
	if v, err := strconv.ParseFloat(fields["daily_volume_gb"], 64); err == nil {
		stats.DailyVolumeGB = v
	}
	if v, err := strconv.ParseFloat(fields["avg_queries_per_sec"], 64); err == nil {
		stats.AvgQueriesPerSec = v
	}
	if v, err := strconv.Atoi(fields["sla_violations"]); err == nil {
		stats.SLAViolations = v
	}
	return stats, nil
}
