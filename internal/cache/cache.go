// Package cache provides Redis-backed caching and usage counters.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantops/sensor-pipeline/internal/config"
)

const (
	// Key prefixes. The cache prefix is configurable so installations
	// sharing a Redis can partition their keyspaces.
	defaultKeyPrefix = "plantops:cache:"
	usageStatsKey    = "plantops:usage_stats:"
	usageCounterKey  = "plantops:usage_count:"
)

// Cache provides Redis-backed response caching.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// New creates a Redis-backed cache. An empty keyPrefix uses the default.
func New(redisURL, keyPrefix string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}, nil
}

// Get retrieves a cached value. Returns nil if not found or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value in the cache with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.keyPrefix+key, data, ttl).Err()
}

// GetJSON retrieves and unmarshals a cached JSON value.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil // Cache miss
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals and stores a JSON value in the cache.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Delete removes a key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key).Err()
}

// DeletePattern removes all keys matching a pattern.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := c.client.Keys(ctx, c.keyPrefix+pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// IncrHourly increments the tenant's ingest counter for the current hour
// and returns the new count. Buckets expire two hours after first write so
// abandoned tenants leave no residue.
func (c *Cache) IncrHourly(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	key := fmt.Sprintf("%s%s:%s", usageCounterKey, tenantID, now.UTC().Format("2006010215"))
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, 2*time.Hour).Err(); err != nil {
			c.logger.Warn("failed to set usage counter expiry", "key", key, "error", err)
		}
	}
	return count, nil
}

// UsageStats returns the rolling usage hash maintained per tenant by the
// analytics exporter. Fields: daily_volume_gb, avg_queries_per_sec,
// sla_violations. A missing hash returns an empty map.
func (c *Cache) UsageStats(ctx context.Context, tenantID string) (map[string]string, error) {
	return c.client.HGetAll(ctx, usageStatsKey+tenantID).Result()
}

// RecordSLAViolation increments the tenant's SLA violation counter in the
// usage hash.
func (c *Cache) RecordSLAViolation(ctx context.Context, tenantID string) error {
	return c.client.HIncrBy(ctx, usageStatsKey+tenantID, "sla_violations", 1).Err()
}
