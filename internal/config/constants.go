// Package config provides configuration loading and shared constants for
// the ingestion pipeline.
//
// This file centralizes the latency budgets and sizing limits that the
// pipeline enforces, making them easier to find, modify, and test.
package config

import "time"

// Latency budgets for the synchronous ingest path. The end-to-end budget
// covers receipt of a reading through the final API response; the stage
// budgets partition it.
const (
	// IngestSLA is the end-to-end processing target for a single reading.
	IngestSLA = 500 * time.Millisecond

	// DetectionBudget is the per-reading budget for threshold evaluation.
	DetectionBudget = 5 * time.Millisecond

	// DispatchBudget caps alert routing on the request path. Dispatch
	// returns when the budget expires even if slower sinks are pending.
	DispatchBudget = 100 * time.Millisecond

	// PublishGrace is how long a non-critical stream publish may hold
	// the request before being abandoned to the background.
	PublishGrace = 100 * time.Millisecond
)

// Connection pool sizing and acquisition timeouts.
const (
	// SharedHotPoolSize is the connection count for the pooled hot tier.
	SharedHotPoolSize = 30

	// SharedWarmPoolSize is the connection count for the pooled warm tier.
	SharedWarmPoolSize = 20

	// MaxDedicatedConnections caps the total connections across all
	// dedicated tenant pools.
	MaxDedicatedConnections = 100

	// DefaultDedicatedPoolSize is the per-tenant pool size when the
	// tenant's configuration does not specify one.
	DefaultDedicatedPoolSize = 10

	// SharedAcquireTimeout is the pool acquisition deadline on shared
	// infrastructure.
	SharedAcquireTimeout = 1000 * time.Millisecond

	// DedicatedAcquireTimeout is the pool acquisition deadline for
	// dedicated tenant pools.
	DedicatedAcquireTimeout = 2000 * time.Millisecond

	// DatabasePingTimeout is the timeout for database connectivity checks.
	DatabasePingTimeout = 5 * time.Second

	// RedisConnectionTimeout is the timeout for Redis connectivity checks.
	RedisConnectionTimeout = 5 * time.Second
)

// Tenant resolution and caching.
const (
	// TenantContextTTL is the lifetime of a cached tenant context,
	// measured from insertion. An expired entry is reloaded from the
	// directory on the next resolve.
	TenantContextTTL = 300 * time.Second

	// DirectoryRequestTimeout bounds calls to the tenant directory.
	DirectoryRequestTimeout = 10 * time.Second

	// DirectoryRequestsPerMinute rate-limits directory lookups so a
	// cache stampede cannot saturate the directory service.
	DirectoryRequestsPerMinute = 120
)

// Dedicated-resource promotion eligibility. A tenant qualifies when any
// single condition holds.
const (
	PromotionDailyVolumeGB = 100.0
	PromotionQueriesPerSec = 50.0
	PromotionSLAViolations = 5
)

// Equipment liveness sweep.
const (
	// OfflineSweepInterval is how often the sweep checks for silent
	// equipment.
	OfflineSweepInterval = time.Minute

	// OfflineAfter is how long equipment may go without a reading before
	// the sweep marks it offline and raises the anomaly.
	OfflineAfter = 5 * time.Minute
)

// Queue and worker sizing for the asynchronous stages.
const (
	// PublishQueueCapacity bounds the stream publisher's intake queue.
	PublishQueueCapacity = 8192

	// TaskQueueCapacity bounds the background task pool's intake.
	TaskQueueCapacity = 1024

	// TaskWorkerCount is the number of background task workers.
	TaskWorkerCount = 16

	// TaskDrainTimeout is how long shutdown waits for queued background
	// work before abandoning it.
	TaskDrainTimeout = 10 * time.Second
)

// Hot tier layout.
const (
	// HotChunkInterval is the time-partitioning width for raw readings.
	HotChunkInterval = time.Hour

	// HotRetentionDays is how long raw readings stay queryable before
	// the retention job drops their chunks.
	HotRetentionDays = 30
)

// Query surface limits.
const (
	// MaxMetricsRows caps a single range query over raw readings.
	MaxMetricsRows = 1000

	// DefaultMetricsWindow is the lookback applied when a range query
	// omits its start bound.
	DefaultMetricsWindow = 30 * 24 * time.Hour

	// CacheTTLEquipmentList is the response-cache TTL for equipment
	// listings.
	CacheTTLEquipmentList = 30 * time.Second

	// CacheTTLEquipmentStatus is the response-cache TTL for single
	// equipment lookups.
	CacheTTLEquipmentStatus = 10 * time.Second
)

// HTTP client timeouts for outbound calls.
const (
	// WebhookTimeout bounds tenant webhook notification deliveries.
	WebhookTimeout = 5 * time.Second
)
