package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStatus is the operational snapshot served by the status endpoint.
type ProcessStatus struct {
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Goroutines    int       `json:"goroutines"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryRSSMB   float64   `json:"memory_rss_mb"`

	CachedTenants      int   `json:"cached_tenants"`
	DedicatedPools     int   `json:"dedicated_pools"`
	PublishQueueDepth  int   `json:"publish_queue_depth"`
	PublishDropped     int64 `json:"publish_dropped"`
	TaskQueueDepth     int   `json:"task_queue_depth"`
	TasksInFlight      int   `json:"tasks_in_flight"`
}

// RuntimeStats supplies the per-component figures the collector folds into
// the snapshot.
type RuntimeStats interface {
	RuntimeStats() ProcessStatus
}

// StatusCollector gathers process health with a short cache so the status
// endpoint cannot turn gopsutil sampling into load.
type StatusCollector struct {
	stats     RuntimeStats
	startTime time.Time

	mu          sync.RWMutex
	cached      *ProcessStatus
	cacheExpiry time.Time
}

// NewStatusCollector creates a collector. stats may be nil, which leaves
// the per-component figures zero.
func NewStatusCollector(stats RuntimeStats) *StatusCollector {
	return &StatusCollector{
		stats:     stats,
		startTime: time.Now(),
	}
}

const statusCacheTTL = 30 * time.Second

// Status returns the current snapshot, recollected at most every 30
// seconds.
func (c *StatusCollector) Status() ProcessStatus {
	c.mu.RLock()
	if c.cached != nil && time.Now().Before(c.cacheExpiry) {
		status := *c.cached
		c.mu.RUnlock()
		return status
	}
	c.mu.RUnlock()

	status := c.collect()

	c.mu.Lock()
	c.cached = &status
	c.cacheExpiry = time.Now().Add(statusCacheTTL)
	c.mu.Unlock()

	return status
}

func (c *StatusCollector) collect() ProcessStatus {
	status := ProcessStatus{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			status.MemoryRSSMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	if c.stats != nil {
		runtimeStats := c.stats.RuntimeStats()
		status.CachedTenants = runtimeStats.CachedTenants
		status.DedicatedPools = runtimeStats.DedicatedPools
		status.PublishQueueDepth = runtimeStats.PublishQueueDepth
		status.PublishDropped = runtimeStats.PublishDropped
		status.TaskQueueDepth = runtimeStats.TaskQueueDepth
		status.TasksInFlight = runtimeStats.TasksInFlight
	}

	return status
}
