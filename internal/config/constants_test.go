package config

import (
	"testing"
	"time"
)

func TestLatencyBudgets(t *testing.T) {
	// The stage budgets must leave headroom inside the end-to-end SLA:
	// detection and dispatch both run on the request path.
	if DetectionBudget+DispatchBudget >= IngestSLA {
		t.Errorf("stage budgets (%v + %v) leave no headroom inside the SLA (%v)",
			DetectionBudget, DispatchBudget, IngestSLA)
	}
	if PublishGrace > DispatchBudget {
		t.Errorf("publish grace (%v) should not exceed the dispatch budget (%v)",
			PublishGrace, DispatchBudget)
	}
}

func TestPoolSizing(t *testing.T) {
	if SharedHotPoolSize <= 0 || SharedWarmPoolSize <= 0 {
		t.Error("shared pool sizes must be positive")
	}
	if DefaultDedicatedPoolSize > MaxDedicatedConnections {
		t.Errorf("a single dedicated pool (%d) cannot exceed the global dedicated cap (%d)",
			DefaultDedicatedPoolSize, MaxDedicatedConnections)
	}
	if SharedAcquireTimeout >= DedicatedAcquireTimeout {
		t.Error("dedicated pools are allowed a longer acquisition deadline than shared ones")
	}
}

func TestCacheTTLs(t *testing.T) {
	ttls := []struct {
		name string
		ttl  time.Duration
	}{
		{"TenantContext", TenantContextTTL},
		{"EquipmentList", CacheTTLEquipmentList},
		{"EquipmentStatus", CacheTTLEquipmentStatus},
	}

	for _, tt := range ttls {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ttl <= 0 {
				t.Errorf("cache TTL for %s should be positive, got %v", tt.name, tt.ttl)
			}
		})
	}
}

func TestQueueCapacities(t *testing.T) {
	for _, tt := range []struct {
		name string
		cap  int
	}{
		{"PublishQueue", PublishQueueCapacity},
		{"TaskQueue", TaskQueueCapacity},
	} {
		if tt.cap <= 0 {
			t.Errorf("%s capacity must be positive, got %d", tt.name, tt.cap)
		}
	}
	if TaskWorkerCount <= 0 {
		t.Error("task worker count must be positive")
	}
}

func TestOfflineSweepWindows(t *testing.T) {
	if OfflineSweepInterval <= 0 || OfflineAfter <= 0 {
		t.Error("sweep windows must be positive")
	}
	// Sweeping slower than the silence threshold would let equipment sit
	// silent for a full extra interval before anyone hears about it.
	if OfflineAfter < OfflineSweepInterval {
		t.Errorf("silence threshold (%v) shorter than the sweep interval (%v)",
			OfflineAfter, OfflineSweepInterval)
	}
}
