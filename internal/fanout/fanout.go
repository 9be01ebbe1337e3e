// Package fanout writes accepted readings to the three storage tiers.
//
// # Tier Layout
//
// Every reading lands in three places concurrently: the hot tier
// (time-series rows for recent queries), the warm tier (one current-state
// row per equipment), and the cold tier (immutable JSON documents in object
// storage). The fan-out runs off the request path, so a tier failure never
// fails an ingest; instead the reading is preserved as an error document in
// the cold tier's error area for later replay.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/store"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Archiver is the cold-tier surface the fan-out writes through.
type Archiver interface {
	ArchiveReading(ctx context.Context, target dataplane.ObjectTarget, r *types.SensorReading) (string, error)
	ArchiveFailed(ctx context.Context, target dataplane.ObjectTarget, r *types.SensorReading) (string, error)
}

// Observer receives fan-out latency and per-tier failure records.
type Observer interface {
	ObserveFanout(latencySeconds float64, failedTiers []string)
}

// Outcome reports where one reading landed.
type Outcome struct {
	Hot  bool
	Warm bool
	Cold bool

	// ErrorKey is the cold-tier key of the preserved error document, set
	// only when at least one tier failed and the preservation write
	// succeeded.
	ErrorKey  string
	LatencyMs float64
}

// Complete reports whether every tier accepted the reading.
func (o Outcome) Complete() bool { return o.Hot && o.Warm && o.Cold }

// FailedTiers names the tiers that rejected the reading.
func (o Outcome) FailedTiers() []string {
	var failed []string
	if !o.Hot {
		failed = append(failed, "hot")
	}
	if !o.Warm {
		failed = append(failed, "warm")
	}
	if !o.Cold {
		failed = append(failed, "cold")
	}
	return failed
}

// Fanout distributes readings across the tiers of a tenant's data plane.
type Fanout struct {
	hot      *store.HotStore
	warm     *store.WarmStore
	archiver Archiver
	observer Observer
	logger   *slog.Logger
}

// New creates a fan-out. observer may be nil.
func New(hot *store.HotStore, warm *store.WarmStore, archiver Archiver, observer Observer, logger *slog.Logger) *Fanout {
	return &Fanout{
		hot:      hot,
		warm:     warm,
		archiver: archiver,
		observer: observer,
		logger:   logger.With("component", "fanout"),
	}
}

// Store writes one reading to all three tiers of the plane concurrently.
// Never returns an error: failures are logged, counted, and preserved as an
// error document so no accepted reading is silently lost.
func (f *Fanout) Store(ctx context.Context, r *types.SensorReading, plane *dataplane.DataPlane) Outcome {
	start := time.Now()

	var wg sync.WaitGroup
	var hotErr, warmErr, coldErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		hotErr = f.writeHot(ctx, r, plane)
	}()
	go func() {
		defer wg.Done()
		warmErr = f.writeWarm(ctx, r, plane)
	}()
	go func() {
		defer wg.Done()
		_, coldErr = f.archiver.ArchiveReading(ctx, plane.Object, r)
	}()
	wg.Wait()

	out := Outcome{
		Hot:       hotErr == nil,
		Warm:      warmErr == nil,
		Cold:      coldErr == nil,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	if !out.Complete() {
		f.logger.Error("storage fan-out incomplete",
			"equipment_id", r.EquipmentID,
			"tenant_id", plane.TenantID,
			"failed_tiers", out.FailedTiers(),
			"hot_error", hotErr,
			"warm_error", warmErr,
			"cold_error", coldErr)
		out.ErrorKey = f.preserve(ctx, r, plane)
	}

	if f.observer != nil {
		f.observer.ObserveFanout(time.Since(start).Seconds(), out.FailedTiers())
	}
	return out
}

func (f *Fanout) writeHot(ctx context.Context, r *types.SensorReading, plane *dataplane.DataPlane) error {
	conn, err := plane.Hot.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return f.hot.UpsertReading(ctx, conn, r)
}

func (f *Fanout) writeWarm(ctx context.Context, r *types.SensorReading, plane *dataplane.DataPlane) error {
	conn, err := plane.Warm.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return f.warm.UpsertStatus(ctx, conn, r)
}

// preserve writes the reading into the cold tier's error area so a failed
// fan-out can be replayed. Returns the error-document key, or "" when even
// the preservation write failed.
func (f *Fanout) preserve(ctx context.Context, r *types.SensorReading, plane *dataplane.DataPlane) string {
	key, err := f.archiver.ArchiveFailed(ctx, plane.Object, r)
	if err != nil {
		f.logger.Error("preserving failed reading",
			"equipment_id", r.EquipmentID,
			"tenant_id", plane.TenantID,
			"error", err)
		return ""
	}
	f.logger.Warn("reading preserved in error area",
		"equipment_id", r.EquipmentID, "key", key)
	return key
}
