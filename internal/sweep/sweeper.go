// Package sweep raises the equipment_offline anomaly.
//
// # Liveness Design
//
// The ingest path only ever sees equipment that is talking; silence is
// invisible to it. The sweeper covers the other half: on an interval it
// walks every tenant the directory can enumerate, marks equipment silent
// past the threshold offline in the warm tier, and routes one offline
// anomaly per machine through the normal alert dispatch path. Each tenant
// is swept on its own tagged connection, so row-level security scopes the
// update exactly as it scopes the ingest writes.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/dispatch"
	"github.com/plantops/sensor-pipeline/internal/store"
	"github.com/plantops/sensor-pipeline/internal/tenant"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Directory is the tenant surface the sweeper needs: enumeration plus
// per-tenant lookup.
type Directory interface {
	tenant.Directory
	tenant.Lister
}

// Marker transitions silent equipment in the warm tier.
type Marker interface {
	MarkOffline(ctx context.Context, q store.Querier, silentFor time.Duration) ([]types.EquipmentStatus, error)
}

// Dispatcher routes the offline anomalies.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Input) dispatch.Outcome
}

// Invalidator drops response-cache entries the sweep made stale.
type Invalidator interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// Config wires the sweeper. Cache may be nil.
type Config struct {
	Directory  Directory
	Selector   dataplane.Selector
	Warm       Marker
	Dispatcher Dispatcher
	Cache      Invalidator

	// Interval and SilentFor default to the platform constants when zero.
	Interval  time.Duration
	SilentFor time.Duration

	Logger *slog.Logger
}

// Sweeper periodically marks silent equipment offline.
type Sweeper struct {
	directory  Directory
	selector   dataplane.Selector
	warm       Marker
	dispatcher Dispatcher
	cache      Invalidator
	interval   time.Duration
	silentFor  time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates the sweeper.
func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = config.OfflineSweepInterval
	}
	if cfg.SilentFor <= 0 {
		cfg.SilentFor = config.OfflineAfter
	}
	return &Sweeper{
		directory:  cfg.Directory,
		selector:   cfg.Selector,
		warm:       cfg.Warm,
		dispatcher: cfg.Dispatcher,
		cache:      cfg.Cache,
		interval:   cfg.Interval,
		silentFor:  cfg.SilentFor,
		logger:     cfg.Logger.With("component", "offline_sweep"),
		now:        time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("offline sweep started",
		"interval", s.interval, "silence_threshold", s.silentFor)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce sweeps every enumerable tenant. Per-tenant failures are logged
// and do not stop the pass.
func (s *Sweeper) runOnce(ctx context.Context) {
	ids, err := s.directory.TenantIDs(ctx)
	if err != nil {
		s.logger.Warn("tenant enumeration failed, skipping sweep", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.sweepTenant(ctx, id); err != nil {
			s.logger.Warn("tenant sweep failed", "tenant_id", id, "error", err)
		}
	}
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID string) error {
	tn, err := s.directory.Lookup(ctx, tenantID)
	if err != nil {
		return err
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		return fmt.Errorf("selecting data plane: %w", err)
	}

	conn, err := plane.Warm.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring warm connection: %w", err)
	}
	defer conn.Release()

	marked, err := s.warm.MarkOffline(ctx, conn, s.silentFor)
	if err != nil {
		return err
	}
	if len(marked) == 0 {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.DeletePattern(ctx, "equipment:"+tn.TenantID+"*"); err != nil {
			s.logger.Debug("response cache invalidation failed",
				"tenant_id", tn.TenantID, "error", err)
		}
	}

	start := s.now()
	for i := range marked {
		st := &marked[i]
		s.dispatcher.Dispatch(ctx, dispatch.Input{
			Anomaly: types.Anomaly{
				Kind:        types.KindEquipmentOffline,
				EquipmentID: st.EquipmentID,
				Timestamp:   start.UTC(),
				Value:       start.Sub(st.LastSeen).Seconds(),
				Threshold:   s.silentFor.Seconds(),
				Severity:    types.SeverityHigh,
				Message: fmt.Sprintf("no data received from %s since %s",
					st.EquipmentID, st.LastSeen.UTC().Format(time.RFC3339)),
				TenantID: tn.TenantID,
			},
			Tenant:       tn,
			Plane:        plane,
			RequestStart: start,
		})
	}

	s.logger.Info("equipment marked offline",
		"tenant_id", tn.TenantID, "count", len(marked))
	return nil
}
