// Package service implements the ingest pipeline behind the HTTP surface.
//
// # Request Path
//
// IngestReading runs the synchronous half of the pipeline: validation,
// enrichment, anomaly detection, and alert dispatch, all inside the
// end-to-end latency target. The asynchronous half, storage fan-out and
// stream publishing, is handed to the background task pool so the caller's
// response never waits on storage.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/detector"
	"github.com/plantops/sensor-pipeline/internal/dispatch"
	"github.com/plantops/sensor-pipeline/internal/fanout"
	"github.com/plantops/sensor-pipeline/internal/metrics"
	"github.com/plantops/sensor-pipeline/internal/store"
	"github.com/plantops/sensor-pipeline/internal/stream"
	"github.com/plantops/sensor-pipeline/internal/tasks"
	"github.com/plantops/sensor-pipeline/internal/tenant"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// ValidationError reports why a reading was rejected at the boundary.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid reading: " + strings.Join(e.Problems, "; ")
}

// Publisher is the stream surface the service needs: the non-blocking
// queue for fire-and-forget records plus the depth figures for the status
// endpoint.
type Publisher interface {
	Enqueue(rec *kgo.Record) bool
	PublishSync(ctx context.Context, rec *kgo.Record) error
	QueueDepth() int
	Dropped() int64
}

// ArchiveLister is the cold-tier query surface.
type ArchiveLister interface {
	ListKeys(ctx context.Context, target dataplane.ObjectTarget, equipmentID string, start, end time.Time) ([]string, error)
}

// ResponseCache is the slice of the cache the service uses: the query
// response cache plus the SLA violation counter.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	RecordSLAViolation(ctx context.Context, tenantID string) error
}

// Deps wires the service's collaborators. Cache and Metrics may be nil.
type Deps struct {
	Resolver   *tenant.Resolver
	Selector   dataplane.Selector
	Detector   *detector.Detector
	Dispatcher *dispatch.Dispatcher
	Fanout     *fanout.Fanout
	Publisher  Publisher
	Tasks      *tasks.Pool
	Cache      ResponseCache
	Hot        *store.HotStore
	Warm       *store.WarmStore
	Archive    ArchiveLister
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Service coordinates the pipeline stages for one process.
type Service struct {
	resolver   *tenant.Resolver
	selector   dataplane.Selector
	detector   *detector.Detector
	dispatcher *dispatch.Dispatcher
	fanout     *fanout.Fanout
	publisher  Publisher
	tasks      *tasks.Pool
	cache      ResponseCache
	hot        *store.HotStore
	warm       *store.WarmStore
	archive    ArchiveLister
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates the service from its dependencies.
func New(deps Deps) *Service {
	return &Service{
		resolver:   deps.Resolver,
		selector:   deps.Selector,
		detector:   deps.Detector,
		dispatcher: deps.Dispatcher,
		fanout:     deps.Fanout,
		publisher:  deps.Publisher,
		tasks:      deps.Tasks,
		cache:      deps.Cache,
		hot:        deps.Hot,
		warm:       deps.Warm,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "service"),
	}
}

// Resolver exposes tenant resolution for the HTTP middleware.
func (s *Service) Resolver() *tenant.Resolver { return s.resolver }

// IngestReading runs one reading through the synchronous pipeline and hands
// storage to the background. Returns *ValidationError for contract
// violations; any other error is an infrastructure failure.
func (s *Service) IngestReading(ctx context.Context, requestID string, tn *types.TenantContext, r *types.SensorReading) (*types.IngestResult, error) {
	start := time.Now()

	if problems := r.Validate(); len(problems) > 0 {
		s.observeIngest(tn.TenantID, "rejected", start)
		return nil, &ValidationError{Problems: problems}
	}

	// Enrichment. The caller never sets these fields; the pipeline owns
	// them from here on.
	r.TenantID = tn.TenantID
	r.IngestionTimestamp = start.UTC()
	if r.Source == "" {
		r.Source = "http_ingest"
	}

	plane, err := s.selector.Select(ctx, tn)
	if err != nil {
		s.observeIngest(tn.TenantID, "error", start)
		return nil, fmt.Errorf("selecting data plane: %w", err)
	}

	anomalies := s.detector.Detect(r)
	r.Anomalies = anomalies
	r.HasAnomalies = len(anomalies) > 0

	alerts := s.dispatchAlerts(ctx, anomalies, r, tn, plane, start)

	s.submitBackground(requestID, r, plane)

	latency := time.Since(start)
	latencyMs := float64(latency.Microseconds()) / 1000.0
	slaCompliant := latency < config.IngestSLA
	if !slaCompliant {
		s.logger.Warn("ingest exceeded latency target",
			"request_id", requestID,
			"tenant_id", tn.TenantID,
			"equipment_id", r.EquipmentID,
			"latency_ms", latencyMs)
		s.recordSLAViolation(tn.TenantID)
	}
	if s.metrics != nil {
		s.metrics.ObserveIngest(tn.TenantID, "accepted", latency.Seconds(), slaCompliant)
	}

	return &types.IngestResult{
		Message:             "Data processed successfully",
		EquipmentID:         r.EquipmentID,
		Timestamp:           r.Timestamp,
		AnomaliesDetected:   len(anomalies),
		AlertsCreated:       alerts,
		ProcessingLatencyMs: latencyMs,
		SLACompliant:        slaCompliant,
	}, nil
}

// dispatchAlerts routes every alertable anomaly concurrently and waits for
// all dispatches before the response is built. Returns the alert count.
func (s *Service) dispatchAlerts(ctx context.Context, anomalies []types.Anomaly, r *types.SensorReading, tn *types.TenantContext, plane *dataplane.DataPlane, start time.Time) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	alerts := 0

	for i := range anomalies {
		if !anomalies[i].Severity.Alertable() {
			continue
		}
		wg.Add(1)
		go func(a types.Anomaly) {
			defer wg.Done()
			out := s.dispatcher.Dispatch(ctx, dispatch.Input{
				Anomaly:      a,
				Reading:      r,
				Tenant:       tn,
				Plane:        plane,
				RequestStart: start,
			})
			mu.Lock()
			alerts++
			mu.Unlock()
			if !out.Channels["priority_stream"] && s.metrics != nil {
				s.metrics.ObservePublishDrop()
			}
		}(anomalies[i])
	}
	wg.Wait()
	return alerts
}

// submitBackground queues the storage fan-out and enqueues the stream
// records. Rejection and queue overflow are logged, never surfaced: the
// reading has already been accepted.
func (s *Service) submitBackground(requestID string, r *types.SensorReading, plane *dataplane.DataPlane) {
	accepted := s.tasks.Submit(tasks.Task{
		Name:      "storage_fanout",
		RequestID: requestID,
		Run: func(taskCtx context.Context) {
			s.fanout.Store(taskCtx, r, plane)
			s.invalidateEquipment(taskCtx, r)
		},
	})
	if !accepted {
		s.logger.Error("fan-out rejected by task pool, storing on an unpooled goroutine",
			"request_id", requestID, "equipment_id", r.EquipmentID)
		// Last resort: spawn outside the pool rather than lose the reading.
		go s.fanout.Store(context.Background(), r, plane)
	}

	for _, topic := range []string{plane.Topics.SensorData, plane.Topics.Shared} {
		if topic == "" {
			continue
		}
		rec, err := stream.ReadingRecord(topic, r)
		if err != nil {
			s.logger.Error("encoding reading record", "request_id", requestID, "error", err)
			continue
		}
		if !s.publisher.Enqueue(rec) {
			s.logger.Warn("publish queue full, reading record dropped",
				"request_id", requestID, "topic", topic)
			if s.metrics != nil {
				s.metrics.ObservePublishDrop()
			}
		}
	}
}

// invalidateEquipment drops the response-cache entries the fan-out just
// made stale, so a read after write does not serve the previous snapshot
// for a full TTL.
func (s *Service) invalidateEquipment(ctx context.Context, r *types.SensorReading) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{
		"equipment:" + r.TenantID,
		"equipment:" + r.TenantID + ":" + r.EquipmentID,
	} {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Debug("response cache invalidation failed", "key", key, "error", err)
		}
	}
}

func (s *Service) recordSLAViolation(tenantID string) {
	if s.cache == nil {
		return
	}
	s.tasks.Submit(tasks.Task{
		Name: "sla_violation",
		Run: func(taskCtx context.Context) {
			if err := s.cache.RecordSLAViolation(taskCtx, tenantID); err != nil {
				s.logger.Debug("sla counter unavailable", "tenant_id", tenantID, "error", err)
			}
		},
	})
}

func (s *Service) observeIngest(tenantID, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveIngest(tenantID, outcome, time.Since(start).Seconds(), true)
	}
}

// RuntimeStats supplies the per-component figures for the status endpoint.
func (s *Service) RuntimeStats() metrics.ProcessStatus {
	status := metrics.ProcessStatus{
		PublishQueueDepth: s.publisher.QueueDepth(),
		PublishDropped:    s.publisher.Dropped(),
		TaskQueueDepth:    s.tasks.QueueDepth(),
		TasksInFlight:     s.tasks.InFlight(),
	}
	if s.resolver != nil {
		status.CachedTenants = s.resolver.CachedCount()
	}
	if counter, ok := s.selector.(interface{ DedicatedPoolCount() int }); ok {
		status.DedicatedPools = counter.DedicatedPoolCount()
	}
	return status
}
