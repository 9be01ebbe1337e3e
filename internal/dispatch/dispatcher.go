// Package dispatch routes alertable anomalies to the priority stream, the
// observability sink, and the tenant's notification channels.
//
// # Budget Design
//
// Dispatch sits on the request path, so it spends at most the configured
// budget. The priority-stream publish is the authoritative delivery: for
// critical severity it is a non-blocking enqueue into the publisher's
// bounded queue, for high severity a short synchronous publish. Metrics and
// notifications run concurrently afterward and are abandoned, not awaited,
// when the budget expires. Channel failures are recorded in the outcome and
// never surface to the caller.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/stream"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Publisher is the slice of the stream publisher the dispatcher uses.
type Publisher interface {
	Enqueue(rec *kgo.Record) bool
	PublishSync(ctx context.Context, rec *kgo.Record) error
}

// Observer receives the per-anomaly observability records.
type Observer interface {
	ObserveAnomaly(a *types.Anomaly)
	ObserveAlert(tenantID string, severity types.Severity)
}

// Input is everything one dispatch needs.
type Input struct {
	Anomaly      types.Anomaly
	Reading      *types.SensorReading
	Tenant       *types.TenantContext
	Plane        *dataplane.DataPlane
	RequestStart time.Time
}

// Outcome records which channels accepted the alert. The stream channel is
// the one that matters for durability; the rest are best-effort.
type Outcome struct {
	Alert     *types.Alert
	Channels  map[string]bool
	LatencyMs float64
}

// Dispatcher builds and routes alerts.
type Dispatcher struct {
	publisher    Publisher
	observer     Observer
	dashboardURL string
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a dispatcher. observer may be nil, which skips metrics
// emission. dashboardURL may contain {equipment_id}, replaced per alert.
func New(publisher Publisher, observer Observer, dashboardURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher:    publisher,
		observer:     observer,
		dashboardURL: dashboardURL,
		logger:       logger.With("component", "dispatcher"),
		now:          time.Now,
	}
}

// Dispatch routes one alertable anomaly. Never returns an error: failures
// land in the outcome's channel map and the logs.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) Outcome {
	start := d.now()
	alert := d.buildAlert(in)

	channels := make(map[string]bool)

	// Priority stream first: it is the durable sink, and for critical
	// severity it must not wait on the broker.
	channels["priority_stream"] = d.publishPriority(ctx, alert, in.Plane.Topics.PriorityAlerts)

	// Metrics and notifications share the remaining budget. Whatever has
	// not finished when it expires is abandoned.
	budgetCtx, cancel := context.WithTimeout(ctx, config.DispatchBudget)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if d.observer != nil {
			d.observer.ObserveAnomaly(&in.Anomaly)
			d.observer.ObserveAlert(alert.TenantID, alert.Severity)
		}
		mu.Lock()
		channels["metrics"] = true
		mu.Unlock()
	}()

	notification := d.buildNotification(alert, in)
	for _, sink := range d.sinksFor(in.Plane) {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()
			err := sink.Publish(budgetCtx, notification)
			if err != nil {
				d.logger.Warn("notification delivery failed",
					"sink", sink.Name(),
					"alert_id", alert.AlertID,
					"error", err)
			}
			mu.Lock()
			channels[sink.Name()] = err == nil
			mu.Unlock()
		}(sink)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-budgetCtx.Done():
		d.logger.Warn("dispatch budget expired, abandoning slow channels",
			"alert_id", alert.AlertID,
			"budget", config.DispatchBudget)
	}

	// Snapshot under the lock: abandoned goroutines may still be writing
	// to the shared map after we return.
	outcome := Outcome{Alert: alert, Channels: make(map[string]bool, len(channels))}
	mu.Lock()
	for name, ok := range channels {
		outcome.Channels[name] = ok
	}
	mu.Unlock()
	outcome.LatencyMs = float64(d.now().Sub(start).Microseconds()) / 1000.0
	return outcome
}

func (d *Dispatcher) buildAlert(in Input) *types.Alert {
	return &types.Alert{
		AlertID:             uuid.New().String(),
		TenantID:            in.Tenant.TenantID,
		EquipmentID:         in.Anomaly.EquipmentID,
		Kind:                in.Anomaly.Kind,
		Severity:            in.Anomaly.Severity,
		Message:             in.Anomaly.Message,
		Value:               in.Anomaly.Value,
		Threshold:           in.Anomaly.Threshold,
		Timestamp:           in.Anomaly.Timestamp,
		ProcessingLatencyMs: float64(d.now().Sub(in.RequestStart).Microseconds()) / 1000.0,
	}
}

// publishPriority sends the alert to the priority topic. Critical alerts
// are fire-and-forget through the bounded queue; high alerts wait briefly
// for the leader's ack.
func (d *Dispatcher) publishPriority(ctx context.Context, alert *types.Alert, topic string) bool {
	rec, err := stream.AlertRecord(topic, alert)
	if err != nil {
		d.logger.Error("building alert record", "alert_id", alert.AlertID, "error", err)
		return false
	}

	if alert.Severity == types.SeverityCritical {
		ok := d.publisher.Enqueue(rec)
		if !ok {
			d.logger.Error("priority queue full, critical alert dropped",
				"alert_id", alert.AlertID, "equipment_id", alert.EquipmentID)
		}
		return ok
	}

	pubCtx, cancel := context.WithTimeout(ctx, config.PublishGrace)
	defer cancel()
	if err := d.publisher.PublishSync(pubCtx, rec); err != nil {
		d.logger.Warn("priority publish failed",
			"alert_id", alert.AlertID, "severity", alert.Severity, "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) buildNotification(alert *types.Alert, in Input) *types.Notification {
	n := &types.Notification{
		AlertID:            alert.AlertID,
		TenantID:           alert.TenantID,
		EquipmentID:        alert.EquipmentID,
		Severity:           alert.Severity,
		Timestamp:          alert.Timestamp,
		Message:            alert.Message,
		RecommendedActions: actionsFor(alert.Kind),
		SensorDetails: &types.SensorDetails{
			Kind:      alert.Kind,
			Value:     alert.Value,
			Threshold: alert.Threshold,
		},
	}
	if d.dashboardURL != "" {
		n.DashboardURL = strings.ReplaceAll(d.dashboardURL, "{equipment_id}", alert.EquipmentID)
	}
	return n
}

func (d *Dispatcher) sinksFor(plane *dataplane.DataPlane) []Sink {
	var sinks []Sink
	for _, topic := range plane.Sinks.NotificationTopics {
		sinks = append(sinks, NewTopicSink(topic, d.publisher))
	}
	for _, url := range plane.Sinks.WebhookURLs {
		sinks = append(sinks, NewWebhookSink(url))
	}
	return sinks
}
