// Package metrics provides the Prometheus observability sink and process
// status collection for the pipeline.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Metrics holds every instrument the pipeline emits. One instance per
// process, registered on its own registry so tests can construct throwaway
// copies.
type Metrics struct {
	registry *prometheus.Registry

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	slaViolations  *prometheus.CounterVec

	anomalies     *prometheus.CounterVec
	severityScore *prometheus.GaugeVec
	metricValue   *prometheus.GaugeVec
	alertsCreated *prometheus.CounterVec

	fanoutFailures *prometheus.CounterVec
	fanoutLatency  prometheus.Histogram

	publishDropped prometheus.Counter
	queueDepth     *prometheus.GaugeVec
}

// New creates and registers every instrument.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: reg,

		ingestRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_ingest_requests_total",
			Help: "Readings received per tenant, by outcome.",
		}, []string{"tenant_id", "outcome"}),

		ingestLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_ingest_latency_seconds",
			Help:    "Critical-path latency from receipt to response.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"tenant_id"}),

		slaViolations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_sla_violations_total",
			Help: "Requests that exceeded the ingest latency target.",
		}, []string{"tenant_id"}),

		anomalies: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_anomalies_total",
			Help: "Anomalies detected, by kind and severity.",
		}, []string{"tenant_id", "equipment_id", "kind", "severity"}),

		severityScore: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_anomaly_severity_score",
			Help: "Numeric severity of the most recent anomaly per equipment.",
		}, []string{"tenant_id", "equipment_id"}),

		metricValue: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_anomaly_metric_value",
			Help: "Observed metric value of the most recent anomaly, labeled with the breached threshold.",
		}, []string{"tenant_id", "equipment_id", "threshold"}),

		alertsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_alerts_created_total",
			Help: "Alerts dispatched, by severity.",
		}, []string{"tenant_id", "severity"}),

		fanoutFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_fanout_tier_failures_total",
			Help: "Storage fan-out failures per tier.",
		}, []string{"tier"}),

		fanoutLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_fanout_latency_seconds",
			Help:    "Background fan-out duration across all tiers.",
			Buckets: prometheus.DefBuckets,
		}),

		publishDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pipeline_publish_dropped_total",
			Help: "Records rejected by the bounded publish queue.",
		}),

		queueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current depth of the named internal queue.",
		}, []string{"queue"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngest records one completed ingest request.
func (m *Metrics) ObserveIngest(tenantID, outcome string, latencySeconds float64, slaCompliant bool) {
	m.ingestRequests.WithLabelValues(tenantID, outcome).Inc()
	m.ingestLatency.WithLabelValues(tenantID).Observe(latencySeconds)
	if !slaCompliant {
		m.slaViolations.WithLabelValues(tenantID).Inc()
	}
}

// ObserveAnomaly records one detected anomaly: the dimensioned counter, the
// per-equipment severity gauge, and the per-metric value gauge.
func (m *Metrics) ObserveAnomaly(a *types.Anomaly) {
	m.anomalies.WithLabelValues(a.TenantID, a.EquipmentID, string(a.Kind), string(a.Severity)).Inc()
	m.severityScore.WithLabelValues(a.TenantID, a.EquipmentID).Set(float64(a.Severity.Level()))
	m.metricValue.WithLabelValues(a.TenantID, a.EquipmentID, formatThreshold(a.Threshold)).Set(a.Value)
}

// ObserveAlert records one dispatched alert.
func (m *Metrics) ObserveAlert(tenantID string, severity types.Severity) {
	m.alertsCreated.WithLabelValues(tenantID, string(severity)).Inc()
}

// ObserveFanout records one completed fan-out, counting each failed tier.
func (m *Metrics) ObserveFanout(latencySeconds float64, failedTiers []string) {
	m.fanoutLatency.Observe(latencySeconds)
	for _, tier := range failedTiers {
		m.fanoutFailures.WithLabelValues(tier).Inc()
	}
}

// ObservePublishDrop counts one record rejected by the publish queue.
func (m *Metrics) ObservePublishDrop() {
	m.publishDropped.Inc()
}

// SetQueueDepth reports the current depth of a named queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
