// Package types - Anomaly classification and alert structures
//
// # Detection Design
//
// Every accepted reading is checked synchronously against per-metric
// threshold bands before the request completes:
// - Temperature: normal 0-150, high above 150, critical above 180
// - Vibration: normal 0-2.0, high above 2.0, critical above 5.0
// - Pressure: normal 50-500, abnormal outside that band, critical above 800
//
// Each band violation produces one Anomaly. Anomalies of severity high or
// critical additionally produce an Alert, which the dispatcher routes to
// the priority stream, tenant webhooks, and notification topics.
//
// # Example Threshold Configuration
//
//	thresholds:
//	  temperature:
//	    min: 0
//	    max: 150
//	    critical: 180
//	  vibration:
//	    min: 0
//	    max: 2.0
//	    critical: 5.0
//	  pressure:
//	    min: 50
//	    max: 500
//	    critical: 800
package types

import "time"

// =============================================================================
// SEVERITY
// =============================================================================

// Severity indicates how urgently an anomaly needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"      // Informational, no alert
	SeverityMedium   Severity = "medium"   // Out of band but not alertable
	SeverityHigh     Severity = "high"     // Alertable, published on the request path
	SeverityCritical Severity = "critical" // Alertable, queued ahead of everything else
)

// Level returns a numeric rank for comparison (higher = more severe).
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alertable reports whether anomalies of this severity produce alerts.
func (s Severity) Alertable() bool {
	return s.Level() >= SeverityHigh.Level()
}

// =============================================================================
// ANOMALIES
// =============================================================================

// AnomalyKind is the closed set of conditions the detector can report.
type AnomalyKind string

const (
	KindCriticalTemperature AnomalyKind = "critical_temperature" // Above the critical temperature bound
	KindHighTemperature     AnomalyKind = "high_temperature"     // Outside the normal temperature band
	KindHighVibration       AnomalyKind = "high_vibration"       // Above the normal vibration bound
	KindCriticalVibration   AnomalyKind = "critical_vibration"   // Above the critical vibration bound
	KindAbnormalPressure    AnomalyKind = "abnormal_pressure"    // Outside the normal pressure band
	KindCriticalPressure    AnomalyKind = "critical_pressure"    // Above the critical pressure bound
	KindPowerSpike          AnomalyKind = "power_spike"          // Power draw outside expected envelope
	KindEquipmentOffline    AnomalyKind = "equipment_offline"    // No readings within the liveness window
)

// Anomaly is one threshold violation found in a reading. A single reading
// can carry several anomalies, one per violated metric.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	EquipmentID string      `json:"equipment_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Severity    Severity    `json:"severity"`
	Message     string      `json:"message"`
	TenantID    string      `json:"tenant_id,omitempty"`
}

// HighestSeverity returns the most severe entry in the slice, or SeverityLow
// when the slice is empty. Ties resolve to the severity itself, so a mixed
// batch reports its worst member.
func HighestSeverity(anomalies []Anomaly) Severity {
	highest := SeverityLow
	for _, a := range anomalies {
		if a.Severity.Level() > highest.Level() {
			highest = a.Severity
		}
	}
	return highest
}

// =============================================================================
// ALERTS
// =============================================================================

// Alert is the dispatchable record created for every alertable anomaly.
// Alerts start unacknowledged and unresolved; lifecycle changes happen
// outside the ingest path.
type Alert struct {
	AlertID     string      `json:"alert_id"`
	TenantID    string      `json:"tenant_id"`
	EquipmentID string      `json:"equipment_id"`
	Kind        AnomalyKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	Message     string      `json:"message"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Timestamp   time.Time   `json:"timestamp"`

	Acknowledged bool `json:"acknowledged"`
	Resolved     bool `json:"resolved"`

	// ProcessingLatencyMs measures receipt of the reading to creation of
	// this alert, for SLA tracking.
	ProcessingLatencyMs float64 `json:"processing_latency_ms"`
}

// AlertMessage is the wire form of an alert on stream topics. PublishedAt
// is stamped immediately before the record is handed to the producer.
type AlertMessage struct {
	Alert
	PublishedAt int64 `json:"published_at"` // Unix milliseconds
}

// Notification is the payload sent to tenant webhooks and notification
// topics. It repeats the alert essentials and adds operator guidance.
type Notification struct {
	AlertID            string         `json:"alert_id"`
	TenantID           string         `json:"tenant_id"`
	EquipmentID        string         `json:"equipment_id"`
	Severity           Severity       `json:"severity"`
	Timestamp          time.Time      `json:"timestamp"`
	Message            string         `json:"message"`
	SensorDetails      *SensorDetails `json:"sensor_details,omitempty"`
	RecommendedActions []string       `json:"recommended_actions,omitempty"`
	DashboardURL       string         `json:"dashboard_url,omitempty"`
}

// SensorDetails carries the measurement that triggered the notification.
type SensorDetails struct {
	Kind      AnomalyKind `json:"kind"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
}

// =============================================================================
// THRESHOLDS
// =============================================================================

// MetricBand defines the acceptance bands for one metric. Values inside
// [Min, Max] are normal, values above Max are high, values above Critical
// are critical. Below-Min handling is metric-specific.
type MetricBand struct {
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Thresholds groups the per-metric bands the detector evaluates.
type Thresholds struct {
	Temperature MetricBand `json:"temperature" yaml:"temperature"`
	Vibration   MetricBand `json:"vibration" yaml:"vibration"`
	Pressure    MetricBand `json:"pressure" yaml:"pressure"`
}

// DefaultThresholds returns the platform-wide default bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: MetricBand{Min: 0, Max: 150, Critical: 180},
		Vibration:   MetricBand{Min: 0, Max: 2.0, Critical: 5.0},
		Pressure:    MetricBand{Min: 50, Max: 500, Critical: 800},
	}
}
