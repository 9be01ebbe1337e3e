// Package types defines the core domain types shared across the ingestion pipeline.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API and stream transport
// 3. Ownership: Every persisted or published record carries its owning tenant_id
// 4. Validation: Boundary types include Validate() methods for contract enforcement
package types

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// SENSOR READINGS
// =============================================================================

// Measurement bounds accepted at the ingest boundary. Values outside these
// ranges indicate a malfunctioning sensor or a corrupt payload rather than a
// process anomaly, and are rejected before detection runs.
const (
	TemperatureFloor = -273.0
	TemperatureCeil  = 1000.0
	VibrationFloor   = 0.0
	VibrationCeil    = 100.0
	PressureFloor    = 0.0
	PressureCeil     = 10000.0
)

// SensorReading is a single telemetry sample from one piece of equipment.
//
// Only equipment_id and timestamp are required. Measurements are optional
// pointers so that "absent" and "zero" stay distinct; detection skips
// whichever measurements a reading does not carry.
type SensorReading struct {
	EquipmentID string    `json:"equipment_id"`
	Timestamp   time.Time `json:"timestamp"`

	Temperature      *float64 `json:"temperature,omitempty"`
	Vibration        *float64 `json:"vibration,omitempty"`
	Pressure         *float64 `json:"pressure,omitempty"`
	PowerConsumption *float64 `json:"power_consumption,omitempty"`

	FacilityID    string             `json:"facility_id,omitempty"`
	LineID        string             `json:"line_id,omitempty"`
	CustomMetrics map[string]float64 `json:"custom_metrics,omitempty"`

	// Enrichment fields set by the pipeline, never by the caller.
	TenantID           string    `json:"tenant_id,omitempty"`
	IngestionTimestamp time.Time `json:"ingestion_timestamp,omitempty"`
	Source             string    `json:"source,omitempty"`
	HasAnomalies       bool      `json:"has_anomalies,omitempty"`
	Anomalies          []Anomaly `json:"anomalies,omitempty"`
}

// Validate checks the reading against the ingest contract and returns one
// human-readable problem per violation. An empty slice means the reading is
// acceptable.
func (r *SensorReading) Validate() []string {
	var problems []string
	if r.EquipmentID == "" {
		problems = append(problems, "equipment_id is required")
	}
	if r.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if r.Temperature != nil && (*r.Temperature < TemperatureFloor || *r.Temperature > TemperatureCeil) {
		problems = append(problems, fmt.Sprintf("temperature %.2f outside accepted range [%.0f, %.0f]", *r.Temperature, TemperatureFloor, TemperatureCeil))
	}
	if r.Vibration != nil && (*r.Vibration < VibrationFloor || *r.Vibration > VibrationCeil) {
		problems = append(problems, fmt.Sprintf("vibration %.2f outside accepted range [%.0f, %.0f]", *r.Vibration, VibrationFloor, VibrationCeil))
	}
	if r.Pressure != nil && (*r.Pressure < PressureFloor || *r.Pressure > PressureCeil) {
		problems = append(problems, fmt.Sprintf("pressure %.2f outside accepted range [%.0f, %.0f]", *r.Pressure, PressureFloor, PressureCeil))
	}
	if r.PowerConsumption != nil && *r.PowerConsumption < 0 {
		problems = append(problems, "power_consumption must be non-negative")
	}
	return problems
}

// ContentHash returns a stable hash over the reading's identity and core
// measurements. The hot tier stores it alongside each row so duplicate
// deliveries can be detected without comparing full payloads.
func (r *SensorReading) ContentHash() string {
	h := xxhash.New()
	io.WriteString(h, r.EquipmentID)
	io.WriteString(h, "|")
	io.WriteString(h, r.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, v := range []*float64{r.Temperature, r.Vibration, r.Pressure} {
		io.WriteString(h, "|")
		if v != nil {
			io.WriteString(h, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// =============================================================================
// TENANTS
// =============================================================================

// DeploymentMode controls how a tenant's data is physically separated from
// other tenants.
type DeploymentMode string

const (
	// DeploymentIsolated - dedicated storage reached through the tenant's own connection string
	DeploymentIsolated DeploymentMode = "isolated"
	// DeploymentShared - pooled infrastructure with row-level security scoping every query
	DeploymentShared DeploymentMode = "shared"
	// DeploymentMixed - hot data on shared infrastructure, archival storage dedicated
	DeploymentMixed DeploymentMode = "mixed"
)

// TenantTier is the tenant's subscription level. Tier influences alert
// routing and promotion eligibility, not correctness.
type TenantTier string

const (
	TierBasic        TenantTier = "basic"
	TierProfessional TenantTier = "professional"
	TierEnterprise   TenantTier = "enterprise"
)

// TenantContext is the resolved configuration for one tenant. The resolver
// produces it once per request and every downstream stage reads from it.
type TenantContext struct {
	TenantID       string         `json:"tenant_id" yaml:"tenant_id"`
	Name           string         `json:"name" yaml:"name"`
	DeploymentMode DeploymentMode `json:"deployment_mode" yaml:"deployment_mode"`
	Region         string         `json:"region" yaml:"region"`
	Tier           TenantTier     `json:"tier" yaml:"tier"`
	ComplianceTags []string       `json:"compliance_tags,omitempty" yaml:"compliance_tags,omitempty"`
	MaxEquipment   int            `json:"max_equipment" yaml:"max_equipment"`
	RetentionDays  int            `json:"retention_days" yaml:"retention_days"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`

	// APIKeyHash is the bcrypt hash of the tenant's ingest API key.
	// Never serialized into API responses.
	APIKeyHash string `json:"-" yaml:"api_key_hash,omitempty"`

	Data     DataConfig    `json:"data" yaml:"data"`
	Objects  ObjectConfig  `json:"objects" yaml:"objects"`
	Alerting AlertRouting  `json:"alerting" yaml:"alerting"`
	Features FeatureConfig `json:"features" yaml:"features"`
}

// DataConfig describes how the tenant reaches relational storage.
type DataConfig struct {
	// ConnectionString is set only for isolated deployments.
	ConnectionString   string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
	RowLevelSecurity   bool   `json:"row_level_security" yaml:"row_level_security"`
	MaxPoolConnections int    `json:"max_pool_connections,omitempty" yaml:"max_pool_connections,omitempty"`
}

// ObjectConfig describes the tenant's archival storage placement.
type ObjectConfig struct {
	DedicatedBucket  string `json:"dedicated_bucket,omitempty" yaml:"dedicated_bucket,omitempty"`
	EncryptionKeyRef string `json:"encryption_key_ref,omitempty" yaml:"encryption_key_ref,omitempty"`
	RetentionPolicy  string `json:"retention_policy,omitempty" yaml:"retention_policy,omitempty"`
}

// AlertRouting holds the tenant's notification destinations.
type AlertRouting struct {
	NotificationTopics []string         `json:"notification_topics,omitempty" yaml:"notification_topics,omitempty"`
	WebhookURLs        []string         `json:"webhook_urls,omitempty" yaml:"webhook_urls,omitempty"`
	EscalationRules    []EscalationRule `json:"escalation_rules,omitempty" yaml:"escalation_rules,omitempty"`
}

// EscalationRule routes alerts of a given severity to extra channels after a
// delay. Delayed escalation is evaluated outside the ingest path.
type EscalationRule struct {
	Severity     Severity `json:"severity" yaml:"severity"`
	DelayMinutes int      `json:"delay_minutes" yaml:"delay_minutes"`
	Channels     []string `json:"channels" yaml:"channels"`
}

// FeatureConfig gates per-tenant platform features and limits.
type FeatureConfig struct {
	AdvancedAnalytics  bool `json:"advanced_analytics" yaml:"advanced_analytics"`
	CustomDashboards   bool `json:"custom_dashboards" yaml:"custom_dashboards"`
	APIRateLimit       int  `json:"api_rate_limit" yaml:"api_rate_limit"`
	MaxConcurrentUsers int  `json:"max_concurrent_users" yaml:"max_concurrent_users"`
}

// Validate enforces the structural invariants between deployment mode and
// storage configuration.
func (t *TenantContext) Validate() error {
	if t.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	switch t.DeploymentMode {
	case DeploymentIsolated:
		if t.Data.ConnectionString == "" {
			return fmt.Errorf("tenant %s: isolated deployment requires a connection string", t.TenantID)
		}
	case DeploymentShared:
		if t.Data.ConnectionString != "" {
			return fmt.Errorf("tenant %s: shared deployment must not carry a connection string", t.TenantID)
		}
		if !t.Data.RowLevelSecurity {
			return fmt.Errorf("tenant %s: shared deployment requires row-level security", t.TenantID)
		}
	case DeploymentMixed:
		if !t.Data.RowLevelSecurity {
			return fmt.Errorf("tenant %s: mixed deployment requires row-level security", t.TenantID)
		}
	case "":
		return fmt.Errorf("tenant %s: deployment_mode is required", t.TenantID)
	default:
		return fmt.Errorf("tenant %s: unknown deployment_mode %q", t.TenantID, t.DeploymentMode)
	}
	return nil
}

// Isolated reports whether the tenant's relational traffic goes to dedicated
// storage.
func (t *TenantContext) Isolated() bool {
	return t.DeploymentMode == DeploymentIsolated
}

// UsageStats summarizes a tenant's recent traffic. The promotion advisor
// compares these figures against the dedicated-resource eligibility rules.
type UsageStats struct {
	TenantID         string  `json:"tenant_id"`
	DailyVolumeGB    float64 `json:"daily_volume_gb"`
	AvgQueriesPerSec float64 `json:"avg_queries_per_sec"`
	SLAViolations    int     `json:"sla_violations"`
}

// =============================================================================
// EQUIPMENT
// =============================================================================

// Equipment status values maintained by the warm tier.
const (
	EquipmentOnline    = "online"
	EquipmentAnomalous = "anomalous"
	EquipmentOffline   = "offline"
)

// EquipmentStatus is the current-state row kept per piece of equipment.
// Each accepted reading overwrites the previous state.
type EquipmentStatus struct {
	EquipmentID        string    `json:"equipment_id"`
	LastSeen           time.Time `json:"last_seen"`
	CurrentTemperature *float64  `json:"current_temperature,omitempty"`
	CurrentVibration   *float64  `json:"current_vibration,omitempty"`
	CurrentPressure    *float64  `json:"current_pressure,omitempty"`
	Status             string    `json:"status"`
	FacilityID         string    `json:"facility_id,omitempty"`
	LineID             string    `json:"line_id,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// =============================================================================
// API ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper for every API endpoint.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Details   []string  `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestResult is the success payload returned by the ingest endpoints.
type IngestResult struct {
	Message             string    `json:"message"`
	EquipmentID         string    `json:"equipment_id"`
	Timestamp           time.Time `json:"timestamp"`
	AnomaliesDetected   int       `json:"anomalies_detected"`
	AlertsCreated       int       `json:"alerts_created"`
	ProcessingLatencyMs float64   `json:"processing_latency_ms"`
	SLACompliant        bool      `json:"sla_compliant"`
}
