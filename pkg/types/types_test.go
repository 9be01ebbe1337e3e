package types

import (
	"strings"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestSensorReading_Validate(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		reading  SensorReading
		problems []string
	}{
		{
			name: "complete reading",
			reading: SensorReading{
				EquipmentID: "PUMP_001",
				Timestamp:   ts,
				Temperature: f64(75.5),
				Vibration:   f64(1.2),
				Pressure:    f64(250.8),
			},
			problems: nil,
		},
		{
			name:    "measurement only",
			reading: SensorReading{Temperature: f64(75.0)},
			problems: []string{
				"equipment_id is required",
				"timestamp is required",
			},
		},
		{
			name:     "missing timestamp",
			reading:  SensorReading{EquipmentID: "PUMP_001"},
			problems: []string{"timestamp is required"},
		},
		{
			name: "temperature below absolute zero",
			reading: SensorReading{
				EquipmentID: "SENSOR_BAD",
				Timestamp:   ts,
				Temperature: f64(-300),
			},
			problems: []string{"temperature"},
		},
		{
			name: "vibration negative",
			reading: SensorReading{
				EquipmentID: "SENSOR_BAD",
				Timestamp:   ts,
				Vibration:   f64(-0.5),
			},
			problems: []string{"vibration"},
		},
		{
			name: "pressure beyond ceiling",
			reading: SensorReading{
				EquipmentID: "SENSOR_BAD",
				Timestamp:   ts,
				Pressure:    f64(20000),
			},
			problems: []string{"pressure"},
		},
		{
			name: "anomalous but well-formed values pass",
			reading: SensorReading{
				EquipmentID: "FURNACE_003",
				Timestamp:   ts,
				Temperature: f64(195.7),
				Vibration:   f64(8.2),
				Pressure:    f64(1150.0),
			},
			problems: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.reading.Validate()
			if len(got) != len(tt.problems) {
				t.Fatalf("expected %d problems, got %d: %v", len(tt.problems), len(got), got)
			}
			for i, want := range tt.problems {
				if !strings.Contains(got[i], want) {
					t.Errorf("problem %d: expected to mention %q, got %q", i, want, got[i])
				}
			}
		})
	}
}

func TestSensorReading_ContentHash(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	base := SensorReading{
		EquipmentID: "PUMP_001",
		Timestamp:   ts,
		Temperature: f64(75.5),
		Vibration:   f64(1.2),
		Pressure:    f64(250.8),
	}

	h1 := base.ContentHash()
	if h1 == "" {
		t.Fatal("hash should not be empty")
	}

	// Same identity and measurements hash identically even when
	// enrichment differs.
	enriched := base
	enriched.TenantID = "acme"
	enriched.HasAnomalies = true
	if h2 := enriched.ContentHash(); h2 != h1 {
		t.Errorf("enrichment changed the hash: %s vs %s", h1, h2)
	}

	// Any measurement change produces a different hash.
	changed := base
	changed.Temperature = f64(75.6)
	if h3 := changed.ContentHash(); h3 == h1 {
		t.Error("temperature change did not change the hash")
	}

	// Absent and zero measurements are distinct.
	absent := base
	absent.Pressure = nil
	zero := base
	zero.Pressure = f64(0)
	if absent.ContentHash() == zero.ContentHash() {
		t.Error("nil and zero pressure should hash differently")
	}
}

func TestTenantContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tenant  TenantContext
		wantErr string
	}{
		{
			name: "valid shared",
			tenant: TenantContext{
				TenantID:       "acme",
				DeploymentMode: DeploymentShared,
				Data:           DataConfig{RowLevelSecurity: true},
			},
		},
		{
			name: "valid isolated",
			tenant: TenantContext{
				TenantID:       "bigcorp",
				DeploymentMode: DeploymentIsolated,
				Data:           DataConfig{ConnectionString: "postgres://bigcorp-db/metrics"},
			},
		},
		{
			name:    "missing tenant id",
			tenant:  TenantContext{DeploymentMode: DeploymentShared},
			wantErr: "tenant_id is required",
		},
		{
			name: "isolated without connection string",
			tenant: TenantContext{
				TenantID:       "bigcorp",
				DeploymentMode: DeploymentIsolated,
			},
			wantErr: "requires a connection string",
		},
		{
			name: "shared with connection string",
			tenant: TenantContext{
				TenantID:       "acme",
				DeploymentMode: DeploymentShared,
				Data:           DataConfig{ConnectionString: "postgres://oops", RowLevelSecurity: true},
			},
			wantErr: "must not carry a connection string",
		},
		{
			name: "shared without row-level security",
			tenant: TenantContext{
				TenantID:       "acme",
				DeploymentMode: DeploymentShared,
			},
			wantErr: "requires row-level security",
		},
		{
			name: "mixed without row-level security",
			tenant: TenantContext{
				TenantID:       "hybrid",
				DeploymentMode: DeploymentMixed,
			},
			wantErr: "requires row-level security",
		},
		{
			name:    "missing deployment mode",
			tenant:  TenantContext{TenantID: "acme"},
			wantErr: "deployment_mode is required",
		},
		{
			name: "unknown deployment mode",
			tenant: TenantContext{
				TenantID:       "acme",
				DeploymentMode: "colo",
			},
			wantErr: "unknown deployment_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tenant.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestTenantContext_Isolated(t *testing.T) {
	iso := TenantContext{DeploymentMode: DeploymentIsolated}
	if !iso.Isolated() {
		t.Error("isolated tenant should report Isolated")
	}
	for _, mode := range []DeploymentMode{DeploymentShared, DeploymentMixed} {
		tc := TenantContext{DeploymentMode: mode}
		if tc.Isolated() {
			t.Errorf("%s tenant should not report Isolated", mode)
		}
	}
}
