package detector

import (
	"testing"
	"time"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

func ptr(v float64) *float64 { return &v }

func reading(overrides ...func(*types.SensorReading)) *types.SensorReading {
	r := &types.SensorReading{
		EquipmentID: "PUMP_001",
		Timestamp:   time.Date(2025, 11, 23, 10, 30, 0, 0, time.UTC),
	}
	for _, o := range overrides {
		o(r)
	}
	return r
}

func TestDetectTemperatureBands(t *testing.T) {
	d := New(types.DefaultThresholds())

	tests := []struct {
		name         string
		temperature  float64
		wantCount    int
		wantKind     types.AnomalyKind
		wantSeverity types.Severity
	}{
		{"normal", 75.5, 0, "", ""},
		{"at normal ceiling", 150, 0, "", ""},
		{"high", 165, 1, types.KindHighTemperature, types.SeverityHigh},
		{"critical", 195, 1, types.KindCriticalTemperature, types.SeverityCritical},
		{"well past critical", 205.9, 1, types.KindCriticalTemperature, types.SeverityCritical},
		{"below operating range", -15, 1, types.KindHighTemperature, types.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := reading(func(r *types.SensorReading) { r.Temperature = ptr(tt.temperature) })
			anomalies := d.Detect(r)
			if len(anomalies) != tt.wantCount {
				t.Fatalf("got %d anomalies, want %d", len(anomalies), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			a := anomalies[0]
			if a.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", a.Kind, tt.wantKind)
			}
			if a.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", a.Severity, tt.wantSeverity)
			}
			if a.Value != tt.temperature {
				t.Errorf("value = %f, want %f", a.Value, tt.temperature)
			}
		})
	}
}

func TestDetectHighestBandWins(t *testing.T) {
	d := New(types.DefaultThresholds())

	// 200°C breaches both the high and critical bands; exactly one anomaly
	// comes out, classified critical.
	r := reading(func(r *types.SensorReading) { r.Temperature = ptr(200) })
	anomalies := d.Detect(r)
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1", len(anomalies))
	}
	if anomalies[0].Kind != types.KindCriticalTemperature {
		t.Errorf("kind = %s, want %s", anomalies[0].Kind, types.KindCriticalTemperature)
	}
}

func TestDetectPressureBands(t *testing.T) {
	d := New(types.DefaultThresholds())

	tests := []struct {
		name         string
		pressure     float64
		wantCount    int
		wantKind     types.AnomalyKind
		wantSeverity types.Severity
	}{
		{"normal", 250.8, 0, "", ""},
		{"low", 30, 1, types.KindAbnormalPressure, types.SeverityMedium},
		{"moderately high", 600, 1, types.KindAbnormalPressure, types.SeverityMedium},
		{"critical", 1150, 1, types.KindCriticalPressure, types.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := reading(func(r *types.SensorReading) { r.Pressure = ptr(tt.pressure) })
			anomalies := d.Detect(r)
			if len(anomalies) != tt.wantCount {
				t.Fatalf("got %d anomalies, want %d", len(anomalies), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if anomalies[0].Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", anomalies[0].Kind, tt.wantKind)
			}
			if anomalies[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", anomalies[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestDetectVibrationBands(t *testing.T) {
	d := New(types.DefaultThresholds())

	normal := reading(func(r *types.SensorReading) { r.Vibration = ptr(1.2) })
	if got := d.Detect(normal); len(got) != 0 {
		t.Fatalf("got %d anomalies for normal vibration, want 0", len(got))
	}

	high := reading(func(r *types.SensorReading) { r.Vibration = ptr(3.5) })
	anomalies := d.Detect(high)
	if len(anomalies) != 1 || anomalies[0].Kind != types.KindHighVibration || anomalies[0].Severity != types.SeverityHigh {
		t.Fatalf("high vibration: got %+v", anomalies)
	}

	critical := reading(func(r *types.SensorReading) { r.Vibration = ptr(8.2) })
	anomalies = d.Detect(critical)
	if len(anomalies) != 1 || anomalies[0].Kind != types.KindCriticalVibration || anomalies[0].Severity != types.SeverityCritical {
		t.Fatalf("critical vibration: got %+v", anomalies)
	}
}

func TestDetectMultipleMetrics(t *testing.T) {
	d := New(types.DefaultThresholds())

	r := reading(func(r *types.SensorReading) {
		r.Temperature = ptr(205.9)
		r.Vibration = ptr(8.2)
		r.Pressure = ptr(1150.0)
	})
	anomalies := d.Detect(r)
	if len(anomalies) != 3 {
		t.Fatalf("got %d anomalies, want 3", len(anomalies))
	}

	// Deterministic order: temperature, vibration, pressure.
	wantKinds := []types.AnomalyKind{
		types.KindCriticalTemperature,
		types.KindCriticalVibration,
		types.KindCriticalPressure,
	}
	for i, want := range wantKinds {
		if anomalies[i].Kind != want {
			t.Errorf("anomaly[%d].Kind = %s, want %s", i, anomalies[i].Kind, want)
		}
		if anomalies[i].Severity != types.SeverityCritical {
			t.Errorf("anomaly[%d].Severity = %s, want critical", i, anomalies[i].Severity)
		}
	}
}

func TestDetectSkipsAbsentMetrics(t *testing.T) {
	d := New(types.DefaultThresholds())

	// No measurements at all: nothing to evaluate.
	if got := d.Detect(reading()); len(got) != 0 {
		t.Fatalf("got %d anomalies for empty reading, want 0", len(got))
	}

	// A zero pressure reading is below the normal floor; absent pressure
	// is not the same as zero.
	r := reading(func(r *types.SensorReading) { r.Pressure = ptr(0) })
	if got := d.Detect(r); len(got) != 1 {
		t.Fatalf("got %d anomalies for zero pressure, want 1", len(got))
	}
}

func TestDetectCarriesIdentity(t *testing.T) {
	d := New(types.DefaultThresholds())

	r := reading(func(r *types.SensorReading) {
		r.TenantID = "acme-corp"
		r.Temperature = ptr(195.7)
	})
	anomalies := d.Detect(r)
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1", len(anomalies))
	}
	a := anomalies[0]
	if a.EquipmentID != r.EquipmentID {
		t.Errorf("equipment_id = %s, want %s", a.EquipmentID, r.EquipmentID)
	}
	if a.TenantID != "acme-corp" {
		t.Errorf("tenant_id = %s, want acme-corp", a.TenantID)
	}
	if !a.Timestamp.Equal(r.Timestamp) {
		t.Errorf("timestamp = %v, want %v", a.Timestamp, r.Timestamp)
	}
}
