package objectstore

import (
	"strings"
	"testing"
	"time"

	"github.com/plantops/sensor-pipeline/internal/testutil"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

func TestArchiveKeyLayout(t *testing.T) {
	r := testutil.FixtureReading()

	key := ArchiveKey(r)
	if !strings.HasPrefix(key, "FAC_CHICAGO_01/PUMP_001/2025/11/23/10/") {
		t.Errorf("key = %s, want FAC_CHICAGO_01/PUMP_001/2025/11/23/10/ prefix", key)
	}
	if !strings.HasSuffix(key, ".json") {
		t.Errorf("key = %s, want .json suffix", key)
	}

	ts, ok := keyTimestamp(key)
	if !ok {
		t.Fatalf("timestamp not recoverable from key %s", key)
	}
	if !ts.Equal(r.Timestamp) {
		t.Errorf("recovered timestamp %v, want %v", ts, r.Timestamp)
	}
}

func TestArchiveKeyWithoutFacility(t *testing.T) {
	r := testutil.FixtureReading(func(r *types.SensorReading) { r.FacilityID = "" })

	key := ArchiveKey(r)
	if !strings.HasPrefix(key, unknownFacility+"/PUMP_001/") {
		t.Errorf("key = %s, want %s/PUMP_001/ prefix", key, unknownFacility)
	}
}

func TestErrorKeyLayout(t *testing.T) {
	r := testutil.FixtureReading()
	now := time.Date(2025, 11, 23, 10, 31, 0, 123000000, time.UTC)

	key := ErrorKey(r, now)
	want := "errors/PUMP_001-1763893860123.json"
	if key != want {
		t.Errorf("key = %s, want %s", key, want)
	}
}

func TestSensorTypes(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*types.SensorReading)
		want string
	}{
		{"all", func(r *types.SensorReading) {}, "temperature,vibration,pressure"},
		{"none", func(r *types.SensorReading) {
			r.Temperature, r.Vibration, r.Pressure = nil, nil, nil
		}, "none"},
		{"power only", func(r *types.SensorReading) {
			r.Temperature, r.Vibration, r.Pressure = nil, nil, nil
			r.PowerConsumption = testutil.Ptr(42)
		}, "power"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testutil.FixtureReading(tt.mod)
			if got := sensorTypes(r); got != tt.want {
				t.Errorf("sensorTypes = %s, want %s", got, tt.want)
			}
		})
	}
}
