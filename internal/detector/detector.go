// Package detector evaluates readings against per-metric threshold bands.
//
// Detection is synchronous, pure, and runs on the request path, so it has a
// hard latency budget. Each metric is checked independently; the highest
// applicable band wins, so one metric never produces more than one anomaly.
package detector

import (
	"fmt"
	"time"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Detector holds the threshold bands fixed at process start.
type Detector struct {
	thresholds types.Thresholds
}

// New creates a detector with the given bands.
func New(thresholds types.Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Detect returns the anomalies present in one reading. Metrics the reading
// does not carry are skipped. Output order is fixed: temperature,
// vibration, pressure.
func (d *Detector) Detect(r *types.SensorReading) []types.Anomaly {
	type slot struct {
		idx     int
		anomaly *types.Anomaly
	}
	results := make(chan slot, 3)

	checks := []func() *types.Anomaly{
		func() *types.Anomaly { return d.checkTemperature(r) },
		func() *types.Anomaly { return d.checkVibration(r) },
		func() *types.Anomaly { return d.checkPressure(r) },
	}
	for i, check := range checks {
		go func(i int, check func() *types.Anomaly) {
			results <- slot{idx: i, anomaly: check()}
		}(i, check)
	}

	found := make([]*types.Anomaly, len(checks))
	for range checks {
		s := <-results
		found[s.idx] = s.anomaly
	}

	var anomalies []types.Anomaly
	for _, a := range found {
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

func (d *Detector) checkTemperature(r *types.SensorReading) *types.Anomaly {
	if r.Temperature == nil {
		return nil
	}
	v := *r.Temperature
	band := d.thresholds.Temperature

	switch {
	case v > band.Critical:
		return newAnomaly(r, types.KindCriticalTemperature, types.SeverityCritical, v, band.Critical,
			fmt.Sprintf("temperature %.1f°C exceeds critical threshold %.1f°C", v, band.Critical))
	case v > band.Max:
		return newAnomaly(r, types.KindHighTemperature, types.SeverityHigh, v, band.Max,
			fmt.Sprintf("temperature %.1f°C exceeds normal threshold %.1f°C", v, band.Max))
	case v < band.Min:
		return newAnomaly(r, types.KindHighTemperature, types.SeverityMedium, v, band.Min,
			fmt.Sprintf("temperature %.1f°C below operating range minimum %.1f°C", v, band.Min))
	}
	return nil
}

func (d *Detector) checkVibration(r *types.SensorReading) *types.Anomaly {
	if r.Vibration == nil {
		return nil
	}
	v := *r.Vibration
	band := d.thresholds.Vibration

	switch {
	case v > band.Critical:
		return newAnomaly(r, types.KindCriticalVibration, types.SeverityCritical, v, band.Critical,
			fmt.Sprintf("vibration %.2f mm/s exceeds critical threshold %.2f mm/s", v, band.Critical))
	case v > band.Max:
		return newAnomaly(r, types.KindHighVibration, types.SeverityHigh, v, band.Max,
			fmt.Sprintf("vibration %.2f mm/s exceeds normal threshold %.2f mm/s", v, band.Max))
	}
	return nil
}

func (d *Detector) checkPressure(r *types.SensorReading) *types.Anomaly {
	if r.Pressure == nil {
		return nil
	}
	v := *r.Pressure
	band := d.thresholds.Pressure

	switch {
	case v > band.Critical:
		return newAnomaly(r, types.KindCriticalPressure, types.SeverityCritical, v, band.Critical,
			fmt.Sprintf("pressure %.1f PSI exceeds critical threshold %.1f PSI", v, band.Critical))
	case v > band.Max:
		return newAnomaly(r, types.KindAbnormalPressure, types.SeverityMedium, v, band.Max,
			fmt.Sprintf("pressure %.1f PSI above normal range maximum %.1f PSI", v, band.Max))
	case v < band.Min:
		return newAnomaly(r, types.KindAbnormalPressure, types.SeverityMedium, v, band.Min,
			fmt.Sprintf("pressure %.1f PSI below normal range minimum %.1f PSI", v, band.Min))
	}
	return nil
}

func newAnomaly(r *types.SensorReading, kind types.AnomalyKind, severity types.Severity, value, threshold float64, message string) *types.Anomaly {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &types.Anomaly{
		Kind:        kind,
		EquipmentID: r.EquipmentID,
		TenantID:    r.TenantID,
		Timestamp:   ts,
		Value:       value,
		Threshold:   threshold,
		Severity:    severity,
		Message:     message,
	}
}
