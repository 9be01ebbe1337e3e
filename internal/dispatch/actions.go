package dispatch

import "github.com/plantops/sensor-pipeline/pkg/types"

// recommendedActions maps each anomaly kind to the operator guidance
// included in notifications. The lists are static platform content, not
// tenant configuration.
var recommendedActions = map[types.AnomalyKind][]string{
	types.KindCriticalTemperature: {
		"Initiate emergency shutdown procedure for the affected equipment",
		"Verify coolant circulation and heat exchanger operation",
		"Dispatch maintenance crew to inspect thermal systems",
	},
	types.KindHighTemperature: {
		"Reduce equipment load and monitor temperature trend",
		"Check ventilation and ambient conditions around the unit",
	},
	types.KindCriticalVibration: {
		"Stop the equipment immediately to prevent bearing or shaft damage",
		"Schedule vibration analysis before returning to service",
	},
	types.KindHighVibration: {
		"Inspect mounting bolts and coupling alignment",
		"Compare against the unit's vibration baseline at current load",
	},
	types.KindCriticalPressure: {
		"Open relief path and verify safety valve operation",
		"Isolate the affected line section and depressurize",
	},
	types.KindAbnormalPressure: {
		"Check upstream supply and filter condition",
		"Verify pressure sensor calibration",
	},
	types.KindPowerSpike: {
		"Inspect motor windings and supply phases for imbalance",
		"Review recent load changes on the affected line",
	},
	types.KindEquipmentOffline: {
		"Confirm network connectivity to the equipment gateway",
		"Dispatch technician if the unit does not resume reporting",
	},
}

// actionsFor returns the guidance for a kind, or nil for kinds without a
// playbook entry.
func actionsFor(kind types.AnomalyKind) []string {
	return recommendedActions[kind]
}
