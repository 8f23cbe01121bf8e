package telemetry

import (
	gometrics "github.com/rcrowley/go-metrics"
)

// Metric names registered by New.
const (
	SnapshotsExtracted = "risk.snapshots.extracted"
	EquipmentSkipped   = "risk.equipment.skipped"
	PredictionsServed  = "risk.predictions.served"
	TrainingRuns       = "risk.training.runs"
	TrainingFailures   = "risk.training.failures"
	ExtractionTime     = "risk.extraction.time"
	TrainingTime       = "risk.training.time"
	PredictionTime     = "risk.prediction.time"
)

// Metrics holds the pipeline counters and timers. Each instance owns its registry
// so tests and parallel pipelines do not share counts.
type Metrics struct {
	Registry gometrics.Registry

	SnapshotsExtracted gometrics.Counter
	EquipmentSkipped   gometrics.Counter
	PredictionsServed  gometrics.Counter
	TrainingRuns       gometrics.Counter
	TrainingFailures   gometrics.Counter
	ExtractionTime     gometrics.Timer
	TrainingTime       gometrics.Timer
	PredictionTime     gometrics.Timer
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	r := gometrics.NewRegistry()
	m := &Metrics{
		Registry:           r,
		SnapshotsExtracted: gometrics.NewCounter(),
		EquipmentSkipped:   gometrics.NewCounter(),
		PredictionsServed:  gometrics.NewCounter(),
		TrainingRuns:       gometrics.NewCounter(),
		TrainingFailures:   gometrics.NewCounter(),
		ExtractionTime:     gometrics.NewTimer(),
		TrainingTime:       gometrics.NewTimer(),
		PredictionTime:     gometrics.NewTimer(),
	}
	// Register only fails on duplicate names, which cannot happen on a fresh registry.
	_ = r.Register(SnapshotsExtracted, m.SnapshotsExtracted)
	_ = r.Register(EquipmentSkipped, m.EquipmentSkipped)
	_ = r.Register(PredictionsServed, m.PredictionsServed)
	_ = r.Register(TrainingRuns, m.TrainingRuns)
	_ = r.Register(TrainingFailures, m.TrainingFailures)
	_ = r.Register(ExtractionTime, m.ExtractionTime)
	_ = r.Register(TrainingTime, m.TrainingTime)
	_ = r.Register(PredictionTime, m.PredictionTime)
	return m
}

// Snapshot returns the current value of every registered metric keyed by name.
func (m *Metrics) Snapshot() map[string]map[string]interface{} {
	return m.Registry.GetAll()
}
