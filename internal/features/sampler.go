package features

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SamplerConfig controls how the training history is walked.
type SamplerConfig struct {
	LookbackMonths       int
	PredictionWindowDays int
	IntervalDays         int
}

// DefaultSamplerConfig returns 12 months of weekly snapshots labeled over 30 days.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		LookbackMonths:       12,
		PredictionWindowDays: 30,
		IntervalDays:         7,
	}
}

// LabeledSnapshot is a snapshot plus its forward-looking failure label.
type LabeledSnapshot struct {
	Snapshot
	Label int
}

// TrainingSet is the sampler output.
type TrainingSet struct {
	Samples []LabeledSnapshot
	Skipped []Skipped
	Start   time.Time
	End     time.Time
}

// Positives counts samples labeled 1.
func (ts TrainingSet) Positives() int {
	n := 0
	for _, s := range ts.Samples {
		n += s.Label
	}
	return n
}

// Snapshots returns the unlabeled snapshots in sample order.
func (ts TrainingSet) Snapshots() []Snapshot {
	out := make([]Snapshot, len(ts.Samples))
	for i, s := range ts.Samples {
		out[i] = s.Snapshot
	}
	return out
}

// Labels returns the labels in sample order.
func (ts TrainingSet) Labels() []int {
	out := make([]int, len(ts.Samples))
	for i, s := range ts.Samples {
		out[i] = s.Label
	}
	return out
}

// SnapshotDates lists the as-of dates walked for a run at now. The last date is
// strictly before now minus the prediction window, so every label window is
// fully observed.
func SnapshotDates(now time.Time, cfg SamplerConfig) []time.Time {
	if cfg.IntervalDays < 1 {
		return nil
	}
	start := now.AddDate(0, 0, -cfg.LookbackMonths*30)
	stop := now.AddDate(0, 0, -cfg.PredictionWindowDays)
	var dates []time.Time
	for d := start; d.Before(stop); d = d.AddDate(0, 0, cfg.IntervalDays) {
		dates = append(dates, d)
	}
	return dates
}

// Sample builds a labeled training set from history ending at now.
func (e *Engineer) Sample(ctx context.Context, now time.Time, cfg SamplerConfig) (TrainingSet, error) {
	if cfg.IntervalDays < 1 {
		return TrainingSet{}, fmt.Errorf("snapshot interval must be positive, got %d", cfg.IntervalDays)
	}
	if cfg.PredictionWindowDays < 1 {
		return TrainingSet{}, fmt.Errorf("prediction window must be positive, got %d", cfg.PredictionWindowDays)
	}

	e.log.WithFields(logrus.Fields{
		"lookback_months":        cfg.LookbackMonths,
		"prediction_window_days": cfg.PredictionWindowDays,
		"snapshot_interval_days": cfg.IntervalDays,
	}).Info("Extracting training data")

	all, err := e.src.ActiveEquipment(ctx)
	if err != nil {
		return TrainingSet{}, err
	}
	equipment := eligible(all)
	e.log.WithField("equipment", len(equipment)).Info("Loaded equipment list")

	dates := SnapshotDates(now, cfg)
	ts := TrainingSet{Start: now.AddDate(0, 0, -cfg.LookbackMonths*30), End: now.AddDate(0, 0, -cfg.PredictionWindowDays)}
	skipped := make(map[string]bool)

	for _, asOf := range dates {
		batch, err := e.ExtractBatch(ctx, equipment, asOf)
		if err != nil {
			return TrainingSet{}, err
		}
		for _, s := range batch.Skipped {
			if !skipped[s.EquipmentNo] {
				skipped[s.EquipmentNo] = true
				ts.Skipped = append(ts.Skipped, s)
			}
		}

		labels := make([]int, len(batch.Snapshots))
		err = forEach(ctx, e.workers, len(batch.Snapshots), func(ctx context.Context, i int) error {
			label, err := e.Label(ctx, batch.Snapshots[i].EquipmentNo, asOf, cfg.PredictionWindowDays)
			if err != nil {
				return err
			}
			labels[i] = label
			return nil
		})
		if err != nil {
			return TrainingSet{}, err
		}

		positives := 0
		for i, snap := range batch.Snapshots {
			ts.Samples = append(ts.Samples, LabeledSnapshot{Snapshot: snap, Label: labels[i]})
			positives += labels[i]
		}
		e.log.WithFields(logrus.Fields{
			"snapshot":  asOf.Format("2006-01-02"),
			"samples":   len(batch.Snapshots),
			"positives": positives,
		}).Debug("Processed snapshot")
	}

	pos := ts.Positives()
	e.log.WithFields(logrus.Fields{
		"samples":   len(ts.Samples),
		"positives": pos,
		"negatives": len(ts.Samples) - pos,
		"skipped":   len(ts.Skipped),
		"snapshots": len(dates),
	}).Info("Created training samples")
	return ts, nil
}
