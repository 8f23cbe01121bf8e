// Package pipeline wires sampling, encoding and training into one run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/features"
	"github.com/ukydev/cmms-risk/internal/model"
)

// Pipeline trains failure-risk models from the engineer's datastore.
type Pipeline struct {
	engineer *features.Engineer
	trainer  *model.Trainer
	sampler  features.SamplerConfig
	log      logrus.FieldLogger
}

// New returns a pipeline. A nil logger means logrus.StandardLogger().
func New(engineer *features.Engineer, trainer *model.Trainer, sampler features.SamplerConfig, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{engineer: engineer, trainer: trainer, sampler: sampler, log: log}
}

// Dataset samples history as of now and encodes it into a training matrix.
func (p *Pipeline) Dataset(ctx context.Context, now time.Time) (model.Dataset, features.TrainingSet, error) {
	ts, err := p.engineer.Sample(ctx, now, p.sampler)
	if err != nil {
		return model.Dataset{}, ts, fmt.Errorf("sample training history: %w", err)
	}
	return Encode(ts), ts, nil
}

// Encode turns a training set into a dataset, building the location
// vocabulary from its snapshots.
func Encode(ts features.TrainingSet) model.Dataset {
	snaps := ts.Snapshots()
	vocab := features.Vocabulary(snaps)
	return model.Dataset{
		Columns:   features.ColumnNames(),
		Locations: vocab,
		X:         features.NewEncoder(vocab).Matrix(snaps),
		Y:         ts.Labels(),
	}
}

// Train samples, encodes and fits a model.
func (p *Pipeline) Train(ctx context.Context, now time.Time) (*model.Artifact, error) {
	ds, ts, err := p.Dataset(ctx, now)
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"samples":   len(ds.Y),
		"positives": ts.Positives(),
		"skipped":   len(ts.Skipped),
		"locations": len(ds.Locations),
	}).Info("Training dataset ready")
	return p.trainer.Train(ctx, ds)
}

// TrainAndSave trains a model and writes it to path.
func (p *Pipeline) TrainAndSave(ctx context.Context, now time.Time, path string) (*model.Artifact, error) {
	a, err := p.Train(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := model.Save(a, path); err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"path": path, "model_id": a.ID, "threshold": a.Threshold}).Info("Model saved")
	return a, nil
}

// CrossValidate samples, encodes and runs k-fold cross-validation.
func (p *Pipeline) CrossValidate(ctx context.Context, now time.Time, k int) (model.CVResult, error) {
	ds, _, err := p.Dataset(ctx, now)
	if err != nil {
		return model.CVResult{}, err
	}
	return p.trainer.CrossValidate(ctx, ds, k)
}
