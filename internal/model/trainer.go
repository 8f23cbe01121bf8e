package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/telemetry"
)

// ErrNoPositiveSamples is returned when the training set holds no failures.
var ErrNoPositiveSamples = errors.New("no positive samples in training data")

// TrainerConfig holds every tunable of a training run. It is stored in the
// artifact alongside the model it produced.
type TrainerConfig struct {
	ModelType          string         `json:"model_type"`
	TestSize           float64        `json:"test_size"`
	ValSize            float64        `json:"val_size"`
	PositiveWeight     float64        `json:"positive_class_weight"`
	NegativeWeight     float64        `json:"negative_class_weight"`
	DefaultThreshold   float64        `json:"default_threshold"`
	Grid               ThresholdGrid  `json:"threshold_grid"`
	OptimizeMetric     string         `json:"optimize_metric"`
	MinPositiveSamples int            `json:"min_positive_samples"`
	Forest             ForestParams   `json:"forest"`
	Logistic           LogisticParams `json:"logistic"`
	Seed               int64          `json:"random_seed"`
}

// DefaultTrainerConfig returns the production training defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		ModelType:          TypeRandomForest,
		TestSize:           0.2,
		ValSize:            0.1,
		PositiveWeight:     10,
		NegativeWeight:     1,
		DefaultThreshold:   0.3,
		Grid:               DefaultThresholdGrid(),
		OptimizeMetric:     MetricF1,
		MinPositiveSamples: 30,
		Forest: ForestParams{
			NEstimators: 200,
			TreeParams: TreeParams{
				MaxDepth:        10,
				MinSamplesSplit: 20,
				MinSamplesLeaf:  10,
			},
			Workers: 4,
		},
		Logistic: DefaultLogisticParams(),
		Seed:     42,
	}
}

func (c TrainerConfig) classWeight() [2]float64 {
	return [2]float64{c.NegativeWeight, c.PositiveWeight}
}

// Dataset is a labeled feature matrix ready for fitting. Rows are unscaled and
// ordered as Columns. Locations is the vocabulary used to encode them.
type Dataset struct {
	Columns   []string
	Locations []string
	X         [][]float64
	Y         []int
}

// Positives counts rows labeled 1.
func (d Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		n += y
	}
	return n
}

func (d Dataset) validate() error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("dataset has %d rows but %d labels", len(d.X), len(d.Y))
	}
	if len(d.X) == 0 {
		return errors.New("dataset is empty")
	}
	for i, row := range d.X {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(d.Columns))
		}
	}
	for i, y := range d.Y {
		if y != 0 && y != 1 {
			return fmt.Errorf("row %d has label %d", i, y)
		}
	}
	return nil
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the trainer's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Trainer) { t.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(t *Trainer) { t.metrics = m }
}

// Trainer fits, evaluates and calibrates a failure classifier.
type Trainer struct {
	cfg     TrainerConfig
	log     logrus.FieldLogger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewTrainer creates a Trainer with cfg.
func NewTrainer(cfg TrainerConfig, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:     cfg,
		log:     logrus.StandardLogger(),
		metrics: telemetry.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the trainer configuration.
func (t *Trainer) Config() TrainerConfig {
	return t.cfg
}

// Train runs a full training pass over ds and returns the resulting artifact.
func (t *Trainer) Train(ctx context.Context, ds Dataset) (*Artifact, error) {
	start := time.Now()
	t.metrics.TrainingRuns.Inc(1)
	a, err := t.train(ctx, ds)
	if err != nil {
		t.metrics.TrainingFailures.Inc(1)
		return nil, err
	}
	t.metrics.TrainingTime.UpdateSince(start)
	return a, nil
}

func (t *Trainer) train(ctx context.Context, ds Dataset) (*Artifact, error) {
	if err := ds.validate(); err != nil {
		return nil, err
	}
	positives := ds.Positives()
	if positives == 0 {
		return nil, ErrNoPositiveSamples
	}
	switch t.cfg.ModelType {
	case TypeRandomForest, TypeLogistic:
	default:
		return nil, fmt.Errorf("unknown model type %q", t.cfg.ModelType)
	}

	var warnings []string
	negatives := len(ds.Y) - positives
	t.log.WithFields(logrus.Fields{
		"samples":         len(ds.Y),
		"positives":       positives,
		"negatives":       negatives,
		"imbalance_ratio": fmt.Sprintf("%.1f:1", float64(negatives)/float64(positives)),
	}).Info("Class balance")
	if positives < t.cfg.MinPositiveSamples {
		w := fmt.Sprintf("only %d positive samples (minimum recommended %d); metrics may be unreliable", positives, t.cfg.MinPositiveSamples)
		warnings = append(warnings, w)
		t.log.Warn(w)
	}

	part, err := StratifiedSplit(ds.Y, t.cfg.TestSize, t.cfg.ValSize, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{
		"train":      len(part.Train),
		"validation": len(part.Validation),
		"test":       len(part.Test),
	}).Info("Split data")

	scaler := FitScaler(rows(ds.X, part.Train))
	xs := scaler.TransformAll(ds.X)
	xTrain, yTrain := rows(xs, part.Train), labels(ds.Y, part.Train)

	a := &Artifact{
		FormatVersion:  FormatVersion,
		ID:             uuid.NewString(),
		ModelType:      t.cfg.ModelType,
		TrainedAt:      t.now().UTC(),
		FeatureColumns: append([]string(nil), ds.Columns...),
		Locations:      append([]string(nil), ds.Locations...),
		Scaler:         scaler,
		Config:         t.cfg,
		Metrics:        map[string]Metrics{},
	}

	var importance []float64
	switch t.cfg.ModelType {
	case TypeRandomForest:
		t.log.WithField("n_estimators", t.cfg.Forest.NEstimators).Info("Training random forest")
		a.Forest, importance, err = FitForest(ctx, xTrain, yTrain, t.cfg.classWeight(), t.cfg.Seed, t.cfg.Forest)
	case TypeLogistic:
		t.log.Info("Training logistic regression")
		a.Logistic, importance, err = FitLogistic(ctx, xTrain, yTrain, t.cfg.classWeight(), t.cfg.Logistic)
	}
	if err != nil {
		return nil, err
	}
	a.FeatureImportances = rankImportances(ds.Columns, importance)
	for i, imp := range a.FeatureImportances {
		if i == 15 {
			break
		}
		t.log.WithFields(logrus.Fields{"rank": i + 1, "feature": imp.Feature, "importance": imp.Importance}).Info("Feature importance")
	}

	clf := a.classifier()
	proba := func(idx []int) []float64 {
		out := make([]float64, len(idx))
		for i, k := range idx {
			out[i] = clf.Proba(xs[k])
		}
		return out
	}

	pTrain := proba(part.Train)
	a.Metrics[SplitTraining] = Evaluate(yTrain, pTrain, t.cfg.DefaultThreshold)
	t.logMetrics(SplitTraining, a.Metrics[SplitTraining])

	yVal := labels(ds.Y, part.Validation)
	pVal := proba(part.Validation)
	a.Metrics[SplitValidation] = Evaluate(yVal, pVal, t.cfg.DefaultThreshold)
	t.logMetrics(SplitValidation, a.Metrics[SplitValidation])

	a.Threshold = t.cfg.DefaultThreshold
	if len(yVal) > 0 {
		best, _, err := OptimizeThreshold(yVal, pVal, t.cfg.Grid, t.cfg.OptimizeMetric)
		if err != nil {
			return nil, err
		}
		a.Threshold = best.Threshold
		t.log.WithFields(logrus.Fields{
			"threshold": best.Threshold,
			"metric":    t.cfg.OptimizeMetric,
			"score":     best.Score,
		}).Info("Selected decision threshold")
	} else {
		w := "validation split is empty; keeping default threshold"
		warnings = append(warnings, w)
		t.log.Warn(w)
	}

	yTest := labels(ds.Y, part.Test)
	a.Metrics[SplitTest] = Evaluate(yTest, proba(part.Test), a.Threshold)
	t.logMetrics(SplitTest, a.Metrics[SplitTest])

	a.Warnings = warnings
	return a, nil
}

func (t *Trainer) logMetrics(split string, m Metrics) {
	fields := logrus.Fields{
		"split":     split,
		"threshold": m.Threshold,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"tn":        m.ConfusionMatrix[0][0],
		"fp":        m.ConfusionMatrix[0][1],
		"fn":        m.ConfusionMatrix[1][0],
		"tp":        m.ConfusionMatrix[1][1],
	}
	if m.ROCAUC != nil {
		fields["roc_auc"] = *m.ROCAUC
	}
	t.log.WithFields(fields).Info("Evaluated split")
}

func rankImportances(cols []string, importance []float64) []Importance {
	out := make([]Importance, len(cols))
	for j, c := range cols {
		out[j] = Importance{Feature: c, Importance: importance[j]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
