package predictor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/features"
	"github.com/ukydev/cmms-risk/internal/model"
	"github.com/ukydev/cmms-risk/internal/telemetry"
)

var (
	// ErrNoModel is returned by scoring operations when no artifact is loaded.
	ErrNoModel = errors.New("no trained model available")
	// ErrSchemaMismatch is returned when the artifact was trained on a
	// different feature column layout than the one extracted now.
	ErrSchemaMismatch = errors.New("feature columns do not match trained model")
)

// Result is the scored risk of one equipment.
type Result struct {
	EquipmentNo    string  `json:"equipment_no"`
	Description    string  `json:"description"`
	Location       string  `json:"location"`
	Probability    float64 `json:"failure_probability"`
	Predicted      bool    `json:"predicted_failure"`
	Bucket         Bucket  `json:"risk_level"`
	Recommendation string  `json:"recommendation"`
}

// Batch is the output of one PredictAll call, sorted by descending probability.
type Batch struct {
	GeneratedAt time.Time          `json:"generated_at"`
	ModelID     string             `json:"model_id"`
	Threshold   float64            `json:"threshold"`
	Results     []Result           `json:"results"`
	Skipped     []features.Skipped `json:"skipped,omitempty"`
}

// Lookup is the outcome of PredictOne. Found is false when the equipment is not
// among the eligible equipment scored in this batch.
type Lookup struct {
	EquipmentNo string  `json:"equipment_no"`
	Found       bool    `json:"found"`
	Reason      string  `json:"reason,omitempty"`
	Result      *Result `json:"result,omitempty"`
}

// ModelInfo describes the loaded artifact without its fitted parameters.
type ModelInfo struct {
	ID                 string                   `json:"id"`
	ModelType          string                   `json:"model_type"`
	TrainedAt          time.Time                `json:"trained_at"`
	Threshold          float64                  `json:"threshold"`
	FeatureColumns     []string                 `json:"feature_columns"`
	FeatureImportances []model.Importance       `json:"feature_importances"`
	Metrics            map[string]model.Metrics `json:"metrics"`
	Warnings           []string                 `json:"warnings,omitempty"`
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the predictor's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Predictor) { p.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Predictor) { p.metrics = m }
}

// WithClock overrides the time used as the as-of date of predictions.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

// Predictor scores current equipment with the loaded artifact. Results are
// computed on every call and never cached.
type Predictor struct {
	engineer *features.Engineer
	log      logrus.FieldLogger
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu       sync.RWMutex
	artifact *model.Artifact
}

// New creates a Predictor and loads the artifact at modelPath. A missing
// artifact is logged and leaves the predictor without a model; any other load
// failure is returned.
func New(engineer *features.Engineer, modelPath string, opts ...Option) (*Predictor, error) {
	p := &Predictor{
		engineer: engineer,
		log:      logrus.StandardLogger(),
		metrics:  telemetry.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if modelPath == "" {
		return p, nil
	}
	err := p.Load(modelPath)
	if errors.Is(err, model.ErrArtifactNotFound) {
		p.log.WithField("path", modelPath).Warn("No trained model found; train a model before predicting")
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Load replaces the current artifact with the one at path.
func (p *Predictor) Load(path string) error {
	a, err := model.Load(path)
	if err != nil {
		return err
	}
	p.Use(a)
	p.log.WithFields(logrus.Fields{
		"path":       path,
		"model_id":   a.ID,
		"model_type": a.ModelType,
		"threshold":  a.Threshold,
		"trained_at": a.TrainedAt,
	}).Info("Loaded model")
	return nil
}

// Use swaps in an already loaded artifact.
func (p *Predictor) Use(a *model.Artifact) {
	p.mu.Lock()
	p.artifact = a
	p.mu.Unlock()
}

// Model describes the loaded artifact.
func (p *Predictor) Model() (ModelInfo, error) {
	a := p.current()
	if a == nil {
		return ModelInfo{}, ErrNoModel
	}
	return ModelInfo{
		ID:                 a.ID,
		ModelType:          a.ModelType,
		TrainedAt:          a.TrainedAt,
		Threshold:          a.Threshold,
		FeatureColumns:     a.FeatureColumns,
		FeatureImportances: a.FeatureImportances,
		Metrics:            a.Metrics,
		Warnings:           a.Warnings,
	}, nil
}

func (p *Predictor) current() *model.Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.artifact
}

// PredictAll scores every eligible equipment as of now.
func (p *Predictor) PredictAll(ctx context.Context) (Batch, error) {
	a := p.current()
	if a == nil {
		return Batch{}, ErrNoModel
	}
	if !slices.Equal(a.FeatureColumns, features.Columns) {
		return Batch{}, fmt.Errorf("%w: model %s expects %v, extractor produces %v",
			ErrSchemaMismatch, a.ID, a.FeatureColumns, features.Columns)
	}

	start := time.Now()
	now := p.now()
	snaps, err := p.engineer.Current(ctx, now)
	if err != nil {
		return Batch{}, err
	}

	enc := features.NewEncoder(a.Locations)
	batch := Batch{
		GeneratedAt: now,
		ModelID:     a.ID,
		Threshold:   a.Threshold,
		Results:     make([]Result, 0, len(snaps.Snapshots)),
		Skipped:     snaps.Skipped,
	}
	for _, s := range snaps.Snapshots {
		prob := a.Proba(enc.Row(s))
		bucket := BucketFor(prob)
		batch.Results = append(batch.Results, Result{
			EquipmentNo:    s.EquipmentNo,
			Description:    s.Description,
			Location:       s.Location,
			Probability:    prob,
			Predicted:      prob >= a.Threshold,
			Bucket:         bucket,
			Recommendation: bucket.Recommendation(),
		})
	}
	sort.SliceStable(batch.Results, func(i, j int) bool {
		ri, rj := batch.Results[i], batch.Results[j]
		if ri.Probability != rj.Probability {
			return ri.Probability > rj.Probability
		}
		return ri.EquipmentNo < rj.EquipmentNo
	})

	p.metrics.PredictionsServed.Inc(int64(len(batch.Results)))
	p.metrics.PredictionTime.UpdateSince(start)

	counts := CountBuckets(batch.Results)
	p.log.WithFields(logrus.Fields{
		"equipment": len(batch.Results),
		"skipped":   len(batch.Skipped),
		"critical":  counts[BucketCritical],
		"high":      counts[BucketHigh],
		"medium":    counts[BucketMedium],
		"low":       counts[BucketLow],
	}).Info("Generated predictions")
	return batch, nil
}

// PredictOne scores all equipment and returns the entry for equipmentNo.
func (p *Predictor) PredictOne(ctx context.Context, equipmentNo string) (Lookup, error) {
	batch, err := p.PredictAll(ctx)
	if err != nil {
		return Lookup{}, err
	}
	for i := range batch.Results {
		if batch.Results[i].EquipmentNo == equipmentNo {
			return Lookup{EquipmentNo: equipmentNo, Found: true, Result: &batch.Results[i]}, nil
		}
	}
	for _, s := range batch.Skipped {
		if s.EquipmentNo == equipmentNo {
			return Lookup{EquipmentNo: equipmentNo, Reason: "skipped: " + s.Reason}, nil
		}
	}
	return Lookup{EquipmentNo: equipmentNo, Reason: "equipment not found among active equipment"}, nil
}

// HighRisk returns the results with probability at or above threshold.
func (p *Predictor) HighRisk(ctx context.Context, threshold float64) ([]Result, error) {
	batch, err := p.PredictAll(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAbove(batch.Results, threshold), nil
}

// FilterAbove keeps results with probability >= threshold, preserving order.
func FilterAbove(results []Result, threshold float64) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Probability >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// CountBuckets tallies results per bucket.
func CountBuckets(results []Result) map[Bucket]int {
	counts := make(map[Bucket]int, len(Buckets))
	for _, b := range Buckets {
		counts[b] = 0
	}
	for _, r := range results {
		counts[r.Bucket]++
	}
	return counts
}
