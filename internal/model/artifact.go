package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FormatVersion is the artifact layout written by Save.
const FormatVersion = 1

// Model types.
const (
	TypeRandomForest = "random_forest"
	TypeLogistic     = "logistic"
)

var (
	// ErrArtifactNotFound is returned by Load when no artifact exists at the path.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactCorrupt is returned by Load when the file cannot be decoded or
	// does not describe a usable model.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
)

// Importance is the normalized contribution of one feature column.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Artifact is one trained model with everything inference needs to reproduce
// the training-time feature layout. It is never modified after training.
type Artifact struct {
	FormatVersion      int                `json:"format_version"`
	ID                 string             `json:"id"`
	ModelType          string             `json:"model_type"`
	TrainedAt          time.Time          `json:"trained_at"`
	Threshold          float64            `json:"threshold"`
	FeatureColumns     []string           `json:"feature_columns"`
	Locations          []string           `json:"locations"`
	Scaler             Scaler             `json:"scaler"`
	Forest             *Forest            `json:"forest,omitempty"`
	Logistic           *Logistic          `json:"logistic,omitempty"`
	FeatureImportances []Importance       `json:"feature_importances"`
	Metrics            map[string]Metrics `json:"metrics"`
	Config             TrainerConfig      `json:"config"`
	Warnings           []string           `json:"warnings,omitempty"`
}

type classifier interface {
	Proba(x []float64) float64
}

func (a *Artifact) classifier() classifier {
	if a.ModelType == TypeLogistic {
		return a.Logistic
	}
	return a.Forest
}

// Proba scales an unscaled feature row and returns its failure probability.
func (a *Artifact) Proba(row []float64) float64 {
	return a.classifier().Proba(a.Scaler.Transform(row))
}

// ProbaAll scores every row of x.
func (a *Artifact) ProbaAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = a.Proba(row)
	}
	return out
}

// Validate checks the artifact is internally consistent and safe to score with.
func (a *Artifact) Validate() error {
	cols := len(a.FeatureColumns)
	switch {
	case a.FormatVersion != FormatVersion:
		return fmt.Errorf("unsupported format version %d", a.FormatVersion)
	case cols == 0:
		return errors.New("no feature columns")
	case math.IsNaN(a.Threshold) || a.Threshold < 0 || a.Threshold > 1:
		return fmt.Errorf("threshold %v outside [0, 1]", a.Threshold)
	case len(a.Scaler.Mean) != cols || len(a.Scaler.Scale) != cols:
		return fmt.Errorf("scaler has %d/%d entries for %d columns", len(a.Scaler.Mean), len(a.Scaler.Scale), cols)
	}
	for j, s := range a.Scaler.Scale {
		if s == 0 {
			return fmt.Errorf("scaler column %s has zero scale", a.FeatureColumns[j])
		}
	}
	for _, split := range []string{SplitTraining, SplitValidation, SplitTest} {
		if _, ok := a.Metrics[split]; !ok {
			return fmt.Errorf("missing %s metrics", split)
		}
	}

	switch a.ModelType {
	case TypeRandomForest:
		if a.Forest == nil || len(a.Forest.Trees) == 0 {
			return errors.New("random forest has no trees")
		}
		for i, t := range a.Forest.Trees {
			if err := validateTree(t, cols); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	case TypeLogistic:
		if a.Logistic == nil || len(a.Logistic.Weights) != cols {
			return fmt.Errorf("logistic model does not match %d columns", cols)
		}
	default:
		return fmt.Errorf("unknown model type %q", a.ModelType)
	}
	return nil
}

// validateTree ensures every walk from the root terminates at a leaf.
func validateTree(t Tree, cols int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= cols {
			return fmt.Errorf("node %d splits on column %d of %d", i, n.Feature, cols)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// Save writes the artifact to path as gzip-compressed JSON. The file is written
// under a temporary name and renamed into place, so readers never observe a
// partial artifact.
func Save(a *Artifact, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	f, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	zw := gzip.NewWriter(f)
	if err = json.NewEncoder(zw).Encode(a); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the artifact at path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	dec.DisallowUnknownFields()
	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	return &a, nil
}
