package model

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStratifiedSplit_KeepsPositivesInEverySplit(t *testing.T) {
	for _, positives := range []int{3, 4, 7, 30} {
		y := make([]int, 200)
		for i := 0; i < positives; i++ {
			y[i*5] = 1
		}
		part, err := StratifiedSplit(y, 0.2, 0.1, 42)
		require.NoError(t, err)

		count := func(idx []int) int {
			n := 0
			for _, i := range idx {
				n += y[i]
			}
			return n
		}
		assert.GreaterOrEqual(t, count(part.Train), 1, "positives=%d", positives)
		assert.GreaterOrEqual(t, count(part.Validation), 1, "positives=%d", positives)
		assert.GreaterOrEqual(t, count(part.Test), 1, "positives=%d", positives)

		seen := map[int]bool{}
		for _, idx := range [][]int{part.Train, part.Validation, part.Test} {
			for _, i := range idx {
				assert.False(t, seen[i], "row %d in two splits", i)
				seen[i] = true
			}
		}
		assert.Len(t, seen, len(y))
	}
}

func TestStratifiedSplit_Proportions(t *testing.T) {
	y := make([]int, 1000)
	for i := 0; i < 100; i++ {
		y[i] = 1
	}
	part, err := StratifiedSplit(y, 0.2, 0.1, 1)
	require.NoError(t, err)
	assert.Len(t, part.Test, 200)
	assert.Len(t, part.Validation, 100)
	assert.Len(t, part.Train, 700)
}

func TestStratifiedSplit_InvalidSizes(t *testing.T) {
	_, err := StratifiedSplit([]int{0, 1}, 0.6, 0.5, 1)
	assert.Error(t, err)
}

func TestThresholdGrid_Values(t *testing.T) {
	v := DefaultThresholdGrid().Values()
	require.Len(t, v, 16)
	assert.Equal(t, 0.1, v[0])
	assert.Equal(t, 0.85, v[len(v)-1])
	assert.Equal(t, 0.45, v[7])
}

func TestOptimizeThreshold(t *testing.T) {
	y := []int{0, 0, 0, 1, 1, 0, 1}
	p := []float64{0.05, 0.12, 0.33, 0.42, 0.61, 0.48, 0.9}
	grid := DefaultThresholdGrid()

	best, sweep, err := OptimizeThreshold(y, p, grid, MetricF1)
	require.NoError(t, err)
	assert.Len(t, sweep, 16)
	assert.GreaterOrEqual(t, best.Threshold, grid.Min)
	assert.LessOrEqual(t, best.Threshold, grid.Max)
	assert.Equal(t, 0.35, best.Threshold)

	again, _, err := OptimizeThreshold(y, p, grid, MetricF1)
	require.NoError(t, err)
	assert.Equal(t, best, again)

	_, _, err = OptimizeThreshold(y, p, grid, "accuracy")
	assert.Error(t, err)
}

func TestTrain_NoPositives(t *testing.T) {
	ds := synthetic(50, 1)
	for i := range ds.Y {
		ds.Y[i] = 0
	}
	tr, _ := newTestTrainer(smallConfig())
	_, err := tr.Train(context.Background(), ds)
	assert.ErrorIs(t, err, ErrNoPositiveSamples)
	assert.Equal(t, int64(1), tr.metrics.TrainingFailures.Count())
}

func TestTrain_RejectsRaggedRows(t *testing.T) {
	ds := synthetic(20, 1)
	ds.X[3] = ds.X[3][:2]
	tr, _ := newTestTrainer(smallConfig())
	_, err := tr.Train(context.Background(), ds)
	assert.Error(t, err)
}

func TestTrain_LowDataWarning(t *testing.T) {
	ds := synthetic(60, 5)
	cfg := smallConfig()
	cfg.MinPositiveSamples = 1000
	tr, hook := newTestTrainer(cfg)

	a, err := tr.Train(context.Background(), ds)
	require.NoError(t, err)
	require.NotEmpty(t, a.Warnings)
	assert.Contains(t, a.Warnings[0], "positive samples")

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level.String() == "warning" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestTrain_RandomForest(t *testing.T) {
	ds := synthetic(400, 11)
	tr, _ := newTestTrainer(smallConfig())

	a, err := tr.Train(context.Background(), ds)
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	assert.Equal(t, TypeRandomForest, a.ModelType)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, ds.Columns, a.FeatureColumns)
	assert.GreaterOrEqual(t, a.Threshold, 0.1)
	assert.LessOrEqual(t, a.Threshold, 0.85)
	for _, split := range []string{SplitTraining, SplitValidation, SplitTest} {
		require.Contains(t, a.Metrics, split)
	}
	assert.Equal(t, 0.3, a.Metrics[SplitValidation].Threshold)
	assert.Equal(t, a.Threshold, a.Metrics[SplitTest].Threshold)
	require.NotNil(t, a.Metrics[SplitTest].ROCAUC)
	assert.Greater(t, *a.Metrics[SplitTest].ROCAUC, 0.9)
	assert.Equal(t, "a", a.FeatureImportances[0].Feature)
	assert.Empty(t, a.Warnings)
	assert.Equal(t, int64(1), tr.metrics.TrainingRuns.Count())
}

func TestTrain_Logistic(t *testing.T) {
	ds := synthetic(300, 13)
	cfg := smallConfig()
	cfg.ModelType = TypeLogistic
	tr, _ := newTestTrainer(cfg)

	a, err := tr.Train(context.Background(), ds)
	require.NoError(t, err)
	assert.Nil(t, a.Forest)
	require.NotNil(t, a.Logistic)
	assert.Greater(t, a.Proba([]float64{0.95, 0.5, 0}), a.Proba([]float64{0.05, 0.5, 0}))
}

func TestTrain_UnknownModelType(t *testing.T) {
	cfg := smallConfig()
	cfg.ModelType = "xgboost"
	tr, _ := newTestTrainer(cfg)
	_, err := tr.Train(context.Background(), synthetic(40, 1))
	assert.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	tr, _ := newTestTrainer(smallConfig())
	res, err := tr.CrossValidate(context.Background(), synthetic(250, 17), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Folds)
	assert.Len(t, res.Scores, 5)
	assert.Greater(t, res.Mean, 0.9)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ds := synthetic(200, 19)
	tr, _ := newTestTrainer(smallConfig())
	a, err := tr.Train(context.Background(), ds)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "model.json.gz")
	require.NoError(t, Save(a, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.Threshold, loaded.Threshold)
	assert.Equal(t, a.FeatureColumns, loaded.FeatureColumns)
	assert.Equal(t, a.ID, loaded.ID)
	assert.Equal(t, a.ProbaAll(ds.X), loaded.ProbaAll(ds.X))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json.gz"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Contains(t, err.Error(), "nope.json.gz")
}

func writeGzip(t *testing.T, path string, body []byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	tr, _ := newTestTrainer(smallConfig())
	a, err := tr.Train(context.Background(), synthetic(120, 23))
	require.NoError(t, err)
	valid, err := json.Marshal(a)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(valid, &generic))
	generic["surprise"] = true
	unknownField, err := json.Marshal(generic)
	require.NoError(t, err)

	delete(generic, "surprise")
	generic["metrics"] = map[string]any{SplitTraining: generic["metrics"].(map[string]any)[SplitTraining]}
	missingMetrics, err := json.Marshal(generic)
	require.NoError(t, err)

	a.FeatureColumns = a.FeatureColumns[:1]
	mismatched, err := json.Marshal(a)
	require.NoError(t, err)

	tests := []struct {
		name  string
		write func(path string)
	}{
		{"not gzip", func(p string) { require.NoError(t, os.WriteFile(p, []byte("plain text"), 0o644)) }},
		{"truncated", func(p string) { writeGzip(t, p, valid[:len(valid)/2]) }},
		{"unknown field", func(p string) { writeGzip(t, p, unknownField) }},
		{"schema mismatch", func(p string) { writeGzip(t, p, mismatched) }},
		{"missing split metrics", func(p string) { writeGzip(t, p, missingMetrics) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json.gz")
			tt.write(path)
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrArtifactCorrupt)
			assert.Contains(t, err.Error(), path)
		})
	}
}
