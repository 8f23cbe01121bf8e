package model

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic returns rows whose label is 1 exactly when column "a" exceeds 0.75.
func synthetic(n int, seed int64) Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := Dataset{Columns: []string{"a", "b", "c"}}
	for i := 0; i < n; i++ {
		a, b, c := rng.Float64(), rng.Float64(), rng.NormFloat64()
		y := 0
		if a > 0.75 {
			y = 1
		}
		ds.X = append(ds.X, []float64{a, b, c})
		ds.Y = append(ds.Y, y)
	}
	return ds
}

func smallConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Forest.NEstimators = 15
	cfg.Forest.MaxDepth = 6
	cfg.Forest.MinSamplesSplit = 4
	cfg.Forest.MinSamplesLeaf = 2
	cfg.MinPositiveSamples = 5
	return cfg
}

func newTestTrainer(cfg TrainerConfig) (*Trainer, *test.Hook) {
	l, hook := test.NewNullLogger()
	return NewTrainer(cfg, WithLogger(l)), hook
}

func TestFitScaler(t *testing.T) {
	s := FitScaler([][]float64{{1, 5}, {3, 5}})
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, []float64{1, 0}, s.Transform([]float64{3, 5}))
}

func TestFitTree_SeparatesClasses(t *testing.T) {
	x := [][]float64{{0.1}, {0.2}, {0.3}, {0.4}, {0.6}, {0.7}, {0.8}, {0.9}}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}
	w := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	idx := []int{0, 1, 2, 3, 4, 5, 6, 7}

	tree, imp := fitTree(x, y, w, idx, TreeParams{MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: 1}, rand.New(rand.NewSource(1)))

	assert.Equal(t, 0.0, tree.Proba([]float64{0.2}))
	assert.Equal(t, 1.0, tree.Proba([]float64{0.85}))
	assert.InDelta(t, 0.5, tree.Nodes[0].Threshold, 1e-9)
	assert.Greater(t, imp[0], 0.0)
}

func TestFitTree_RespectsMinSamplesLeaf(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []int{1, 0, 0, 0, 0, 0}
	w := []float64{1, 1, 1, 1, 1, 1}
	tree, _ := fitTree(x, y, w, []int{0, 1, 2, 3, 4, 5}, TreeParams{MaxDepth: 5, MinSamplesSplit: 2, MinSamplesLeaf: 3, MaxFeatures: 1}, rand.New(rand.NewSource(1)))

	require.Len(t, tree.Nodes, 3)
	assert.Equal(t, 3.5, tree.Nodes[0].Threshold)
}

func TestFitForest_IndependentOfWorkers(t *testing.T) {
	ds := synthetic(200, 7)
	p := smallConfig().Forest

	p.Workers = 1
	f1, imp1, err := FitForest(context.Background(), ds.X, ds.Y, [2]float64{1, 10}, 42, p)
	require.NoError(t, err)
	p.Workers = 6
	f2, imp2, err := FitForest(context.Background(), ds.X, ds.Y, [2]float64{1, 10}, 42, p)
	require.NoError(t, err)

	assert.Equal(t, f1.Trees, f2.Trees)
	assert.Equal(t, imp1, imp2)
	assert.Greater(t, f1.Proba([]float64{0.95, 0.5, 0}), f1.Proba([]float64{0.1, 0.5, 0}))
}

func TestFitForest_Cancelled(t *testing.T) {
	ds := synthetic(50, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := FitForest(ctx, ds.X, ds.Y, [2]float64{1, 1}, 1, smallConfig().Forest)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitLogistic_RanksPositivesHigher(t *testing.T) {
	ds := synthetic(300, 3)
	s := FitScaler(ds.X)
	m, imp, err := FitLogistic(context.Background(), s.TransformAll(ds.X), ds.Y, [2]float64{1, 3}, DefaultLogisticParams())
	require.NoError(t, err)

	hi := m.Proba(s.Transform([]float64{0.95, 0.5, 0}))
	lo := m.Proba(s.Transform([]float64{0.05, 0.5, 0}))
	assert.Greater(t, hi, lo)
	assert.Equal(t, 0, argmax(imp))
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func TestEvaluate(t *testing.T) {
	y := []int{0, 0, 1, 1, 1}
	p := []float64{0.1, 0.6, 0.4, 0.8, 0.2}
	m := Evaluate(y, p, 0.3)

	assert.Equal(t, [2][2]int{{1, 1}, {1, 2}}, m.ConfusionMatrix)
	assert.InDelta(t, 2.0/3.0, m.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.F1, 1e-9)
	assert.Equal(t, 5, m.Samples)
	assert.Equal(t, 3, m.Positives)
	require.NotNil(t, m.ROCAUC)
	assert.InDelta(t, 4.0/6.0, *m.ROCAUC, 1e-9)
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name string
		y    []int
		p    []float64
		want float64
		ok   bool
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1, true},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0, true},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5, true},
		{"single class", []int{0, 0, 0}, []float64{0.1, 0.2, 0.3}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ROCAUC(tt.y, tt.p)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestEvaluate_SingleClassHasNoAUC(t *testing.T) {
	m := Evaluate([]int{0, 0}, []float64{0.2, 0.9}, 0.5)
	assert.Nil(t, m.ROCAUC)
	assert.Equal(t, 0.0, m.Precision)
}
