package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// ForestParams configures a bagged tree ensemble.
type ForestParams struct {
	NEstimators int `json:"n_estimators"`
	TreeParams
	// Workers bounds concurrent tree fitting; it does not affect the result.
	Workers int `json:"-"`
}

// Forest averages the leaf probabilities of its trees.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// Proba returns the mean positive-class probability over all trees.
func (f *Forest) Proba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Proba(x)
	}
	return sum / float64(len(f.Trees))
}

// SqrtFeatures returns the per-split feature budget for n columns.
func SqrtFeatures(n int) int {
	return max(1, int(math.Sqrt(float64(n))))
}

// FitForest fits p.NEstimators trees on bootstrap samples of (x, y). Tree seeds
// are drawn from seed up front, so the fitted forest does not depend on how
// many workers ran.
func FitForest(ctx context.Context, x [][]float64, y []int, classWeight [2]float64, seed int64, p ForestParams) (*Forest, []float64, error) {
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("fit forest: empty training set")
	}
	if p.NEstimators < 1 {
		return nil, nil, fmt.Errorf("fit forest: n_estimators must be positive, got %d", p.NEstimators)
	}
	cols := len(x[0])
	if p.MaxFeatures < 1 || p.MaxFeatures > cols {
		p.MaxFeatures = SqrtFeatures(cols)
	}

	w := make([]float64, len(y))
	for i, label := range y {
		w[i] = classWeight[label]
	}

	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, p.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]Tree, p.NEstimators)
	imps := make([][]float64, p.NEstimators)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := make([]int, len(x))
			for k := range idx {
				idx[k] = rng.Intn(len(x))
			}
			trees[i], imps[i] = fitTree(x, y, w, idx, p.TreeParams, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	importance := make([]float64, cols)
	for _, imp := range imps {
		normalize(imp)
		for j, v := range imp {
			importance[j] += v
		}
	}
	normalize(importance)
	return &Forest{Trees: trees}, importance, nil
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
