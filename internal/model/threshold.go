package model

import (
	"fmt"
	"math"
)

// Metric names accepted by OptimizeThreshold.
const (
	MetricF1        = "f1"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
)

// ThresholdGrid is the inclusive set of candidate thresholds Min, Min+Step, ... <= Max.
type ThresholdGrid struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// DefaultThresholdGrid sweeps 0.10 to 0.85 in steps of 0.05.
func DefaultThresholdGrid() ThresholdGrid {
	return ThresholdGrid{Min: 0.10, Max: 0.85, Step: 0.05}
}

// Values lists the grid points. Points are computed from an integer step count
// and rounded, so they never drift past Max.
func (g ThresholdGrid) Values() []float64 {
	if g.Step <= 0 || g.Max < g.Min {
		return nil
	}
	n := int(math.Floor((g.Max-g.Min)/g.Step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((g.Min+float64(i)*g.Step)*1e9) / 1e9
	}
	return out
}

// ThresholdScore is the metric value reached at one candidate threshold.
type ThresholdScore struct {
	Threshold float64 `json:"threshold"`
	Score     float64 `json:"score"`
}

// OptimizeThreshold picks the grid threshold maximizing metric on (y, p).
// Ties keep the lowest threshold.
func OptimizeThreshold(y []int, p []float64, grid ThresholdGrid, metric string) (ThresholdScore, []ThresholdScore, error) {
	values := grid.Values()
	if len(values) == 0 {
		return ThresholdScore{}, nil, fmt.Errorf("empty threshold grid %+v", grid)
	}
	switch metric {
	case MetricF1, MetricPrecision, MetricRecall:
	default:
		return ThresholdScore{}, nil, fmt.Errorf("unknown optimize metric %q", metric)
	}

	best := ThresholdScore{Threshold: values[0], Score: -1}
	sweep := make([]ThresholdScore, 0, len(values))
	for _, t := range values {
		m := Evaluate(y, p, t)
		var score float64
		switch metric {
		case MetricF1:
			score = m.F1
		case MetricPrecision:
			score = m.Precision
		case MetricRecall:
			score = m.Recall
		}
		sweep = append(sweep, ThresholdScore{Threshold: t, Score: score})
		if score > best.Score {
			best = ThresholdScore{Threshold: t, Score: score}
		}
	}
	return best, sweep, nil
}
