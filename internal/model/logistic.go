package model

import (
	"context"
	"fmt"
	"math"
)

// LogisticParams configures L2-regularized logistic regression.
type LogisticParams struct {
	Iterations   int     `json:"iterations"`
	LearningRate float64 `json:"learning_rate"`
	// C is the inverse regularization strength.
	C float64 `json:"c"`
}

// DefaultLogisticParams mirrors a C=1 regularized fit.
func DefaultLogisticParams() LogisticParams {
	return LogisticParams{Iterations: 1000, LearningRate: 0.1, C: 1}
}

// Logistic is a fitted linear classifier over scaled features.
type Logistic struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Proba returns sigmoid(w·x + b).
func (l *Logistic) Proba(x []float64) float64 {
	z := l.Bias
	for j, v := range x {
		z += l.Weights[j] * v
	}
	return sigmoid(z)
}

// FitLogistic runs batch gradient descent on the class-weighted log loss.
func FitLogistic(ctx context.Context, x [][]float64, y []int, classWeight [2]float64, p LogisticParams) (*Logistic, []float64, error) {
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("fit logistic: empty training set")
	}
	if p.Iterations < 1 || p.LearningRate <= 0 || p.C <= 0 {
		return nil, nil, fmt.Errorf("fit logistic: invalid params %+v", p)
	}
	cols := len(x[0])
	m := &Logistic{Weights: make([]float64, cols)}

	var wsum float64
	for _, label := range y {
		wsum += classWeight[label]
	}
	grad := make([]float64, cols)

	for it := 0; it < p.Iterations; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		for j := range grad {
			grad[j] = m.Weights[j] / (p.C * wsum)
		}
		var gb float64
		for i, row := range x {
			w := classWeight[y[i]]
			d := w * (m.Proba(row) - float64(y[i])) / wsum
			for j, v := range row {
				grad[j] += d * v
			}
			gb += d
		}
		for j := range m.Weights {
			m.Weights[j] -= p.LearningRate * grad[j]
		}
		m.Bias -= p.LearningRate * gb
	}

	importance := make([]float64, cols)
	for j, w := range m.Weights {
		importance[j] = math.Abs(w)
	}
	normalize(importance)
	return m, importance, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
