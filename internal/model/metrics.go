package model

import (
	"math"
	"sort"
)

// Split names used as keys of Artifact.Metrics.
const (
	SplitTraining   = "training"
	SplitValidation = "validation"
	SplitTest       = "test"
)

// Metrics is the evaluation of one split at one threshold. ROCAUC is nil when
// the split holds a single class.
type Metrics struct {
	ROCAUC    *float64 `json:"roc_auc"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	// ConfusionMatrix is [[tn, fp], [fn, tp]].
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`
	Threshold       float64   `json:"threshold"`
	Samples         int       `json:"samples"`
	Positives       int       `json:"positives"`
}

// Evaluate scores probabilities p against labels y, predicting positive when
// p >= threshold.
func Evaluate(y []int, p []float64, threshold float64) Metrics {
	m := Metrics{Threshold: threshold, Samples: len(y)}
	for i, label := range y {
		pred := 0
		if p[i] >= threshold {
			pred = 1
		}
		m.ConfusionMatrix[label][pred]++
		m.Positives += label
	}
	m.Precision, m.Recall, m.F1 = scores(m.ConfusionMatrix)
	if auc, ok := ROCAUC(y, p); ok {
		m.ROCAUC = &auc
	}
	return m
}

func scores(cm [2][2]int) (precision, recall, f1 float64) {
	tp, fp, fn := float64(cm[1][1]), float64(cm[0][1]), float64(cm[1][0])
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// ROCAUC returns the area under the ROC curve using average ranks for ties.
// ok is false when y does not contain both classes.
func ROCAUC(y []int, p []float64) (auc float64, ok bool) {
	n := len(y)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && p[order[j+1]] == p[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var pos, neg, rankSum float64
	for i, label := range y {
		if label == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN(), false
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg), true
}
