package model

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

// CVResult summarizes stratified k-fold ROC-AUC. Folds whose held-out part
// holds a single class are counted in Undefined and left out of Mean and Std.
type CVResult struct {
	Folds     int       `json:"folds"`
	Scores    []float64 `json:"scores"`
	Undefined int       `json:"undefined"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
}

// CrossValidate fits one model per fold on the remaining folds and scores the
// held-out fold. Scaling is refit on each training part.
func (t *Trainer) CrossValidate(ctx context.Context, ds Dataset, k int) (CVResult, error) {
	if err := ds.validate(); err != nil {
		return CVResult{}, err
	}
	if ds.Positives() == 0 {
		return CVResult{}, ErrNoPositiveSamples
	}
	folds, err := StratifiedFolds(ds.Y, k, t.cfg.Seed)
	if err != nil {
		return CVResult{}, err
	}

	res := CVResult{Folds: k}
	for i, held := range folds {
		var train []int
		for j, f := range folds {
			if j != i {
				train = append(train, f...)
			}
		}
		scaler := FitScaler(rows(ds.X, train))
		xTrain := scaler.TransformAll(rows(ds.X, train))
		yTrain := labels(ds.Y, train)

		var clf classifier
		switch t.cfg.ModelType {
		case TypeLogistic:
			clf, _, err = FitLogistic(ctx, xTrain, yTrain, t.cfg.classWeight(), t.cfg.Logistic)
		default:
			clf, _, err = FitForest(ctx, xTrain, yTrain, t.cfg.classWeight(), t.cfg.Seed, t.cfg.Forest)
		}
		if err != nil {
			return CVResult{}, err
		}

		xHeld := scaler.TransformAll(rows(ds.X, held))
		p := make([]float64, len(xHeld))
		for r, row := range xHeld {
			p[r] = clf.Proba(row)
		}
		auc, ok := ROCAUC(labels(ds.Y, held), p)
		if !ok {
			res.Undefined++
			continue
		}
		res.Scores = append(res.Scores, auc)
		t.log.WithFields(logrus.Fields{"fold": i + 1, "roc_auc": auc}).Info("Cross-validation fold")
	}

	if len(res.Scores) > 0 {
		for _, s := range res.Scores {
			res.Mean += s
		}
		res.Mean /= float64(len(res.Scores))
		for _, s := range res.Scores {
			res.Std += (s - res.Mean) * (s - res.Mean)
		}
		res.Std = math.Sqrt(res.Std / float64(len(res.Scores)))
	}
	t.log.WithFields(logrus.Fields{"mean_roc_auc": res.Mean, "std": res.Std, "folds": k}).Info("Cross-validation complete")
	return res, nil
}
