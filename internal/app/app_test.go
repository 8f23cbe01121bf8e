package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/config"
	"github.com/ukydev/cmms-risk/internal/db/memstore"
	"github.com/ukydev/cmms-risk/internal/model"
	"github.com/ukydev/cmms-risk/internal/predictor"
	"github.com/ukydev/cmms-risk/internal/synth"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(k string) string {
		return map[string]string{
			"MODEL_PATH":           filepath.Join(t.TempDir(), "model.json.gz"),
			"LOOKBACK_MONTHS":      "6",
			"MODEL_TYPE":           "logistic",
			"MIN_POSITIVE_SAMPLES": "5",
		}[k]
	})
	require.NoError(t, err)
	return cfg
}

func TestWithSource_TrainThenPredict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	s := memstore.New()
	require.NoError(t, synth.Load(ctx, s, synth.Generate(synth.Options{Equipment: 25, Days: 260, Now: now, Seed: 5})))

	l, _ := test.NewNullLogger()
	cfg := testConfig(t)
	a := WithSource(cfg, l, s)
	defer a.Close()

	p, err := a.Predictor(predictor.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = p.Model()
	assert.ErrorIs(t, err, predictor.ErrNoModel)

	art, err := a.Pipeline.TrainAndSave(ctx, now, cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, model.TypeLogistic, art.ModelType)
	assert.Equal(t, int64(1), a.Metrics.TrainingRuns.Count())

	require.NoError(t, p.Load(cfg.ModelPath))
	batch, err := p.PredictAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.Results)
	assert.Equal(t, int64(len(batch.Results)), a.Metrics.PredictionsServed.Count())
}

func TestClose_RunsClosersInReverse(t *testing.T) {
	var order []int
	a := &App{closers: []func(){func() { order = append(order, 1) }, func() { order = append(order, 2) }}}
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
