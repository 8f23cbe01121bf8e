package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/model"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, c.StoreDriver)
	assert.Equal(t, "cmms", c.MongoDB)
	assert.Equal(t, "models/failure_prediction_model.json.gz", c.ModelPath)
	assert.Equal(t, 12, c.LookbackMonths)
	assert.Equal(t, 30, c.PredictionWindowDays)
	assert.Equal(t, 7, c.SnapshotIntervalDays)
	assert.Equal(t, 0.3, c.DefaultThreshold)
	assert.Equal(t, 24*time.Hour, c.JWTExpiry)
	assert.False(t, c.AlertsEnabled())

	tc := c.TrainerConfig()
	assert.Equal(t, model.DefaultTrainerConfig(), tc)

	sc := c.SamplerConfig()
	assert.Equal(t, 7, sc.IntervalDays)
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := FromEnv(envOf(map[string]string{
		"STORE_DRIVER":          "postgres",
		"POSTGRES_URL":          "postgres://cmms@localhost/cmms",
		"POSITIVE_CLASS_WEIGHT": "25",
		"THRESHOLD_STEP":        "0.1",
		"MODEL_TYPE":            "logistic",
		"RANDOM_SEED":           "7",
		"JWT_EXPIRY":            "2h",
		"MQTT_BROKER":           "tcp://broker:1883",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, c.StoreDriver)
	assert.True(t, c.AlertsEnabled())
	assert.Equal(t, "cmms/risk/{equipment_no}", c.MQTT().Topic)
	assert.Equal(t, 2*time.Hour, c.JWTExpiry)

	tc := c.TrainerConfig()
	assert.Equal(t, 25.0, tc.PositiveWeight)
	assert.Equal(t, 0.1, tc.Grid.Step)
	assert.Equal(t, model.TypeLogistic, tc.ModelType)
	assert.Equal(t, int64(7), tc.Seed)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unparseable int", map[string]string{"LOOKBACK_MONTHS": "a year"}},
		{"unparseable float", map[string]string{"TEST_SIZE": "twenty"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"threshold grid inverted", map[string]string{"THRESHOLD_MIN": "0.9", "THRESHOLD_MAX": "0.2"}},
		{"splits too large", map[string]string{"TEST_SIZE": "0.6", "VAL_SIZE": "0.5"}},
		{"unknown metric", map[string]string{"OPTIMIZE_METRIC": "accuracy"}},
		{"zero interval", map[string]string{"SNAPSHOT_INTERVAL_DAYS": "0"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envOf(tt.env))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	c, err := FromEnv(envOf(map[string]string{"LOG_LEVEL": "debug", "LOG_FORMAT": "json"}))
	require.NoError(t, err)

	l := logrus.New()
	require.NoError(t, c.ConfigureLogger(l))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}
