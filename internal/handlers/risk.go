package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/model"
	"github.com/ukydev/cmms-risk/internal/predictor"
	"github.com/ukydev/cmms-risk/internal/report"
	"github.com/ukydev/cmms-risk/internal/telemetry"
)

// Scorer serves risk predictions.
type Scorer interface {
	PredictAll(ctx context.Context) (predictor.Batch, error)
	PredictOne(ctx context.Context, equipmentNo string) (predictor.Lookup, error)
	HighRisk(ctx context.Context, threshold float64) ([]predictor.Result, error)
	Model() (predictor.ModelInfo, error)
	Use(a *model.Artifact)
}

// ModelTrainer retrains and persists the model.
type ModelTrainer interface {
	TrainAndSave(ctx context.Context, now time.Time, path string) (*model.Artifact, error)
}

// RiskConfig holds the handler settings.
type RiskConfig struct {
	ModelPath         string
	HighRiskThreshold float64
	ReportTopN        int
}

// RiskHandler serves the prediction, report, model and metrics endpoints.
type RiskHandler struct {
	scorer  Scorer
	trainer ModelTrainer
	metrics *telemetry.Metrics
	cfg     RiskConfig
	log     logrus.FieldLogger
	now     func() time.Time

	training sync.Mutex
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(scorer Scorer, trainer ModelTrainer, metrics *telemetry.Metrics, cfg RiskConfig, log logrus.FieldLogger) *RiskHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RiskHandler{
		scorer:  scorer,
		trainer: trainer,
		metrics: metrics,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

type predictionsResponse struct {
	predictor.Batch
	Summary report.Summary `json:"summary"`
}

// Predictions scores all eligible equipment. Optional query parameters:
// risk_level (repeatable or comma separated), search, and format=table.
func (h *RiskHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	batch, err := h.scorer.PredictAll(r.Context())
	if err != nil {
		h.predictionError(w, err)
		return
	}

	q := r.URL.Query()
	var buckets []predictor.Bucket
	for _, v := range q["risk_level"] {
		for _, name := range strings.Split(v, ",") {
			b, ok := parseBucket(name)
			if !ok {
				http.Error(w, "Unknown risk_level "+strconv.Quote(name), http.StatusBadRequest)
				return
			}
			buckets = append(buckets, b)
		}
	}
	filters := []report.Filter{report.BucketFilter(buckets...), report.SearchFilter(q.Get("search"))}

	if q.Get("format") == "table" {
		writeJSON(w, http.StatusOK, report.BuildTable(batch.Results, filters...))
		return
	}
	summary := report.Summarize(batch.Results)
	batch.Results = report.Select(batch.Results, filters...)
	writeJSON(w, http.StatusOK, predictionsResponse{Batch: batch, Summary: summary})
}

// HighRisk returns equipment at or above the threshold query parameter, or
// the configured default.
func (h *RiskHandler) HighRisk(w http.ResponseWriter, r *http.Request) {
	threshold := h.cfg.HighRiskThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			http.Error(w, "threshold must be a number between 0 and 1", http.StatusBadRequest)
			return
		}
		threshold = t
	}
	results, err := h.scorer.HighRisk(r.Context(), threshold)
	if err != nil {
		h.predictionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": threshold,
		"count":     len(results),
		"results":   results,
	})
}

// Prediction returns the risk of the equipment named in the path.
func (h *RiskHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	no := r.PathValue("equipment_no")
	lookup, err := h.scorer.PredictOne(r.Context(), no)
	if err != nil {
		h.predictionError(w, err)
		return
	}
	if !lookup.Found {
		writeJSON(w, http.StatusNotFound, lookup)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

// Report renders the plain-text risk report.
func (h *RiskHandler) Report(w http.ResponseWriter, r *http.Request) {
	batch, err := h.scorer.PredictAll(r.Context())
	if err != nil {
		h.predictionError(w, err)
		return
	}
	text := report.Generate(batch, report.Options{TopN: h.cfg.ReportTopN, Now: h.now()})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// Model describes the loaded model.
func (h *RiskHandler) Model(w http.ResponseWriter, r *http.Request) {
	info, err := h.scorer.Model()
	if errors.Is(err, predictor.ErrNoModel) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Train retrains the model, saves it and swaps it into the scorer. Only one
// training run proceeds at a time.
func (h *RiskHandler) Train(w http.ResponseWriter, r *http.Request) {
	if !h.training.TryLock() {
		http.Error(w, "Training already in progress", http.StatusConflict)
		return
	}
	defer h.training.Unlock()

	// Training runs to completion even if the client goes away.
	a, err := h.trainer.TrainAndSave(context.WithoutCancel(r.Context()), h.now(), h.cfg.ModelPath)
	if errors.Is(err, model.ErrNoPositiveSamples) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Training failed")
		http.Error(w, "Training failed", http.StatusInternalServerError)
		return
	}
	h.scorer.Use(a)
	h.log.WithFields(logrus.Fields{"model_id": a.ID, "threshold": a.Threshold}).Info("Model retrained")

	info, err := h.scorer.Model()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Metrics dumps the pipeline counters and timers.
func (h *RiskHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *RiskHandler) predictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, predictor.ErrNoModel):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.WithError(err).Error("Prediction failed")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
	}
}

func parseBucket(s string) (predictor.Bucket, bool) {
	for _, b := range predictor.Buckets {
		if strings.EqualFold(strings.TrimSpace(s), string(b)) {
			return b, true
		}
	}
	return "", false
}
