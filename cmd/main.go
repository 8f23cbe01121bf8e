package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/app"
	"github.com/ukydev/cmms-risk/internal/auth"
	"github.com/ukydev/cmms-risk/internal/config"
	"github.com/ukydev/cmms-risk/internal/handlers"
	"github.com/ukydev/cmms-risk/internal/middleware"
	"github.com/ukydev/cmms-risk/internal/models"
)

func newRouter(authHandler *handlers.AuthHandler, risk *handlers.RiskHandler, am *middleware.AuthMiddleware, rl *middleware.RateLimitMiddleware) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("POST /api/login", rl.RateLimit(10, time.Minute)(http.HandlerFunc(authHandler.Login)))

	mux.Handle("GET /api/predictions", am.Protect(models.ActionViewPredictions, risk.Predictions))
	mux.Handle("GET /api/predictions/high-risk", am.Protect(models.ActionViewPredictions, risk.HighRisk))
	mux.Handle("GET /api/predictions/{equipment_no}", am.Protect(models.ActionViewPredictions, risk.Prediction))
	mux.Handle("GET /api/report", am.Protect(models.ActionViewReports, risk.Report))
	mux.Handle("GET /api/model", am.Protect(models.ActionViewModel, risk.Model))
	mux.Handle("POST /api/model/train", am.Protect(models.ActionTrainModel, risk.Train))
	mux.Handle("GET /api/metrics", am.Protect(models.ActionViewMetrics, risk.Metrics))
	return mux
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	logger := log.StandardLogger()
	if err := cfg.ConfigureLogger(logger); err != nil {
		log.WithError(err).Fatal("Invalid log settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to open datastore")
	}
	defer a.Close()

	users, err := a.Users(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	pred, err := a.Predictor()
	if err != nil {
		log.WithError(err).Fatal("Failed to load model")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			log.WithError(err).Fatal("Failed to generate JWT secret")
		}
		log.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}
	authService, err := auth.NewService(secret, cfg.JWTExpiry)
	if err != nil {
		log.WithError(err).Fatal("Failed to create auth service")
	}

	risk := handlers.NewRiskHandler(pred, a.Pipeline, a.Metrics, handlers.RiskConfig{
		ModelPath:         cfg.ModelPath,
		HighRiskThreshold: cfg.HighRiskThreshold,
		ReportTopN:        cfg.ReportTopN,
	}, logger)
	mux := newRouter(
		handlers.NewAuthHandler(authService, users, logger),
		risk,
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimitMiddleware(),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Logging(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	log.WithField("port", cfg.Port).Info("HTTP server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("HTTP server failed")
	}
	log.Info("HTTP server stopped")
}
