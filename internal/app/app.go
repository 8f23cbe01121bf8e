// Package app assembles the risk pipeline from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/config"
	"github.com/ukydev/cmms-risk/internal/db"
	"github.com/ukydev/cmms-risk/internal/db/postgres"
	"github.com/ukydev/cmms-risk/internal/features"
	"github.com/ukydev/cmms-risk/internal/model"
	"github.com/ukydev/cmms-risk/internal/pipeline"
	"github.com/ukydev/cmms-risk/internal/predictor"
	"github.com/ukydev/cmms-risk/internal/telemetry"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Metrics  *telemetry.Metrics
	Engineer *features.Engineer
	Trainer  *model.Trainer
	Pipeline *pipeline.Pipeline

	mongo   *mongo.Client
	closers []func()
}

// Open connects to the configured history datastore and wires the pipeline.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	var src features.Source
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		store, pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		src = store
		log.Info("Reading maintenance history from Postgres")
	default:
		client, err := a.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		src = db.NewStore(client.Database(cfg.MongoDB))
		log.WithField("database", cfg.MongoDB).Info("Reading maintenance history from MongoDB")
	}
	a.wire(src)
	return a, nil
}

// WithSource wires the pipeline over src without opening any connection.
func WithSource(cfg *config.Config, log logrus.FieldLogger, src features.Source) *App {
	a := &App{Config: cfg, Log: log}
	a.wire(src)
	return a
}

func (a *App) wire(src features.Source) {
	a.Metrics = telemetry.New()
	a.Engineer = features.NewEngineer(src,
		features.WithLogger(a.Log),
		features.WithMetrics(a.Metrics),
		features.WithWorkers(a.Config.Workers),
	)
	a.Trainer = model.NewTrainer(a.Config.TrainerConfig(),
		model.WithLogger(a.Log),
		model.WithMetrics(a.Metrics),
	)
	a.Pipeline = pipeline.New(a.Engineer, a.Trainer, a.Config.SamplerConfig(), a.Log)
}

// Predictor loads the configured model into a new predictor.
func (a *App) Predictor(opts ...predictor.Option) (*predictor.Predictor, error) {
	opts = append([]predictor.Option{predictor.WithLogger(a.Log), predictor.WithMetrics(a.Metrics)}, opts...)
	return predictor.New(a.Engineer, a.Config.ModelPath, opts...)
}

// Users returns the MongoDB user collection, connecting if needed.
func (a *App) Users(ctx context.Context) (*db.MongoUserCollection, error) {
	client, err := a.mongoClient(ctx)
	if err != nil {
		return nil, err
	}
	return &db.MongoUserCollection{Collection: client.Database(a.Config.MongoDB).Collection(db.UsersCollection)}, nil
}

func (a *App) mongoClient(ctx context.Context) (*mongo.Client, error) {
	if a.mongo != nil {
		return a.mongo, nil
	}
	client, err := db.ConnectMongo(ctx, a.Config.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.mongo = client
	a.closers = append(a.closers, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			a.Log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	})
	return client, nil
}

// Close releases every connection opened by the App.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
