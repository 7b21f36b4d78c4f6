package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/instance"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/migrate"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/registry"
	"github.com/angelmondragon/dukalink-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
		"topic":       cfg.PubSub.DomainTopic,
	})

	// Every event type routes to the domain topic, so a bad registry is fatal
	// before any connection is opened.
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	reportDLQDepth(ctx, logg, dlqRepo)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"batchSize":   cfg.Outbox.BatchSize,
		"maxAttempts": cfg.Outbox.MaxAttempts,
	}), "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// reportDLQDepth warns about events parked by earlier runs so they are not
// forgotten. Lookup failures are only logged.
func reportDLQDepth(ctx context.Context, logg *logger.Logger, repo *outbox.DLQRepository) {
	depth, err := repo.Depth(ctx)
	if err != nil {
		logg.Error(ctx, "failed to read outbox dlq depth", err)
		return
	}
	if len(depth) == 0 {
		return
	}
	fields := make(map[string]any, len(depth))
	for reason, count := range depth {
		fields["dlq_"+string(reason)] = count
	}
	logg.Warn(logg.WithFields(ctx, fields), "outbox dlq holds parked events")
}
