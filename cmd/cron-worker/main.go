package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/internal/cron"
	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/internal/products"
	"github.com/angelmondragon/dukalink-backend/internal/settlements"
	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/instance"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/metrics"
	"github.com/angelmondragon/dukalink-backend/pkg/migrate"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := mpesa.NewClient(cfg.Mpesa, mpesa.WithMetrics(metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)))
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa client", err)
		os.Exit(1)
	}
	rate, err := cfg.Settlement.Rate()
	if err != nil {
		logg.Error(context.Background(), "invalid settlement commission rate", err)
		os.Exit(1)
	}

	productRepo := products.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	intentRepo := payments.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Checkout.CartTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}
	cartService, err := cart.NewService(cartStore, productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	settlementService, err := settlements.NewService(settlements.NewRepository(dbClient.DB()), productRepo, rate, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}
	orchestrator, err := payments.NewOrchestrator(payments.OrchestratorParams{
		Orders:  ordersRepo,
		Intents: intentRepo,
		Tx:      dbClient,
		Gateway: gateway,
		Outbox:  outboxSvc,
		Carts:   cartService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment orchestrator", err)
		os.Exit(1)
	}
	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:      ordersRepo,
		Intents:     intentRepo,
		Tx:          dbClient,
		Outbox:      outboxSvc,
		Settlements: settlementService,
		Advancer:    orchestrator,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconciler", err)
		os.Exit(1)
	}

	paymentTimeoutJob, err := cron.NewPaymentTimeoutJob(cron.PaymentTimeoutJobParams{
		Logger:      logg,
		Intents:     intentRepo,
		Gateway:     gateway,
		Reconciler:  reconciler,
		QueryAfter:  cfg.Checkout.QueryAfter,
		ExpireAfter: cfg.Checkout.ExpireAfter,
		BatchSize:   cfg.Cron.Batch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment timeout job", err)
		os.Exit(1)
	}

	attemptExpiryJob, err := cron.NewAttemptExpiryJob(cron.AttemptExpiryJobParams{
		Logger:          logg,
		Attempts:        ordersRepo,
		TTL:             cfg.Checkout.AttemptTTL,
		DispatchTimeout: cfg.Checkout.DispatchTimeout,
		BatchSize:       cfg.Cron.Batch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create attempt expiry job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Cron.Batch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(paymentTimeoutJob, attemptExpiryJob, outboxRetentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
