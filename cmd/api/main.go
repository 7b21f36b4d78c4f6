package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/dukalink-backend/api/routes"
	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/internal/checkout"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gateway, err := mpesa.NewClient(cfg.Mpesa, mpesa.WithMetrics(metrics.NewGatewayMetrics(registry)))
	if err != nil {
		logg.Error(ctx, "failed to create mpesa client", err)
		os.Exit(1)
	}

	rate, err := cfg.Settlement.Rate()
	if err != nil {
		logg.Error(ctx, "invalid settlement commission rate", err)
		os.Exit(1)
	}

	productRepo := products.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	intentRepo := payments.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Checkout.CartTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cart store", err)
		os.Exit(1)
	}
	cartService, err := cart.NewService(cartStore, productRepo)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	settlementService, err := settlements.NewService(settlements.NewRepository(dbClient.DB()), productRepo, rate, logg)
	if err != nil {
		logg.Error(ctx, "failed to create settlement service", err)
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
		logg.Error(ctx, "failed to create payment orchestrator", err)
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
		logg.Error(ctx, "failed to create payment reconciler", err)
		os.Exit(1)
	}

	statusService, err := payments.NewStatusService(payments.StatusParams{
		Orders:     ordersRepo,
		Intents:    intentRepo,
		Gateway:    gateway,
		Reconciler: reconciler,
		QueryAfter: cfg.Checkout.QueryAfter,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment status service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository:  ordersRepo,
		Tx:          dbClient,
		Outbox:      outboxSvc,
		Businesses:  productRepo,
		Settlements: settlementService,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	aggregator, err := checkout.NewAggregator(productRepo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cart aggregator", err)
		os.Exit(1)
	}
	factory, err := checkout.NewFactory(ordersRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(ctx, "failed to create order factory", err)
		os.Exit(1)
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:      cartService,
		Aggregator: aggregator,
		Factory:    factory,
		Payments:   orchestrator,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			cartService,
			checkoutService,
			routes.PaymentServices{
				Attempts:     orchestrator,
				Status:       statusService,
				Reconciler:   reconciler,
				Instructions: ordersService,
			},
			ordersService,
			settlementService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
	}
}
