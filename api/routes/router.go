package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dukalink-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/dukalink-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/dukalink-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/dukalink-backend/api/controllers/webhooks"
	"github.com/angelmondragon/dukalink-backend/api/middleware"
	"github.com/angelmondragon/dukalink-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/dukalink-backend/internal/checkout"
	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/metrics"
	"github.com/angelmondragon/dukalink-backend/pkg/redis"
)

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	middleware.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// PaymentServices groups the push payment read and resume surfaces.
type PaymentServices struct {
	Attempts     controllers.AttemptService
	Status       controllers.PaymentStatusService
	Reconciler   webhookcontrollers.MpesaReconciler
	Instructions controllers.InstructionService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	paymentServices PaymentServices,
	ordersSvc orders.Service,
	settlementsSvc controllers.SettlementService,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if reg, ok := gatherer.(prometheus.Registerer); ok {
		httpMetrics = metrics.NewHTTPMetrics(reg)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg, httpMetrics),
		middleware.Metrics(httpMetrics),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	statusPollPolicy := middleware.NewRateLimitPolicy("payment-status", time.Minute, cfg.Checkout.StatusPollRPM)
	idempotent := middleware.Idempotent(redisClient, cfg.Checkout.IdempotencyTTL, logg)
	critical := middleware.Idempotent(redisClient, middleware.CriticalIdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks/mpesa", func(r chi.Router) {
		r.Post("/callback", webhookcontrollers.MpesaCallback(paymentServices.Reconciler, logg))
		r.Post("/timeout", webhookcontrollers.MpesaTimeout(paymentServices.Reconciler, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(middleware.SessionOptions{Secure: cfg.App.IsProd()}, logg))
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(cartService, logg))
				r.Delete("/", cartcontrollers.CartClear(cartService, logg))
				r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
				r.Patch("/items/{productId}", cartcontrollers.CartSetQuantity(cartService, logg))
				r.Post("/items/{productId}/decrement", cartcontrollers.CartDecrement(cartService, logg))
				r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(cartService, logg))
			})

			r.With(critical).Post("/checkout", controllers.Checkout(checkoutService, logg))
			r.Route("/checkout/attempts/{token}", func(r chi.Router) {
				r.Get("/", controllers.CheckoutAttempt(paymentServices.Attempts, logg))
				r.Post("/dispatch", controllers.CheckoutDispatch(paymentServices.Attempts, logg))
				r.Get("/instructions", controllers.CheckoutInstructions(paymentServices.Instructions, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.With(middleware.RateLimit(statusPollPolicy, redisClient, logg)).
					Get("/status/{checkoutRequestId}", controllers.PaymentStatus(paymentServices.Status, logg))
				r.Get("/success/{orderId}", controllers.PaymentSuccess(paymentServices.Status, logg))
			})

			r.With(idempotent).Post("/orders/{orderId}/payment-confirmation", ordercontrollers.CustomerPaymentConfirmation(ordersSvc, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleAdmin))

			r.With(critical).Post("/orders/{orderId}/payment", ordercontrollers.VendorPayment(ordersSvc, logg))
			r.Get("/payments/pending", ordercontrollers.VendorPendingPayments(ordersSvc, logg))
			r.Get("/settlements", controllers.VendorSettlements(settlementsSvc, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

			r.Post("/settlements/{settlementId}/status", controllers.AdminSettlementStatus(settlementsSvc, logg))
		})
	})

	return r
}
