package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/internal/orders"
	product "github.com/angelmondragon/dukalink-backend/internal/products"
	"github.com/angelmondragon/dukalink-backend/internal/settlements"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
)

type stubGateway struct {
	mu       sync.Mutex
	pushes   []mpesa.STKPushRequest
	queries  []string
	pushErr  error
	queryErr error
	query    *mpesa.QueryResult
	// answered runs once the gateway has decided, before Initiate returns.
	answered func()
}

func (g *stubGateway) Initiate(_ context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answered != nil {
		defer g.answered()
	}
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	g.pushes = append(g.pushes, req)
	n := len(g.pushes)
	return &mpesa.STKPushResponse{
		MerchantRequestID: fmt.Sprintf("mr-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
		Phone:             req.Phone,
		Amount:            mpesa.GatewayAmount(req.Amount),
	}, nil
}

func (g *stubGateway) QueryStatus(_ context.Context, id string) (*mpesa.QueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, id)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if g.query != nil {
		out := *g.query
		out.CheckoutRequestID = id
		return &out, nil
	}
	return &mpesa.QueryResult{CheckoutRequestID: id, ResultCode: mpesa.ResultCodePending, State: mpesa.StatePending}, nil
}

func (g *stubGateway) pushCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushes)
}

type recordingCarts struct {
	mu      sync.Mutex
	cleared []string
}

func (c *recordingCarts) Clear(_ context.Context, sessionKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, sessionKey)
	return nil
}

type fixture struct {
	conn         *gorm.DB
	gateway      *stubGateway
	carts        *recordingCarts
	orchestrator *Orchestrator
	reconciler   *Reconciler
	status       *StatusService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	catalog := product.NewRepository(conn)
	settle, err := settlements.NewService(settlements.NewRepository(conn), catalog, decimal.RequireFromString("0.05"), logger.Nop())
	require.NoError(t, err)

	orderRepo := orders.NewRepository(conn)
	intents := NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	gateway := &stubGateway{}
	carts := &recordingCarts{}

	orchestrator, err := NewOrchestrator(OrchestratorParams{
		Orders:  orderRepo,
		Intents: intents,
		Tx:      db.FromConn(conn),
		Gateway: gateway,
		Outbox:  events,
		Carts:   carts,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	reconciler, err := NewReconciler(ReconcilerParams{
		Orders:      orderRepo,
		Intents:     intents,
		Tx:          db.FromConn(conn),
		Outbox:      events,
		Settlements: settle,
		Advancer:    orchestrator,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	status, err := NewStatusService(StatusParams{
		Orders:     orderRepo,
		Intents:    intents,
		Gateway:    gateway,
		Reconciler: reconciler,
		QueryAfter: 0,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	return &fixture{
		conn:         conn,
		gateway:      gateway,
		carts:        carts,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		status:       status,
	}
}

// seedAttempt creates a push-payment attempt with one order per total, in order.
func (f *fixture) seedAttempt(t *testing.T, totals ...string) (models.CheckoutAttempt, []models.Order) {
	t.Helper()
	attempt := models.CheckoutAttempt{
		Token:        "tok-" + uuid.NewString(),
		SessionKey:   "sess-" + uuid.NewString()[:8],
		CustomerName: "Wanjiku",
		Phone:        "254712345678",
		Path:         enums.SettlementPathPushPayment,
		OrderCount:   len(totals),
		State:        enums.CheckoutAttemptCreated,
	}
	require.NoError(t, f.conn.Create(&attempt).Error)

	created := make([]models.Order, 0, len(totals))
	for i, total := range totals {
		vendor := product.SeedBusiness(t, f.conn, uuid.New(), fmt.Sprintf("Vendor %c", 'A'+i), "")
		order := models.Order{
			CheckoutAttemptID: &attempt.ID,
			Sequence:          i,
			VendorID:          vendor.ID,
			CustomerName:      attempt.CustomerName,
			CustomerPhone:     attempt.Phone,
			SessionKey:        attempt.SessionKey,
			Total:             decimal.RequireFromString(total),
			Status:            enums.OrderStatusPending,
			PaymentMethod:     enums.PaymentMethodPushPending,
			PaymentReference:  fmt.Sprintf("V%dO%d", i, i),
		}
		require.NoError(t, f.conn.Omit("Items", "Vendor").Create(&order).Error)
		created = append(created, order)
	}
	return attempt, created
}

func (f *fixture) attempt(t *testing.T, id uuid.UUID) models.CheckoutAttempt {
	t.Helper()
	var attempt models.CheckoutAttempt
	require.NoError(t, f.conn.First(&attempt, "id = ?", id).Error)
	return attempt
}

func (f *fixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) intent(t *testing.T, checkoutRequestID string) models.PaymentIntent {
	t.Helper()
	var intent models.PaymentIntent
	require.NoError(t, f.conn.First(&intent, "checkout_request_id = ?", checkoutRequestID).Error)
	return intent
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func success(checkoutRequestID, receipt string) mpesa.Outcome {
	return mpesa.Outcome{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        mpesa.ResultCodeSuccess,
		ResultDesc:        "The service request is processed successfully.",
		Receipt:           receipt,
		TransactionDate:   "20261018101500",
	}
}
