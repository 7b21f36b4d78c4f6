package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	product "github.com/angelmondragon/dukalink-backend/internal/products"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/payloads"
)

const testSession = "sess-checkout-0001"

type memoryCarts struct {
	carts   map[string]cart.Cart
	cleared []string
}

func (m *memoryCarts) View(_ context.Context, sessionKey string) (cart.Cart, error) {
	return m.carts[sessionKey], nil
}

func (m *memoryCarts) Clear(_ context.Context, sessionKey string) error {
	delete(m.carts, sessionKey)
	m.cleared = append(m.cleared, sessionKey)
	return nil
}

type stubDispatcher struct {
	tokens []string
	err    error
}

func (d *stubDispatcher) DispatchNext(_ context.Context, token string) (*payments.DispatchResult, error) {
	d.tokens = append(d.tokens, token)
	if d.err != nil {
		return nil, d.err
	}
	return &payments.DispatchResult{Token: token, CheckoutRequestID: "ws_CO_1"}, nil
}

type failingRepo struct {
	orders.Repository
	failOn int
	calls  *int
}

func (r failingRepo) WithTx(tx *gorm.DB) orders.Repository {
	return failingRepo{Repository: r.Repository.WithTx(tx), failOn: r.failOn, calls: r.calls}
}

func (r failingRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	*r.calls++
	if *r.calls == r.failOn {
		return errors.New("insert failed")
	}
	return r.Repository.CreateOrder(ctx, order)
}

type fixture struct {
	conn       *gorm.DB
	carts      *memoryCarts
	dispatcher *stubDispatcher
	svc        Service
}

func newFixture(t *testing.T, repo orders.Repository) *fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.Open(t), repo)
}

func newFixtureOn(t *testing.T, conn *gorm.DB, repo orders.Repository) *fixture {
	t.Helper()
	if repo == nil {
		repo = orders.NewRepository(conn)
	}
	aggregator, err := NewAggregator(product.NewRepository(conn), logger.Nop())
	require.NoError(t, err)
	factory, err := NewFactory(repo, db.FromConn(conn), outbox.NewService(outbox.NewRepository(conn), logger.Nop()))
	require.NoError(t, err)

	carts := &memoryCarts{carts: map[string]cart.Cart{}}
	dispatcher := &stubDispatcher{}
	svc, err := NewService(ServiceParams{
		Carts:      carts,
		Aggregator: aggregator,
		Factory:    factory,
		Payments:   dispatcher,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)
	return &fixture{conn: conn, carts: carts, dispatcher: dispatcher, svc: svc}
}

func (f *fixture) addLine(t *testing.T, p models.Product, quantity int) {
	t.Helper()
	current := f.carts.carts[testSession]
	next, err := current.Add(cart.Line{
		ProductID: p.ID,
		Name:      p.Name,
		VendorID:  p.BusinessID,
		UnitPrice: p.Price,
		Quantity:  quantity,
	})
	require.NoError(t, err)
	f.carts.carts[testSession] = next
}

func (f *fixture) orders(t *testing.T) []models.Order {
	t.Helper()
	var rows []models.Order
	require.NoError(t, f.conn.Preload("Items").Order("sequence ASC").Find(&rows).Error)
	return rows
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func input(method string) Input {
	return Input{SessionKey: testSession, Name: "Wanjiku", Phone: "0712345678", PaymentMethod: method}
}

// seedTwoVendors builds the classic A/B cart: vendor A qty 2 @ 100, vendor B qty 1 @ 500.
func seedTwoVendors(t *testing.T, f *fixture) (models.Business, models.Business) {
	t.Helper()
	vendorA := product.SeedBusiness(t, f.conn, uuid.New(), "Mama Mboga", "0722000001")
	vendorB := product.SeedBusiness(t, f.conn, uuid.New(), "Duka la Juma", "0722000002")
	f.addLine(t, product.SeedProduct(t, f.conn, vendorA.ID, "Sukuma", "100.00"), 2)
	f.addLine(t, product.SeedProduct(t, f.conn, vendorB.ID, "Unga", "500.00"), 1)
	return vendorA, vendorB
}

func TestExecuteSplitsCartIntoVendorOrders(t *testing.T) {
	f := newFixture(t, nil)
	vendorA, vendorB := seedTwoVendors(t, f)

	res, err := f.svc.Execute(context.Background(), input("push_payment"))
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementPathPushPayment, res.Path)
	assert.Equal(t, 2, res.OrderCount)
	assert.Equal(t, "700.00", res.Total.StringFixed(2))
	assert.Equal(t, "/payments/status/ws_CO_1", res.RedirectURL)
	assert.Equal(t, []string{res.Token}, f.dispatcher.tokens)
	assert.Equal(t, []string{testSession}, f.carts.cleared)

	rows := f.orders(t)
	require.Len(t, rows, 2)
	assert.Equal(t, vendorA.ID, rows[0].VendorID)
	assert.Equal(t, "200.00", rows[0].Total.StringFixed(2))
	assert.Equal(t, vendorB.ID, rows[1].VendorID)
	assert.Equal(t, "500.00", rows[1].Total.StringFixed(2))
	for _, order := range rows {
		sum := decimal.Zero
		for _, item := range order.Items {
			sum = sum.Add(item.LineTotal())
			assert.Equal(t, order.VendorID, item.VendorID)
		}
		assert.True(t, sum.Equal(order.Total), "order total must equal its items")
		assert.Equal(t, enums.PaymentMethodPushPending, order.PaymentMethod)
		assert.Equal(t, "254712345678", order.CustomerPhone)
		assert.Len(t, order.PaymentReference, 12)
		assert.False(t, order.Paid)
	}

	var attempt models.CheckoutAttempt
	require.NoError(t, f.conn.First(&attempt, "token = ?", res.Token).Error)
	assert.Equal(t, 2, attempt.OrderCount)
	assert.Equal(t, enums.CheckoutAttemptCreated, attempt.State)
	assert.Len(t, attempt.Token, 32)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestExecuteRecordsItemCountsOnCreatedEvents(t *testing.T) {
	f := newFixture(t, nil)
	seedTwoVendors(t, f)

	res, err := f.svc.Execute(context.Background(), input("push_payment"))
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)

	units := map[string]int{}
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		switch row.EventType {
		case enums.EventOrderCreated:
			var data payloads.OrderCreatedEvent
			require.NoError(t, json.Unmarshal(envelope.Data, &data))
			units[data.Total.StringFixed(2)] = data.ItemCount
		case enums.EventCheckoutCreated:
			var data payloads.CheckoutCreatedEvent
			require.NoError(t, json.Unmarshal(envelope.Data, &data))
			assert.Equal(t, 3, data.ItemCount)
			assert.True(t, data.Total.Equal(res.Total))
		}
	}
	assert.Equal(t, map[string]int{"200.00": 2, "500.00": 1}, units)
}

func TestExecuteUsesCartPriceSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	vendor := product.SeedBusiness(t, f.conn, uuid.New(), "Mama Mboga", "")
	p := product.SeedProduct(t, f.conn, vendor.ID, "Sukuma", "100.00")
	f.addLine(t, p, 3)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", decimal.RequireFromString("150.00")).Error)

	_, err := f.svc.Execute(context.Background(), input("merchant_direct"))
	require.NoError(t, err)

	rows := f.orders(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "300.00", rows[0].Total.StringFixed(2))
}

func TestFactoryRollsBackEveryOrderOnFailure(t *testing.T) {
	calls := 0
	conn := dbtest.Open(t)
	f := newFixtureOn(t, conn, failingRepo{Repository: orders.NewRepository(conn), failOn: 2, calls: &calls})
	seedTwoVendors(t, f)
	vendorC := product.SeedBusiness(t, f.conn, uuid.New(), "Third", "")
	f.addLine(t, product.SeedProduct(t, f.conn, vendorC.ID, "Chai", "50.00"), 1)

	_, err := f.svc.Execute(context.Background(), input("push_payment"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.count(t, &models.CheckoutAttempt{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.Empty(t, f.carts.cleared)
	assert.False(t, f.carts.carts[testSession].IsEmpty())
	assert.Empty(t, f.dispatcher.tokens)
}

func TestExecuteRejectsEmptyCarts(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Execute(context.Background(), input("push_payment"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	vendor := product.SeedBusiness(t, f.conn, uuid.New(), "Closed", "")
	gone := product.SeedProduct(t, f.conn, vendor.ID, "Retired", "10.00")
	f.addLine(t, gone, 1)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", gone.ID).Update("active", false).Error)
	f.addLine(t, models.Product{ID: uuid.New(), BusinessID: vendor.ID, Name: "Deleted", Price: decimal.NewFromInt(5)}, 1)

	_, err = f.svc.Execute(context.Background(), input("push_payment"))
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.count(t, &models.Order{}))
}

func TestExecuteDropsUnavailableLines(t *testing.T) {
	f := newFixture(t, nil)
	vendor := product.SeedBusiness(t, f.conn, uuid.New(), "Open", "")
	f.addLine(t, product.SeedProduct(t, f.conn, vendor.ID, "Maziwa", "60.00"), 2)
	f.addLine(t, models.Product{ID: uuid.New(), BusinessID: vendor.ID, Name: "Deleted", Price: decimal.NewFromInt(5)}, 1)

	res, err := f.svc.Execute(context.Background(), input("cash_on_delivery"))
	require.NoError(t, err)
	assert.Equal(t, "120.00", res.Total.StringFixed(2))
	require.Len(t, f.orders(t), 1)
}

func TestExecuteValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	seedTwoVendors(t, f)

	bad := input("push_payment")
	bad.Phone = "12345"
	_, err := f.svc.Execute(context.Background(), bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Execute(context.Background(), input("paypal"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Empty(t, f.carts.cleared)
}

func TestExecuteManualPaths(t *testing.T) {
	t.Run("merchant direct", func(t *testing.T) {
		f := newFixture(t, nil)
		seedTwoVendors(t, f)

		res, err := f.svc.Execute(context.Background(), input("merchant_direct"))
		require.NoError(t, err)
		assert.Equal(t, "/checkout/attempts/"+res.Token+"/instructions", res.RedirectURL)
		assert.Equal(t, enums.CheckoutAttemptDone, res.State)
		assert.Empty(t, f.dispatcher.tokens)
		for _, order := range f.orders(t) {
			assert.Equal(t, enums.PaymentMethodMerchantDirect, order.PaymentMethod)
			assert.Equal(t, enums.OrderStatusPending, order.Status)
			assert.Contains(t, order.PaymentReference, "ORDER")
		}
	})

	t.Run("cash on delivery", func(t *testing.T) {
		f := newFixture(t, nil)
		seedTwoVendors(t, f)

		res, err := f.svc.Execute(context.Background(), input("cash_on_delivery"))
		require.NoError(t, err)
		assert.Equal(t, "/checkout/attempts/"+res.Token, res.RedirectURL)
		for _, order := range f.orders(t) {
			assert.Equal(t, enums.OrderStatusProcessing, order.Status)
			assert.False(t, order.Paid)
		}
	})
}

func TestExecuteKeepsOrdersWhenPushFails(t *testing.T) {
	f := newFixture(t, nil)
	seedTwoVendors(t, f)
	f.dispatcher.err = pkgerrors.New(pkgerrors.CodeDependency, "payment request failed, please try again")

	_, err := f.svc.Execute(context.Background(), input("push_payment"))
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	token, _ := details["checkout_token"].(string)
	assert.NotEmpty(t, token)
	assert.Equal(t, "/checkout/attempts/"+token, details["retry_url"])

	assert.EqualValues(t, 2, f.count(t, &models.Order{}))
	assert.Equal(t, []string{testSession}, f.carts.cleared)
}
