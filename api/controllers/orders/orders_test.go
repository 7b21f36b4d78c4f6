package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/api/middleware"
	orderssvc "github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

type stubOrderService struct {
	order   *models.Order
	pending []models.Order
	err     error

	calls  []string
	actor  orderssvc.Actor
	code   string
	reason string
	userID uuid.UUID
}

func (s *stubOrderService) CustomerConfirm(_ context.Context, actor orderssvc.Actor, _ uuid.UUID, code string) (*models.Order, error) {
	s.calls = append(s.calls, "customer_confirm")
	s.actor, s.code = actor, code
	return s.order, s.err
}

func (s *stubOrderService) VendorConfirm(_ context.Context, userID, _ uuid.UUID, code string) (*models.Order, error) {
	s.calls = append(s.calls, "vendor_confirm")
	s.userID, s.code = userID, code
	return s.order, s.err
}

func (s *stubOrderService) VendorReject(_ context.Context, userID, _ uuid.UUID, reason string) (*models.Order, error) {
	s.calls = append(s.calls, "vendor_reject")
	s.userID, s.reason = userID, reason
	return s.order, s.err
}

func (s *stubOrderService) VendorPendingPayments(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	s.calls = append(s.calls, "pending")
	s.userID = userID
	return s.pending, s.err
}

func (s *stubOrderService) Instructions(context.Context, string, string) (*orderssvc.InstructionsView, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func sampleOrder() *models.Order {
	code := "QK12AB34CD"
	return &models.Order{
		ID:              uuid.New(),
		VendorID:        uuid.New(),
		CustomerName:    "Otieno",
		CustomerPhone:   "254712345678",
		Total:           decimal.RequireFromString("420.00"),
		Status:          enums.OrderStatusPending,
		PaymentMethod:   enums.PaymentMethodMerchantDirect,
		TransactionCode: &code,
		Vendor:          &models.Business{Name: "Mama Mboga"},
	}
}

func orderRequest(method, target, body string, orderID uuid.UUID, ctx func(context.Context) context.Context) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID.String())
	c := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if ctx != nil {
		c = ctx(c)
	}
	return req.WithContext(c)
}

func asVendor(userID uuid.UUID) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return middleware.WithUserID(ctx, userID.String())
	}
}

func TestCustomerPaymentConfirmation(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	svc := &stubOrderService{order: order}
	req := orderRequest(http.MethodPost, "/api/v1/orders/x/payment-confirmation", `{"transaction_code":"qk12ab34cd"}`, order.ID, func(ctx context.Context) context.Context {
		return middleware.WithSessionKey(ctx, "sess-0123456789abcdef")
	})
	resp := httptest.NewRecorder()
	CustomerPaymentConfirmation(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.actor.SessionKey != "sess-0123456789abcdef" || svc.actor.UserID != nil {
		t.Fatalf("unexpected actor %+v", svc.actor)
	}
	if svc.code != "qk12ab34cd" {
		t.Fatalf("unexpected code %q", svc.code)
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.VendorName != "Mama Mboga" || envelope.Data.ID != order.ID {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}
}

func TestCustomerPaymentConfirmationRequiresCode(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{}
	req := orderRequest(http.MethodPost, "/api/v1/orders/x/payment-confirmation", `{}`, uuid.New(), func(ctx context.Context) context.Context {
		return middleware.WithSessionKey(ctx, "sess-0123456789abcdef")
	})
	resp := httptest.NewRecorder()
	CustomerPaymentConfirmation(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service must not be called")
	}
}

func TestVendorPaymentConfirm(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := sampleOrder()
	order.Paid = true
	svc := &stubOrderService{order: order}
	req := orderRequest(http.MethodPost, "/api/v1/vendor/orders/x/payment", `{"action":"confirm","transaction_code":"QK12AB34CD"}`, order.ID, asVendor(userID))
	resp := httptest.NewRecorder()
	VendorPayment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.calls) != 1 || svc.calls[0] != "vendor_confirm" || svc.userID != userID {
		t.Fatalf("unexpected calls %v", svc.calls)
	}
}

func TestVendorPaymentRejectSanitizesReason(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{order: sampleOrder()}
	req := orderRequest(http.MethodPost, "/api/v1/vendor/orders/x/payment", `{"action":"reject","reason":"  code   not\n found "}`, uuid.New(), asVendor(uuid.New()))
	resp := httptest.NewRecorder()
	VendorPayment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.calls[0] != "vendor_reject" || svc.reason != "code not found" {
		t.Fatalf("unexpected reject call %v %q", svc.calls, svc.reason)
	}
}

func TestVendorPaymentRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{}
	req := orderRequest(http.MethodPost, "/api/v1/vendor/orders/x/payment", `{"action":"refund"}`, uuid.New(), asVendor(uuid.New()))
	resp := httptest.NewRecorder()
	VendorPayment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVendorPaymentForbidden(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")}
	req := orderRequest(http.MethodPost, "/api/v1/vendor/orders/x/payment", `{"action":"confirm"}`, uuid.New(), asVendor(uuid.New()))
	resp := httptest.NewRecorder()
	VendorPayment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestVendorPendingPayments(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := &stubOrderService{pending: []models.Order{*sampleOrder(), *sampleOrder()}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendor/payments/pending", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()
	VendorPendingPayments(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data []orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 || svc.userID != userID {
		t.Fatalf("unexpected pending payments %d %s", len(envelope.Data), svc.userID)
	}
}

func TestVendorPendingPaymentsRequiresUser(t *testing.T) {
	t.Parallel()

	resp := httptest.NewRecorder()
	VendorPendingPayments(&stubOrderService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/vendor/payments/pending", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
