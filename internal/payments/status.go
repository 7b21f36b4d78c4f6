package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

const (
	statusSourceDatabase = "database"
	statusSourceGateway  = "gateway"
)

type outcomeReconciler interface {
	Reconcile(ctx context.Context, outcome mpesa.Outcome) (*ReconcileResult, error)
}

// StatusParams wires the status service.
type StatusParams struct {
	Orders     orders.Repository
	Intents    *Repository
	Gateway    Gateway
	Reconciler outcomeReconciler
	QueryAfter time.Duration
	Logger     *logger.Logger
}

// StatusService answers the UI poller and builds the success page.
type StatusService struct {
	orders     orders.Repository
	intents    *Repository
	gateway    Gateway
	reconciler outcomeReconciler
	queryAfter time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

func NewStatusService(params StatusParams) (*StatusService, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.QueryAfter < 0 {
		return nil, fmt.Errorf("query-after must not be negative")
	}
	return &StatusService{
		orders:     params.Orders,
		intents:    params.Intents,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		queryAfter: params.QueryAfter,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// Status reports the outcome of a push request. A request that has waited
// longer than QueryAfter without a callback is queried at the gateway and the
// answer reconciled.
func (s *StatusService) Status(ctx context.Context, checkoutRequestID string) (*StatusView, error) {
	id := strings.TrimSpace(checkoutRequestID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id required")
	}
	ctx = s.logg.WithCheckoutRequestID(ctx, id)

	intent, err := s.intents.FindByCheckoutRequestID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.gatewayStatus(ctx, id)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}

	if intent.Status == enums.PaymentIntentPending && s.now().Sub(intent.CreatedAt) >= s.queryAfter {
		if refreshed := s.refresh(ctx, intent); refreshed != nil {
			intent = refreshed
		}
	}
	return s.view(ctx, intent)
}

// Success summarizes a paid order for its session and lists what is left to pay.
func (s *StatusService) Success(ctx context.Context, sessionKey string, orderID uuid.UUID) (*SuccessView, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if sessionKey == "" || order.SessionKey != sessionKey {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid yet")
	}

	view := &SuccessView{
		OrderID:         order.ID,
		VendorName:      vendorName(order),
		Amount:          order.Total,
		PaymentMethod:   order.PaymentMethod,
		RemainingOrders: []AttemptOrderView{},
	}
	if order.TransactionCode != nil {
		view.Receipt = *order.TransactionCode
	}
	if order.CheckoutAttemptID != nil {
		attempt, err := s.orders.FindAttempt(ctx, *order.CheckoutAttemptID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout attempt")
		}
		if attempt != nil {
			view.AttemptToken = attempt.Token
		}
	}

	unpaid, err := s.orders.ListUnpaidBySession(ctx, sessionKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load remaining orders")
	}
	for i := range unpaid {
		if !unpaid[i].PaymentMethod.IsPush() {
			continue
		}
		view.RemainingOrders = append(view.RemainingOrders, orderView(&unpaid[i]))
	}
	view.HasMorePayments = len(view.RemainingOrders) > 0
	if view.HasMorePayments && view.AttemptToken != "" {
		view.ContinueURL = "/checkout/attempts/" + view.AttemptToken
	}
	return view, nil
}

// refresh queries the gateway and reconciles a terminal answer. Gateway
// failures are logged and the stored intent is kept.
func (s *StatusService) refresh(ctx context.Context, intent *models.PaymentIntent) *models.PaymentIntent {
	result, err := s.gateway.QueryStatus(ctx, intent.CheckoutRequestID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "status query fallback failed")
		return nil
	}
	if result.State == mpesa.StatePending {
		return nil
	}
	if _, err := s.reconciler.Reconcile(ctx, mpesa.Outcome{
		CheckoutRequestID: intent.CheckoutRequestID,
		ResultCode:        result.ResultCode,
		ResultDesc:        result.ResultDesc,
	}); err != nil {
		s.logg.Error(ctx, "failed to reconcile queried status", err)
		return nil
	}
	reloaded, err := s.intents.FindByCheckoutRequestID(ctx, intent.CheckoutRequestID)
	if err != nil {
		s.logg.Error(ctx, "failed to reload payment intent", err)
		return nil
	}
	return reloaded
}

func (s *StatusService) gatewayStatus(ctx context.Context, id string) (*StatusView, error) {
	result, err := s.gateway.QueryStatus(ctx, id)
	if err != nil {
		return nil, mpesa.AppError(err)
	}
	return &StatusView{
		CheckoutRequestID: id,
		Status:            intentStatus(result.State),
		ResultCode:        result.ResultCode,
		ResultDesc:        result.ResultDesc,
		Source:            statusSourceGateway,
	}, nil
}

func (s *StatusService) view(ctx context.Context, intent *models.PaymentIntent) (*StatusView, error) {
	amount := intent.Amount
	view := &StatusView{
		CheckoutRequestID: intent.CheckoutRequestID,
		Status:            intent.Status,
		ResultCode:        deref(intent.ResultCode),
		ResultDesc:        deref(intent.ResultDesc),
		Receipt:           deref(intent.MpesaReceiptNumber),
		Amount:            &amount,
		OrderID:           intent.OrderID,
		Source:            statusSourceDatabase,
	}

	if intent.OrderID != nil {
		order, err := s.orders.FindOrder(ctx, *intent.OrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order != nil {
			view.VendorName = vendorName(order)
			index := order.Sequence
			view.Index = &index
		}
		if intent.Status == enums.PaymentIntentCompleted {
			view.RedirectURL = "/payments/success/" + intent.OrderID.String()
		}
	}
	if intent.CheckoutAttemptID != nil {
		attempt, err := s.orders.FindAttempt(ctx, *intent.CheckoutAttemptID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout attempt")
		}
		if attempt != nil {
			count := attempt.OrderCount
			view.OrderCount = &count
			view.AttemptToken = attempt.Token
		}
	}
	return view, nil
}

func intentStatus(state mpesa.ResultState) enums.PaymentIntentStatus {
	switch state {
	case mpesa.StateCompleted:
		return enums.PaymentIntentCompleted
	case mpesa.StateCancelled:
		return enums.PaymentIntentCancelled
	case mpesa.StateFailed:
		return enums.PaymentIntentFailed
	default:
		return enums.PaymentIntentPending
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
