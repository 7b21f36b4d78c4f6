package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/internal/checkout/helpers"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

type cartSource interface {
	View(ctx context.Context, sessionKey string) (cart.Cart, error)
	Clear(ctx context.Context, sessionKey string) error
}

type dispatcher interface {
	DispatchNext(ctx context.Context, token string) (*payments.DispatchResult, error)
}

type pathHandler func(ctx context.Context, created *CreatedOrders) (*Result, error)

// Service executes checkout submissions.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Carts      cartSource
	Aggregator *Aggregator
	Factory    *Factory
	Payments   dispatcher
	Logger     *logger.Logger
}

type service struct {
	carts      cartSource
	aggregator *Aggregator
	factory    *Factory
	payments   dispatcher
	logg       *logger.Logger
	handlers   map[enums.SettlementPath]pathHandler
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart source required")
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("aggregator required")
	}
	if params.Factory == nil {
		return nil, fmt.Errorf("order factory required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		carts:      params.Carts,
		aggregator: params.Aggregator,
		factory:    params.Factory,
		payments:   params.Payments,
		logg:       params.Logger,
	}
	s.handlers = map[enums.SettlementPath]pathHandler{
		enums.SettlementPathPushPayment:    s.startPushPayment,
		enums.SettlementPathMerchantDirect: s.showInstructions,
		enums.SettlementPathCashOnDelivery: s.confirmCashOnDelivery,
	}
	return s, nil
}

// Execute splits the session cart into vendor orders, clears the cart once
// the orders are committed and hands over to the chosen settlement path.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if strings.TrimSpace(input.SessionKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session required")
	}
	details, err := helpers.ValidateCustomer(input.Name, input.Phone, input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	handler, ok := s.handlers[details.Path]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", details.Path)
	}
	ctx = s.logg.WithSessionKey(ctx, input.SessionKey)

	current, err := s.carts.View(ctx, input.SessionKey)
	if err != nil {
		return nil, err
	}
	groups, err := s.aggregator.Aggregate(ctx, current)
	if err != nil {
		return nil, err
	}

	created, err := s.factory.Create(ctx, groups, Customer{
		UserID:     input.UserID,
		SessionKey: input.SessionKey,
		Name:       details.Name,
		Phone:      details.Phone,
	}, details.Path)
	if err != nil {
		s.logg.Error(ctx, "checkout order creation failed", err)
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "checkout_attempt_id", created.Attempt.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"path":        details.Path,
		"order_count": len(created.Orders),
	}), "checkout orders created")

	if err := s.carts.Clear(ctx, input.SessionKey); err != nil {
		s.logg.Error(ctx, "failed to clear cart after checkout", err)
	}

	return handler(ctx, created)
}

func (s *service) startPushPayment(ctx context.Context, created *CreatedOrders) (*Result, error) {
	result := baseResult(created)
	dispatched, err := s.payments.DispatchNext(ctx, created.Attempt.Token)
	if err != nil {
		retryURL := "/checkout/attempts/" + created.Attempt.Token
		if appErr := pkgerrors.As(err); appErr != nil {
			details := map[string]any{}
			if existing, ok := appErr.Details().(map[string]any); ok {
				for k, v := range existing {
					details[k] = v
				}
			}
			details["checkout_token"] = created.Attempt.Token
			details["retry_url"] = retryURL
			appErr.WithDetails(details)
		}
		return nil, err
	}
	result.State = enums.CheckoutAttemptAwaitingCallback
	result.Payment = dispatched
	result.RedirectURL = "/payments/status/" + dispatched.CheckoutRequestID
	return result, nil
}

func (s *service) showInstructions(_ context.Context, created *CreatedOrders) (*Result, error) {
	result := baseResult(created)
	result.RedirectURL = "/checkout/attempts/" + created.Attempt.Token + "/instructions"
	return result, nil
}

func (s *service) confirmCashOnDelivery(_ context.Context, created *CreatedOrders) (*Result, error) {
	result := baseResult(created)
	result.RedirectURL = "/checkout/attempts/" + created.Attempt.Token
	return result, nil
}

func baseResult(created *CreatedOrders) *Result {
	return &Result{
		Token:      created.Attempt.Token,
		Path:       created.Attempt.Path,
		State:      created.Attempt.State,
		OrderIDs:   created.OrderIDs(),
		OrderCount: len(created.Orders),
		Total:      created.Total,
	}
}
