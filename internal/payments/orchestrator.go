package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/payloads"
)

const maxLastErrorLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway is the push-payment provider.
type Gateway interface {
	Initiate(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type cartClearer interface {
	Clear(ctx context.Context, sessionKey string) error
}

// OrchestratorParams wires the orchestrator.
type OrchestratorParams struct {
	Orders  orders.Repository
	Intents *Repository
	Tx      txRunner
	Gateway Gateway
	Outbox  outboxPublisher
	Carts   cartClearer
	Logger  *logger.Logger
}

// Orchestrator walks the orders of a push-payment checkout one vendor at a
// time. The CheckoutAttempt row is the only state it keeps.
type Orchestrator struct {
	orders  orders.Repository
	intents *Repository
	tx      txRunner
	gateway Gateway
	outbox  outboxPublisher
	carts   cartClearer
	logg    *logger.Logger
}

// NewOrchestrator validates params and builds an Orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Orchestrator{
		orders:  params.Orders,
		intents: params.Intents,
		tx:      params.Tx,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		carts:   params.Carts,
		logg:    params.Logger,
	}, nil
}

// DispatchNext sends the push prompt for the current order of the attempt.
// Paid orders are skipped; an order that already has an open intent returns
// that intent instead of pushing again.
func (o *Orchestrator) DispatchNext(ctx context.Context, token string) (*DispatchResult, error) {
	attempt, err := o.loadAttempt(ctx, token)
	if err != nil {
		return nil, err
	}
	if attempt.Path != enums.SettlementPathPushPayment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout does not use push payments")
	}

	for guard := 0; guard <= attempt.OrderCount; guard++ {
		if attempt.State == enums.CheckoutAttemptDone {
			return nil, ErrAllSettled
		}
		if attempt.Settled() {
			if err := o.finish(ctx, attempt); err != nil {
				return nil, err
			}
			return nil, ErrAllSettled
		}

		order, err := o.orders.FindAttemptOrder(ctx, attempt.ID, attempt.CurrentIndex)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load current order")
		}
		if !order.Paid {
			return o.dispatch(ctx, attempt, order)
		}

		skipped, err := o.skipPaid(ctx, attempt)
		if err != nil {
			return nil, err
		}
		attempt = skipped
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout attempt did not converge")
}

func (o *Orchestrator) dispatch(ctx context.Context, attempt *models.CheckoutAttempt, order *models.Order) (*DispatchResult, error) {
	ctx = o.logg.WithOrderID(ctx, order.ID.String())

	pending, err := o.intents.FindPendingForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open payment")
	}
	if pending != nil {
		result := o.result(attempt, order, pending.CheckoutRequestID, pending.Amount)
		result.Existing = true
		return result, nil
	}

	index := attempt.CurrentIndex
	ok, err := o.orders.TransitionAttempt(ctx, orders.AttemptTransition{
		AttemptID: attempt.ID,
		From:      enums.DispatchableCheckoutAttemptStates,
		To:        enums.CheckoutAttemptDispatching,
		Index:     &index,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock checkout attempt")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment request for this checkout is already in progress").
			WithDetails(map[string]any{"state": attempt.State, "index": index})
	}

	resp, err := o.gateway.Initiate(ctx, mpesa.STKPushRequest{
		Phone:       attempt.Phone,
		Amount:      order.Total,
		Reference:   order.PaymentReference,
		Description: "Payment to " + vendorName(order),
	})
	// Once the gateway has answered, the outcome is recorded even if the
	// caller has gone away.
	record := context.WithoutCancel(ctx)
	if err != nil {
		o.logg.Error(ctx, "push payment request failed", err)
		o.markFailed(record, attempt.ID, index, err.Error())
		return nil, mpesa.AppError(err)
	}

	ctx = o.logg.WithCheckoutRequestID(ctx, resp.CheckoutRequestID)
	record = o.logg.WithCheckoutRequestID(record, resp.CheckoutRequestID)
	amount := decimal.NewFromInt(resp.Amount)
	err = o.tx.WithTx(record, func(tx *gorm.DB) error {
		intent := &models.PaymentIntent{
			CheckoutRequestID: resp.CheckoutRequestID,
			MerchantRequestID: resp.MerchantRequestID,
			OrderID:           &order.ID,
			CheckoutAttemptID: &attempt.ID,
			Phone:             resp.Phone,
			Amount:            amount,
			Status:            enums.PaymentIntentPending,
		}
		if err := o.intents.WithTx(tx).Create(record, intent); err != nil {
			return err
		}
		repo := o.orders.WithTx(tx)
		if err := repo.UpdateOrder(record, order.ID, map[string]any{
			"checkout_request_id": resp.CheckoutRequestID,
			"payment_method":      enums.PaymentMethodPushConfirmed,
		}); err != nil {
			return err
		}
		moved, err := repo.TransitionAttempt(record, orders.AttemptTransition{
			AttemptID: attempt.ID,
			From:      []enums.CheckoutAttemptState{enums.CheckoutAttemptDispatching},
			To:        enums.CheckoutAttemptAwaitingCallback,
			Index:     &index,
			Updates: map[string]any{
				"current_checkout_request_id": resp.CheckoutRequestID,
				"last_error":                  nil,
			},
		})
		if err != nil {
			return err
		}
		if !moved {
			return errors.New("checkout attempt left dispatching state during push")
		}
		return nil
	})
	if err != nil {
		o.logg.Error(ctx, "failed to record accepted push payment", err)
		o.markFailed(record, attempt.ID, index, "recording payment request failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment request")
	}

	o.logg.Info(o.logg.WithPhone(o.logg.WithOrderID(ctx, order.ID.String()), resp.Phone), "push payment requested")
	result := o.result(attempt, order, resp.CheckoutRequestID, amount)
	result.CustomerMessage = resp.CustomerMessage
	return result, nil
}

// Advance moves the attempt past fromIndex once that order is settled, then
// dispatches the next order. A second call for the same index is a no-op.
func (o *Orchestrator) Advance(ctx context.Context, attemptID uuid.UUID, fromIndex int) (*DispatchResult, error) {
	moved, err := o.orders.TransitionAttempt(ctx, orders.AttemptTransition{
		AttemptID: attemptID,
		From:      []enums.CheckoutAttemptState{enums.CheckoutAttemptAwaitingCallback},
		To:        enums.CheckoutAttemptAdvancing,
		Index:     &fromIndex,
		Updates: map[string]any{
			"current_index":               fromIndex + 1,
			"current_checkout_request_id": nil,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advance checkout attempt")
	}
	if !moved {
		return nil, nil
	}

	attempt, err := o.orders.FindAttempt(ctx, attemptID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout attempt")
	}
	if attempt.Settled() {
		return nil, o.finish(ctx, attempt)
	}
	next, err := o.DispatchNext(ctx, attempt.Token)
	if errors.Is(err, ErrAllSettled) {
		return nil, nil
	}
	return next, err
}

// Retry re-dispatches the current order after a failure. It refuses while a
// prompt is still open on the customer's phone.
func (o *Orchestrator) Retry(ctx context.Context, sessionKey, token string) (*DispatchResult, error) {
	attempt, err := o.loadOwnedAttempt(ctx, sessionKey, token)
	if err != nil {
		return nil, err
	}
	if attempt.State == enums.CheckoutAttemptAwaitingCallback {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "waiting for the customer to answer the payment prompt").
			WithDetails(map[string]any{"checkout_request_id": attempt.CurrentCheckoutRequestID})
	}
	return o.DispatchNext(ctx, attempt.Token)
}

// Attempt returns the progress of a checkout for its owning session.
func (o *Orchestrator) Attempt(ctx context.Context, sessionKey, token string) (*AttemptView, error) {
	attempt, err := o.loadOwnedAttempt(ctx, sessionKey, token)
	if err != nil {
		return nil, err
	}
	rows, err := o.orders.ListAttemptOrders(ctx, attempt.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout orders")
	}

	view := &AttemptView{
		Token:                    attempt.Token,
		Path:                     attempt.Path,
		State:                    attempt.State,
		CurrentIndex:             attempt.CurrentIndex,
		OrderCount:               attempt.OrderCount,
		Total:                    decimal.Zero,
		CurrentCheckoutRequestID: attempt.CurrentCheckoutRequestID,
		LastError:                attempt.LastError,
		CanRetry:                 attempt.Path == enums.SettlementPathPushPayment && attempt.State.CanDispatch() && !attempt.Settled(),
		Orders:                   make([]AttemptOrderView, 0, len(rows)),
	}
	for i := range rows {
		view.Total = view.Total.Add(rows[i].Total)
		if rows[i].Paid {
			view.PaidCount++
		}
		view.Orders = append(view.Orders, orderView(&rows[i]))
	}
	return view, nil
}

func (o *Orchestrator) skipPaid(ctx context.Context, attempt *models.CheckoutAttempt) (*models.CheckoutAttempt, error) {
	index := attempt.CurrentIndex
	_, err := o.orders.TransitionAttempt(ctx, orders.AttemptTransition{
		AttemptID: attempt.ID,
		From: []enums.CheckoutAttemptState{
			enums.CheckoutAttemptCreated,
			enums.CheckoutAttemptFailed,
			enums.CheckoutAttemptAdvancing,
			enums.CheckoutAttemptAwaitingCallback,
		},
		To:    enums.CheckoutAttemptAdvancing,
		Index: &index,
		Updates: map[string]any{
			"current_index":               index + 1,
			"current_checkout_request_id": nil,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "skip paid order")
	}
	next, err := o.orders.FindAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout attempt")
	}
	if next.CurrentIndex == index && next.State != enums.CheckoutAttemptDone {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout attempt changed concurrently")
	}
	return next, nil
}

// finish closes a fully walked attempt, emits checkout.completed once and
// clears the session cart.
func (o *Orchestrator) finish(ctx context.Context, attempt *models.CheckoutAttempt) error {
	index := attempt.OrderCount
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		done, err := o.orders.WithTx(tx).TransitionAttempt(ctx, orders.AttemptTransition{
			AttemptID: attempt.ID,
			From: []enums.CheckoutAttemptState{
				enums.CheckoutAttemptAdvancing,
				enums.CheckoutAttemptCreated,
				enums.CheckoutAttemptFailed,
			},
			To:    enums.CheckoutAttemptDone,
			Index: &index,
		})
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		return o.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutAttempt,
			AggregateID:   attempt.ID,
			Actor:         &outbox.ActorRef{UserID: attempt.CustomerID, SessionKey: attempt.SessionKey},
			Data: payloads.CheckoutCompletedEvent{
				CheckoutAttemptID: attempt.ID,
				OrderCount:        attempt.OrderCount,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete checkout attempt")
	}
	if err := o.carts.Clear(ctx, attempt.SessionKey); err != nil {
		o.logg.Error(o.logg.WithSessionKey(ctx, attempt.SessionKey), "failed to clear cart after checkout", err)
	}
	o.logg.Info(o.logg.WithField(ctx, "checkout_attempt_id", attempt.ID.String()), "checkout attempt completed")
	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, attemptID uuid.UUID, index int, reason string) {
	if len(reason) > maxLastErrorLength {
		reason = reason[:maxLastErrorLength]
	}
	_, err := o.orders.TransitionAttempt(ctx, orders.AttemptTransition{
		AttemptID: attemptID,
		From:      []enums.CheckoutAttemptState{enums.CheckoutAttemptDispatching},
		To:        enums.CheckoutAttemptFailed,
		Index:     &index,
		Updates:   map[string]any{"last_error": reason},
	})
	if err != nil {
		o.logg.Error(ctx, "failed to mark checkout attempt failed", err)
	}
}

func (o *Orchestrator) loadAttempt(ctx context.Context, token string) (*models.CheckoutAttempt, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout token required")
	}
	attempt, err := o.orders.FindAttemptByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout attempt")
	}
	return attempt, nil
}

func (o *Orchestrator) loadOwnedAttempt(ctx context.Context, sessionKey, token string) (*models.CheckoutAttempt, error) {
	attempt, err := o.loadAttempt(ctx, token)
	if err != nil {
		return nil, err
	}
	if sessionKey == "" || attempt.SessionKey != sessionKey {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	return attempt, nil
}

func (o *Orchestrator) result(attempt *models.CheckoutAttempt, order *models.Order, checkoutRequestID string, amount decimal.Decimal) *DispatchResult {
	return &DispatchResult{
		Token:             attempt.Token,
		AttemptID:         attempt.ID,
		Index:             order.Sequence,
		OrderCount:        attempt.OrderCount,
		OrderID:           order.ID,
		VendorName:        vendorName(order),
		Amount:            amount,
		CheckoutRequestID: checkoutRequestID,
	}
}

func orderView(order *models.Order) AttemptOrderView {
	return AttemptOrderView{
		OrderID:           order.ID,
		Sequence:          order.Sequence,
		VendorID:          order.VendorID,
		VendorName:        vendorName(order),
		Amount:            order.Total,
		Paid:              order.Paid,
		Status:            order.Status,
		PaymentMethod:     order.PaymentMethod,
		CheckoutRequestID: order.CheckoutRequestID,
	}
}

func vendorName(order *models.Order) string {
	if order.Vendor != nil && order.Vendor.Name != "" {
		return order.Vendor.Name
	}
	return "vendor"
}
