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
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/payloads"
)

type settlementCreator interface {
	CreateForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, receipt, transactionID string) (*models.VendorSettlement, error)
}

type advancer interface {
	Advance(ctx context.Context, attemptID uuid.UUID, fromIndex int) (*DispatchResult, error)
}

// ReconcilerParams wires the reconciler.
type ReconcilerParams struct {
	Orders      orders.Repository
	Intents     *Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Settlements settlementCreator
	Advancer    advancer
	Logger      *logger.Logger
}

// Reconciler applies gateway outcomes to payment intents and orders. Every
// write is guarded on the prior state so replays are harmless.
type Reconciler struct {
	orders      orders.Repository
	intents     *Repository
	tx          txRunner
	outbox      outboxPublisher
	settlements settlementCreator
	advancer    advancer
	logg        *logger.Logger
	now         func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement creator required")
	}
	if params.Advancer == nil {
		return nil, fmt.Errorf("advancer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		orders:      params.Orders,
		intents:     params.Intents,
		tx:          params.Tx,
		outbox:      params.Outbox,
		settlements: params.Settlements,
		advancer:    params.Advancer,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// Reconcile applies one gateway outcome. Unknown and duplicate outcomes are
// reported, not returned as errors.
func (r *Reconciler) Reconcile(ctx context.Context, outcome mpesa.Outcome) (*ReconcileResult, error) {
	id := strings.TrimSpace(outcome.CheckoutRequestID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id required")
	}
	ctx = r.logg.WithFields(r.logg.WithCheckoutRequestID(ctx, id), map[string]any{
		"result_code": outcome.ResultCode,
	})

	intent, err := r.intents.FindByCheckoutRequestID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logg.Warn(ctx, "gateway outcome for unknown payment intent")
			return &ReconcileResult{Outcome: ReconcileUnknown, Intent: IntentRef{CheckoutRequestID: id}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	ref := IntentRef{
		ID:                intent.ID,
		CheckoutRequestID: intent.CheckoutRequestID,
		OrderID:           intent.OrderID,
		AttemptID:         intent.CheckoutAttemptID,
	}
	if intent.OrderID != nil {
		ctx = r.logg.WithOrderID(ctx, intent.OrderID.String())
	}

	if intent.Status.IsTerminal() {
		r.logg.Debug(ctx, "duplicate gateway outcome ignored")
		return &ReconcileResult{Outcome: ReconcileDuplicate, Intent: ref}, nil
	}

	switch outcome.State() {
	case mpesa.StatePending:
		return &ReconcileResult{Outcome: ReconcilePending, Intent: ref}, nil
	case mpesa.StateCompleted:
		return r.complete(ctx, intent, outcome, ref)
	case mpesa.StateCancelled:
		return r.fail(ctx, intent, outcome, ref, enums.PaymentIntentCancelled)
	default:
		return r.fail(ctx, intent, outcome, ref, enums.PaymentIntentFailed)
	}
}

func (r *Reconciler) complete(ctx context.Context, intent *models.PaymentIntent, outcome mpesa.Outcome, ref IntentRef) (*ReconcileResult, error) {
	now := r.now().UTC()
	receipt := strings.TrimSpace(outcome.Receipt)

	var (
		order     *models.Order
		duplicate bool
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := r.intents.WithTx(tx).Resolve(ctx, intent.ID, enums.PaymentIntentCompleted, map[string]any{
			"result_code":          outcome.ResultCode,
			"result_desc":          outcome.ResultDesc,
			"mpesa_receipt_number": nullable(receipt),
			"transaction_date":     nullable(outcome.TransactionDate),
			"completed_at":         now,
			"updated_at":           now,
		})
		if err != nil {
			return err
		}
		if !resolved {
			duplicate = true
			return nil
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentStatusEvent{
				PaymentIntentID:   intent.ID,
				CheckoutRequestID: intent.CheckoutRequestID,
				OrderID:           intent.OrderID,
				Status:            enums.PaymentIntentCompleted,
				ResultCode:        outcome.ResultCode,
				ResultDesc:        outcome.ResultDesc,
				Amount:            intent.Amount,
				Receipt:           receipt,
			},
		}); err != nil {
			return err
		}

		if intent.OrderID == nil {
			return nil
		}
		repo := r.orders.WithTx(tx)
		found, err := repo.FindOrder(ctx, *intent.OrderID)
		if err != nil {
			return err
		}
		order = found

		updates := map[string]any{
			"paid":                 true,
			"status":               enums.OrderStatusProcessing,
			"payment_method":       enums.PaymentMethodPushConfirmed,
			"payment_confirmed_at": now,
			"updated_at":           now,
		}
		if receipt != "" {
			updates["transaction_code"] = receipt
		}
		paid, err := repo.UpdateUnpaidOrder(ctx, order.ID, updates)
		if err != nil {
			return err
		}
		if !paid {
			r.logg.Warn(ctx, "order already paid when push payment completed")
			return nil
		}
		order.Paid = true
		order.Status = enums.OrderStatusProcessing

		if _, err := r.settlements.CreateForOrder(ctx, tx, order, receipt, intent.CheckoutRequestID); err != nil {
			return err
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.CustomerID, SessionKey: order.SessionKey},
			Data: payloads.OrderPaidEvent{
				OrderID:           order.ID,
				VendorID:          order.VendorID,
				Amount:            order.Total,
				PaymentMethod:     enums.PaymentMethodPushConfirmed,
				Receipt:           receipt,
				PaidAt:            now,
				CheckoutRequestID: intent.CheckoutRequestID,
			},
		})
	})
	if err != nil {
		r.logg.Error(ctx, "failed to apply completed push payment", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply completed payment")
	}
	if duplicate {
		return &ReconcileResult{Outcome: ReconcileDuplicate, Intent: ref}, nil
	}

	r.logg.Info(ctx, "push payment completed")
	result := &ReconcileResult{Outcome: ReconcileCompleted, Intent: ref}
	if intent.CheckoutAttemptID != nil && order != nil {
		next, err := r.advancer.Advance(ctx, *intent.CheckoutAttemptID, order.Sequence)
		if err != nil {
			r.logg.Error(ctx, "failed to advance checkout after payment", err)
		}
		result.Next = next
	}
	return result, nil
}

func (r *Reconciler) fail(ctx context.Context, intent *models.PaymentIntent, outcome mpesa.Outcome, ref IntentRef, to enums.PaymentIntentStatus) (*ReconcileResult, error) {
	now := r.now().UTC()
	desc := strings.TrimSpace(outcome.ResultDesc)
	if desc == "" {
		desc = "payment was not completed"
	}

	var duplicate bool
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := r.intents.WithTx(tx).Resolve(ctx, intent.ID, to, map[string]any{
			"result_code":  outcome.ResultCode,
			"result_desc":  desc,
			"completed_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return err
		}
		if !resolved {
			duplicate = true
			return nil
		}

		if intent.CheckoutAttemptID != nil {
			checkoutRequestID := intent.CheckoutRequestID
			if _, err := r.orders.WithTx(tx).TransitionAttempt(ctx, orders.AttemptTransition{
				AttemptID:         *intent.CheckoutAttemptID,
				From:              []enums.CheckoutAttemptState{enums.CheckoutAttemptAwaitingCallback},
				To:                enums.CheckoutAttemptFailed,
				CheckoutRequestID: &checkoutRequestID,
				Updates:           map[string]any{"last_error": desc},
			}); err != nil {
				return err
			}
		}

		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentStatusEvent{
				PaymentIntentID:   intent.ID,
				CheckoutRequestID: intent.CheckoutRequestID,
				OrderID:           intent.OrderID,
				Status:            to,
				ResultCode:        outcome.ResultCode,
				ResultDesc:        desc,
				Amount:            intent.Amount,
			},
		})
	})
	if err != nil {
		r.logg.Error(ctx, "failed to apply unsuccessful push payment", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply failed payment")
	}
	if duplicate {
		return &ReconcileResult{Outcome: ReconcileDuplicate, Intent: ref}, nil
	}

	r.logg.Info(ctx, "push payment not completed")
	if to == enums.PaymentIntentCancelled {
		return &ReconcileResult{Outcome: ReconcileCancelled, Intent: ref}, nil
	}
	return &ReconcileResult{Outcome: ReconcileFailed, Intent: ref}, nil
}

func nullable(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
