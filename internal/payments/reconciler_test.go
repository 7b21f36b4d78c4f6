package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

func TestReconcileSuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, orders := f.seedAttempt(t, "1000.00")

	pushed, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)
	outcome := success(pushed.CheckoutRequestID, "RKT9ABC123")

	first, err := f.reconciler.Reconcile(ctx, outcome)
	require.NoError(t, err)
	assert.Equal(t, ReconcileCompleted, first.Outcome)

	second, err := f.reconciler.Reconcile(ctx, outcome)
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, second.Outcome)

	intent := f.intent(t, pushed.CheckoutRequestID)
	assert.Equal(t, enums.PaymentIntentCompleted, intent.Status)
	require.NotNil(t, intent.MpesaReceiptNumber)
	assert.Equal(t, "RKT9ABC123", *intent.MpesaReceiptNumber)
	require.NotNil(t, intent.CompletedAt)

	order := f.order(t, orders[0].ID)
	assert.True(t, order.Paid)
	require.NotNil(t, order.TransactionCode)
	assert.Equal(t, "RKT9ABC123", *order.TransactionCode)

	var settlement models.VendorSettlement
	require.NoError(t, f.conn.First(&settlement, "order_id = ?", order.ID).Error)
	assert.Equal(t, "50.00", settlement.CommissionAmount.StringFixed(2))
	assert.Equal(t, "950.00", settlement.NetAmount.StringFixed(2))

	assert.EqualValues(t, 1, f.count(t, &models.VendorSettlement{}, "order_id = ?", order.ID))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentCompleted))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventCheckoutCompleted))
	assert.Len(t, f.carts.cleared, 1)
}

func TestReconcileCancelledDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, orders := f.seedAttempt(t, "200.00", "500.00")

	pushed, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, mpesa.Outcome{
		CheckoutRequestID: pushed.CheckoutRequestID,
		ResultCode:        mpesa.ResultCodeUserCancelled,
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileCancelled, res.Outcome)
	assert.Nil(t, res.Next)

	assert.Equal(t, enums.PaymentIntentCancelled, f.intent(t, pushed.CheckoutRequestID).Status)
	stored := f.attempt(t, attempt.ID)
	assert.Equal(t, enums.CheckoutAttemptFailed, stored.State)
	assert.Equal(t, 0, stored.CurrentIndex)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "Request cancelled by user", *stored.LastError)
	assert.False(t, f.order(t, orders[0].ID).Paid)
	assert.Equal(t, 1, f.gateway.pushCount())
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))
	assert.Zero(t, f.count(t, &models.VendorSettlement{}, "1 = 1"))

	retried, err := f.orchestrator.Retry(ctx, attempt.SessionKey, attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, orders[0].ID, retried.OrderID)
	assert.NotEqual(t, pushed.CheckoutRequestID, retried.CheckoutRequestID)
	assert.Equal(t, 2, f.gateway.pushCount())
}

func TestReconcileTimeoutMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, _ := f.seedAttempt(t, "200.00")

	pushed, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, mpesa.TimedOut(pushed.CheckoutRequestID))
	require.NoError(t, err)
	assert.Equal(t, ReconcileFailed, res.Outcome)

	intent := f.intent(t, pushed.CheckoutRequestID)
	assert.Equal(t, enums.PaymentIntentFailed, intent.Status)
	require.NotNil(t, intent.ResultDesc)
	assert.Equal(t, "Transaction timed out", *intent.ResultDesc)

	// A late success after the timeout must not flip the intent back.
	late, err := f.reconciler.Reconcile(ctx, success(pushed.CheckoutRequestID, "RKLATE0001"))
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, late.Outcome)
	assert.Equal(t, enums.PaymentIntentFailed, f.intent(t, pushed.CheckoutRequestID).Status)
}

func TestReconcileUnknownAndPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.reconciler.Reconcile(ctx, success("ws_CO_unknown", "RK000"))
	require.NoError(t, err)
	assert.Equal(t, ReconcileUnknown, res.Outcome)

	attempt, _ := f.seedAttempt(t, "200.00")
	pushed, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)

	res, err = f.reconciler.Reconcile(ctx, mpesa.Outcome{CheckoutRequestID: pushed.CheckoutRequestID, ResultCode: mpesa.ResultCodePending})
	require.NoError(t, err)
	assert.Equal(t, ReconcilePending, res.Outcome)
	assert.Equal(t, enums.PaymentIntentPending, f.intent(t, pushed.CheckoutRequestID).Status)

	_, err = f.reconciler.Reconcile(ctx, mpesa.Outcome{})
	assert.Error(t, err)
}
