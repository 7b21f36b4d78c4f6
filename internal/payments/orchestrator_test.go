package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

func TestTwoVendorCheckoutPaysSequentially(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, orders := f.seedAttempt(t, "200.00", "500.00")

	first, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, orders[0].ID, first.OrderID)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 2, first.OrderCount)
	assert.Equal(t, "Vendor A", first.VendorName)
	assert.False(t, first.Existing)
	require.Equal(t, 1, f.gateway.pushCount())
	assert.Equal(t, "254712345678", f.gateway.pushes[0].Phone)
	assert.True(t, f.gateway.pushes[0].Amount.Equal(orders[0].Total))
	assert.Equal(t, "Payment to Vendor A", f.gateway.pushes[0].Description)

	stored := f.attempt(t, attempt.ID)
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, stored.State)
	require.NotNil(t, stored.CurrentCheckoutRequestID)
	assert.Equal(t, first.CheckoutRequestID, *stored.CurrentCheckoutRequestID)
	assert.Equal(t, enums.PaymentMethodPushConfirmed, f.order(t, orders[0].ID).PaymentMethod)

	// Vendor B is not pushed while A is still open.
	again, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, orders[0].ID, again.OrderID)
	assert.Equal(t, 1, f.gateway.pushCount())

	res, err := f.reconciler.Reconcile(ctx, success(first.CheckoutRequestID, "RKA1111111"))
	require.NoError(t, err)
	assert.Equal(t, ReconcileCompleted, res.Outcome)
	require.NotNil(t, res.Next)
	assert.Equal(t, orders[1].ID, res.Next.OrderID)
	require.Equal(t, 2, f.gateway.pushCount())
	assert.True(t, f.gateway.pushes[1].Amount.Equal(orders[1].Total))

	paidA := f.order(t, orders[0].ID)
	assert.True(t, paidA.Paid)
	assert.Equal(t, enums.OrderStatusProcessing, paidA.Status)
	assert.False(t, f.order(t, orders[1].ID).Paid)
	assert.Empty(t, f.carts.cleared)

	res, err = f.reconciler.Reconcile(ctx, success(res.Next.CheckoutRequestID, "RKB2222222"))
	require.NoError(t, err)
	assert.Equal(t, ReconcileCompleted, res.Outcome)
	assert.Nil(t, res.Next)

	done := f.attempt(t, attempt.ID)
	assert.Equal(t, enums.CheckoutAttemptDone, done.State)
	assert.Equal(t, 2, done.CurrentIndex)
	assert.Equal(t, []string{attempt.SessionKey}, f.carts.cleared)
	assert.EqualValues(t, 2, f.count(t, &models.VendorSettlement{}, "1 = 1"))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventCheckoutCompleted))

	_, err = f.orchestrator.DispatchNext(ctx, attempt.Token)
	assert.ErrorIs(t, err, ErrAllSettled)
}

func TestDispatchNextSkipsOrdersAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	attempt, orders := f.seedAttempt(t, "150.00", "80.00")
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", orders[0].ID).
		Updates(map[string]any{"paid": true, "status": enums.OrderStatusProcessing}).Error)

	res, err := f.orchestrator.DispatchNext(context.Background(), attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, orders[1].ID, res.OrderID)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 1, f.gateway.pushCount())
	assert.Equal(t, 1, f.attempt(t, attempt.ID).CurrentIndex)
}

func TestGatewayFailureKeepsOrderAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, orders := f.seedAttempt(t, "300.00")

	f.gateway.pushErr = &mpesa.GatewayError{Kind: mpesa.KindConnectionError, Operation: "stk_push", Message: "connection refused"}
	_, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.Retryable(err))

	failed := f.attempt(t, attempt.ID)
	assert.Equal(t, enums.CheckoutAttemptFailed, failed.State)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "connection refused")
	stillThere := f.order(t, orders[0].ID)
	assert.False(t, stillThere.Paid)
	assert.Equal(t, enums.OrderStatusPending, stillThere.Status)
	assert.Zero(t, f.count(t, &models.PaymentIntent{}, "1 = 1"))

	f.gateway.pushErr = nil
	res, err := f.orchestrator.Retry(ctx, attempt.SessionKey, attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, orders[0].ID, res.OrderID)
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, f.attempt(t, attempt.ID).State)
}

func TestFailedPushIsRecordedAfterClientDisconnect(t *testing.T) {
	f := newFixture(t)
	attempt, _ := f.seedAttempt(t, "300.00")

	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.pushErr = &mpesa.GatewayError{Kind: mpesa.KindConnectionError, Operation: "stk_push", Message: "connection reset"}
	f.gateway.answered = cancel
	_, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.Error(t, err)

	assert.Equal(t, enums.CheckoutAttemptFailed, f.attempt(t, attempt.ID).State)

	f.gateway.pushErr = nil
	f.gateway.answered = nil
	res, err := f.orchestrator.Retry(context.Background(), attempt.SessionKey, attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, f.attempt(t, attempt.ID).State)
	assert.NotEmpty(t, res.CheckoutRequestID)
}

func TestAcceptedPushIsRecordedAfterClientDisconnect(t *testing.T) {
	f := newFixture(t)
	attempt, orders := f.seedAttempt(t, "300.00")

	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.answered = cancel
	res, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.pushCount())

	assert.EqualValues(t, 1, f.count(t, &models.PaymentIntent{}, "checkout_request_id = ?", res.CheckoutRequestID))
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, f.attempt(t, attempt.ID).State)

	outcome, err := f.reconciler.Reconcile(context.Background(), success(res.CheckoutRequestID, "RKC3333333"))
	require.NoError(t, err)
	assert.Equal(t, ReconcileCompleted, outcome.Outcome)
	assert.True(t, f.order(t, orders[0].ID).Paid)
}

func TestStalledDispatchIsReleasedForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := orders.NewRepository(f.conn)
	longAgo := time.Now().UTC().Add(-10 * time.Minute)

	stalled, _ := f.seedAttempt(t, "300.00")
	require.NoError(t, f.conn.Model(&models.CheckoutAttempt{}).Where("id = ?", stalled.ID).
		UpdateColumns(map[string]any{"state": enums.CheckoutAttemptDispatching, "updated_at": longAgo}).Error)

	recent, _ := f.seedAttempt(t, "120.00")
	require.NoError(t, f.conn.Model(&models.CheckoutAttempt{}).Where("id = ?", recent.ID).
		UpdateColumns(map[string]any{"state": enums.CheckoutAttemptDispatching}).Error)

	recorded, _ := f.seedAttempt(t, "80.00")
	_, err := f.orchestrator.DispatchNext(ctx, recorded.Token)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.CheckoutAttempt{}).Where("id = ?", recorded.ID).
		UpdateColumns(map[string]any{"state": enums.CheckoutAttemptDispatching, "updated_at": longAgo}).Error)

	released, err := repo.ReleaseStalledDispatches(ctx, time.Now().UTC().Add(-2*time.Minute), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, released)
	assert.Equal(t, enums.CheckoutAttemptFailed, f.attempt(t, stalled.ID).State)
	assert.Equal(t, enums.CheckoutAttemptDispatching, f.attempt(t, recent.ID).State)
	assert.Equal(t, enums.CheckoutAttemptDispatching, f.attempt(t, recorded.ID).State)

	res, err := f.orchestrator.Retry(ctx, stalled.SessionKey, stalled.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, f.attempt(t, stalled.ID).State)
}

func TestRetryRefusedWhilePromptIsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, _ := f.seedAttempt(t, "300.00")

	_, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)

	_, err = f.orchestrator.Retry(ctx, attempt.SessionKey, attempt.Token)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 1, f.gateway.pushCount())

	_, err = f.orchestrator.Retry(ctx, "someone-else", attempt.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdvanceIsNoOpForStaleIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, _ := f.seedAttempt(t, "100.00", "100.00")

	_, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)

	next, err := f.orchestrator.Advance(ctx, attempt.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, next)
	stored := f.attempt(t, attempt.ID)
	assert.Equal(t, 0, stored.CurrentIndex)
	assert.Equal(t, enums.CheckoutAttemptAwaitingCallback, stored.State)
	assert.Equal(t, 1, f.gateway.pushCount())
}

func TestDispatchNextRejectsManualPaths(t *testing.T) {
	f := newFixture(t)
	attempt, _ := f.seedAttempt(t, "100.00")
	require.NoError(t, f.conn.Model(&models.CheckoutAttempt{}).Where("id = ?", attempt.ID).
		Update("path", enums.SettlementPathCashOnDelivery).Error)

	_, err := f.orchestrator.DispatchNext(context.Background(), attempt.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.orchestrator.DispatchNext(context.Background(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAttemptViewReportsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, orders := f.seedAttempt(t, "200.00", "500.00")

	first, err := f.orchestrator.DispatchNext(ctx, attempt.Token)
	require.NoError(t, err)
	_, err = f.reconciler.Reconcile(ctx, success(first.CheckoutRequestID, "RKA1111111"))
	require.NoError(t, err)

	view, err := f.orchestrator.Attempt(ctx, attempt.SessionKey, attempt.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentIndex)
	assert.Equal(t, 1, view.PaidCount)
	assert.Equal(t, "700.00", view.Total.StringFixed(2))
	require.Len(t, view.Orders, 2)
	assert.Equal(t, orders[0].ID, view.Orders[0].OrderID)
	assert.True(t, view.Orders[0].Paid)
	assert.False(t, view.CanRetry)
}
