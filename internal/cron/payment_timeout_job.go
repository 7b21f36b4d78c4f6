package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

const (
	defaultQueryAfter   = 30 * time.Second
	defaultExpireAfter  = 5 * time.Minute
	defaultPaymentBatch = 100
)

type pendingIntents interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
}

type statusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type outcomeReconciler interface {
	Reconcile(ctx context.Context, outcome mpesa.Outcome) (*payments.ReconcileResult, error)
}

type PaymentTimeoutJobParams struct {
	Logger     *logger.Logger
	Intents    pendingIntents
	Gateway    statusQuerier
	Reconciler outcomeReconciler
	// QueryAfter is how long a push may stay pending before the gateway is asked.
	QueryAfter time.Duration
	// ExpireAfter is how long a push may stay pending before it is failed as timed out.
	ExpireAfter time.Duration
	BatchSize   int
}

// NewPaymentTimeoutJob resolves pushes whose callback never arrived.
func NewPaymentTimeoutJob(params PaymentTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	queryAfter := params.QueryAfter
	if queryAfter <= 0 {
		queryAfter = defaultQueryAfter
	}
	expireAfter := params.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = defaultExpireAfter
	}
	if expireAfter < queryAfter {
		expireAfter = queryAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPaymentBatch
	}
	return &paymentTimeoutJob{
		logg:        params.Logger,
		intents:     params.Intents,
		gateway:     params.Gateway,
		reconciler:  params.Reconciler,
		queryAfter:  queryAfter,
		expireAfter: expireAfter,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type paymentTimeoutJob struct {
	logg        *logger.Logger
	intents     pendingIntents
	gateway     statusQuerier
	reconciler  outcomeReconciler
	queryAfter  time.Duration
	expireAfter time.Duration
	batch       int
	now         func() time.Time
}

func (j *paymentTimeoutJob) Name() string { return "payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	intents, err := j.intents.ListPendingBefore(ctx, now.Add(-j.queryAfter), j.batch)
	if err != nil {
		return fmt.Errorf("list pending intents: %w", err)
	}

	var (
		errs     error
		resolved int
	)
	for i := range intents {
		intent := &intents[i]
		intentCtx := j.logg.WithCheckoutRequestID(ctx, intent.CheckoutRequestID)
		ok, err := j.resolve(intentCtx, intent, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", intent.CheckoutRequestID, err))
			continue
		}
		if ok {
			resolved++
		}
	}

	if len(intents) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"pending":  len(intents),
			"resolved": resolved,
		}), "payment timeout sweep complete")
	}
	return errs
}

// resolve asks the gateway about a stale push and reconciles a terminal
// answer. A push past ExpireAfter with no terminal answer is failed as
// timed out.
func (j *paymentTimeoutJob) resolve(ctx context.Context, intent *models.PaymentIntent, now time.Time) (bool, error) {
	expired := now.Sub(intent.CreatedAt) >= j.expireAfter

	result, err := j.gateway.QueryStatus(ctx, intent.CheckoutRequestID)
	switch {
	case err != nil && !expired:
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "stale push status query failed")
		return false, nil
	case err == nil && result.State != mpesa.StatePending:
		return j.reconcile(ctx, mpesa.Outcome{
			CheckoutRequestID: intent.CheckoutRequestID,
			ResultCode:        result.ResultCode,
			ResultDesc:        result.ResultDesc,
		})
	case expired:
		return j.reconcile(ctx, mpesa.TimedOut(intent.CheckoutRequestID))
	default:
		return false, nil
	}
}

func (j *paymentTimeoutJob) reconcile(ctx context.Context, outcome mpesa.Outcome) (bool, error) {
	res, err := j.reconciler.Reconcile(ctx, outcome)
	if err != nil {
		return false, err
	}
	return res != nil && res.Outcome != payments.ReconcileDuplicate && res.Outcome != payments.ReconcileUnknown, nil
}
