package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

const (
	defaultAttemptTTL      = 24 * time.Hour
	defaultDispatchTimeout = 2 * time.Minute
	defaultAttemptBatch    = 200
)

type staleAttempts interface {
	CloseStaleAttempts(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	ReleaseStalledDispatches(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type AttemptExpiryJobParams struct {
	Logger   *logger.Logger
	Attempts staleAttempts
	TTL      time.Duration
	// DispatchTimeout is how long an attempt may sit in dispatching without a
	// recorded push before it is failed for retry.
	DispatchTimeout time.Duration
	BatchSize       int
}

// NewAttemptExpiryJob closes checkout attempts abandoned for longer than TTL
// and releases pushes interrupted before their intent was recorded. Orders
// stay as they are.
func NewAttemptExpiryJob(params AttemptExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultAttemptTTL
	}
	dispatchTimeout := params.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAttemptBatch
	}
	return &attemptExpiryJob{
		logg:            params.Logger,
		attempts:        params.Attempts,
		ttl:             ttl,
		dispatchTimeout: dispatchTimeout,
		batch:           batch,
		now:             time.Now,
	}, nil
}

type attemptExpiryJob struct {
	logg            *logger.Logger
	attempts        staleAttempts
	ttl             time.Duration
	dispatchTimeout time.Duration
	batch           int
	now             func() time.Time
}

func (j *attemptExpiryJob) Name() string { return "checkout-attempt-expiry" }

func (j *attemptExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error

	stalledCutoff := now.Add(-j.dispatchTimeout)
	released, err := j.attempts.ReleaseStalledDispatches(ctx, stalledCutoff, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("release stalled dispatches: %w", err))
	} else if released > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"cutoff":   stalledCutoff,
			"released": released,
		}), "interrupted payment requests released for retry")
	}

	cutoff := now.Add(-j.ttl)
	closed, err := j.attempts.CloseStaleAttempts(ctx, cutoff, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close stale attempts: %w", err))
	} else if closed > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff": cutoff,
			"closed": closed,
		}), "stale checkout attempts closed")
	}
	return errs
}
