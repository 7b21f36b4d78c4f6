package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/metrics"
)

const defaultInterval = 30 * time.Second

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero means the cycle interval.
	JobTimeout time.Duration
}

// Service runs the registered sweeps on a fixed cadence. Only the instance
// holding the lock runs a cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = interval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// RunOnce executes a single locked cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.CycleSkipped()
		s.logg.Debug(ctx, "another cron instance holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	for i, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && !s.renewLease(ctx) {
			return nil
		}
		s.runJob(ctx, job)
	}
	return nil
}

// renewLease reports false once another instance owns the lock. Renewal
// errors keep the cycle going on the current lease.
func (s *Service) renewLease(ctx context.Context) bool {
	held, err := s.lock.Extend(ctx)
	if err != nil {
		s.logg.Error(ctx, "failed to renew cron lock", err)
		return true
	}
	if !held {
		s.logg.Warn(ctx, "cron lock lost mid-cycle; leaving remaining jobs to the new holder")
	}
	return held
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := s.safeRun(jobCtx, job)
	duration := time.Since(start)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	switch {
	case err == nil:
		s.logg.Debug(jobCtx, "job completed")
		s.metrics.ObserveRun(job.Name(), metrics.OutcomeSuccess, duration, time.Now())
	case errors.Is(err, context.DeadlineExceeded):
		s.logg.Warn(jobCtx, "job exceeded its timeout; remaining work resumes next cycle")
		s.metrics.ObserveRun(job.Name(), metrics.OutcomeTimeout, duration, time.Now())
	default:
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.ObserveRun(job.Name(), metrics.OutcomeFailure, duration, time.Now())
	}
}

func (s *Service) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
