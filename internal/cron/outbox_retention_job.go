package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

const (
	defaultOutboxRetention  = 30 * 24 * time.Hour
	defaultOutboxPruneBatch = 500
	defaultOutboxPruneLoops = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is how long a published event is kept. Zero means 30 days.
	Retention time.Duration
	BatchSize int
	// MaxBatches bounds the deletes issued in one cycle.
	MaxBatches int
}

// NewOutboxRetentionJob prunes checkout, order and payment events that the
// publisher already relayed. Unpublished rows and the DLQ are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		retention:  params.Retention,
		batch:      params.BatchSize,
		maxBatches: params.MaxBatches,
		now:        time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batch <= 0 {
		job.batch = defaultOutboxPruneBatch
	}
	if job.maxBatches <= 0 {
		job.maxBatches = defaultOutboxPruneLoops
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       outboxPruner
	retention  time.Duration
	batch      int
	maxBatches int
	now        func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published events older than the retention window, one short
// transaction per batch, until a batch comes back partial.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.DeletePublishedBefore(tx, cutoff, j.batch)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("prune outbox batch %d: %w", batches+1, err)
		}
		batches++
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}
	if total == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"batches":      batches,
		"rows_deleted": total,
	}), "pruned published outbox events")
	return nil
}
