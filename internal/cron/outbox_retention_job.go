package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type OutboxRetentionJobParams struct {
	Logger          *logger.Logger
	DB              txRunner
	Repository      outboxRetentionRepo
	DLQ             dlqRetentionRepo
	OutboxRetention time.Duration
	DLQRetention    time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes published workflow events and aged dead letters.
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
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	outboxRetention := params.OutboxRetention
	if outboxRetention <= 0 {
		outboxRetention = defaultOutboxRetention
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = defaultDLQRetention
	}
	return &outboxRetentionJob{
		logg:            params.Logger,
		db:              params.DB,
		repo:            params.Repository,
		dlq:             params.DLQ,
		outboxRetention: outboxRetention,
		dlqRetention:    dlqRetention,
		now:             time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg            *logger.Logger
	db              txRunner
	repo            outboxRetentionRepo
	dlq             dlqRetentionRepo
	outboxRetention time.Duration
	dlqRetention    time.Duration
	now             func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes both tables in separate transactions so one failing does not hold back the other.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.outboxRetention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var published, failed int64
	outboxErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, outboxCutoff)
		published = rows
		return err
	})
	if outboxErr != nil {
		outboxErr = fmt.Errorf("outbox retention: %w", outboxErr)
	}
	dlqErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		failed = rows
		return err
	})
	if dlqErr != nil {
		dlqErr = fmt.Errorf("dlq retention: %w", dlqErr)
	}

	if err := multierr.Combine(outboxErr, dlqErr); err != nil {
		return err
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":       outboxCutoff,
		"dlq_cutoff":          dlqCutoff,
		"published_deleted":   published,
		"dead_letter_deleted": failed,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
