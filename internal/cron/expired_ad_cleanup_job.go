package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

const (
	expiredRetentionDays    = 30
	defaultCleanupBatchSize = 200
	maxCleanupBatches       = 50
)

// ExpiredAdCleanupJobParams configure the expired listing cleanup.
type ExpiredAdCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository expiredAdRepo
	Vectors    vectorRemover
	Retention  int
	BatchSize  int
}

type expiredAdRepo interface {
	ListExpiredIDs(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type vectorRemover interface {
	Remove(ctx context.Context, ids ...uuid.UUID) error
}

// NewExpiredAdCleanupJob builds the job that hard-deletes long-expired ads.
func NewExpiredAdCleanupJob(params ExpiredAdCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ads repository required")
	}
	if params.Vectors == nil {
		return nil, fmt.Errorf("vector remover required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = expiredRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCleanupBatchSize
	}
	return &expiredAdCleanupJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		vectors:   params.Vectors,
		retention: retention,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type expiredAdCleanupJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      expiredAdRepo
	vectors   vectorRemover
	retention int
	batchSize int
	now       func() time.Time
}

func (j *expiredAdCleanupJob) Name() string { return "expired-ad-cleanup" }

func (j *expiredAdCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var (
		errs    []error
		deleted int64
		batches int
	)
	for batches < maxCleanupBatches {
		var listed int
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			ids, err := j.repo.ListExpiredIDs(ctx, tx, cutoff, j.batchSize)
			if err != nil {
				return fmt.Errorf("list expired ads: %w", err)
			}
			listed = len(ids)
			if listed == 0 {
				return nil
			}

			// Orphaned vectors are dropped at query time, so row deletion proceeds either way.
			if err := j.vectors.Remove(ctx, ids...); err != nil {
				errs = append(errs, fmt.Errorf("remove vectors: %w", err))
			}
			rows, err := j.repo.DeleteByIDs(ctx, tx, ids)
			if err != nil {
				return fmt.Errorf("delete expired ads: %w", err)
			}
			deleted += rows
			return nil
		})
		if err != nil {
			errs = append(errs, err)
			break
		}
		if listed == 0 {
			break
		}
		batches++
		if listed < j.batchSize {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
		"batches":        batches,
	})
	j.logg.Info(logCtx, "expired ad cleanup complete")
	return multierr.Combine(errs...)
}
