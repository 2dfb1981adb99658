package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

const (
	defaultReindexBatchSize = 100
	defaultReindexGrace     = 10 * time.Minute
)

// VectorReindexJobParams configure the reconciliation sweep for failed indexing.
type VectorReindexJobParams struct {
	Logger      *logger.Logger
	Repository  unindexedAdRepo
	Indexer     adIndexer
	BatchSize   int
	GracePeriod time.Duration
}

type unindexedAdRepo interface {
	ListUnindexed(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Ad, error)
	MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type adIndexer interface {
	Index(ctx context.Context, ad models.Ad) error
}

// NewVectorReindexJob builds the job that upserts ads whose indexing failed at creation.
func NewVectorReindexJob(params VectorReindexJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ads repository required")
	}
	if params.Indexer == nil {
		return nil, fmt.Errorf("vector indexer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReindexBatchSize
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultReindexGrace
	}
	return &vectorReindexJob{
		logg:      params.Logger,
		repo:      params.Repository,
		indexer:   params.Indexer,
		batchSize: batch,
		grace:     grace,
		now:       time.Now,
	}, nil
}

type vectorReindexJob struct {
	logg      *logger.Logger
	repo      unindexedAdRepo
	indexer   adIndexer
	batchSize int
	grace     time.Duration
	now       func() time.Time
}

func (j *vectorReindexJob) Name() string { return "vector-reindex" }

func (j *vectorReindexJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	rows, err := j.repo.ListUnindexed(ctx, now.Add(-j.grace), now, j.batchSize)
	if err != nil {
		return fmt.Errorf("list unindexed ads: %w", err)
	}

	var (
		errs    error
		indexed int
	)
	for _, ad := range rows {
		if err := j.indexer.Index(ctx, ad); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("index ad %s: %w", ad.ID, err))
			continue
		}
		if err := j.repo.MarkIndexed(ctx, ad.ID, j.now().UTC()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark ad %s indexed: %w", ad.ID, err))
			continue
		}
		indexed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"indexed":    indexed,
		"failed":     len(rows) - indexed,
	})
	j.logg.Info(logCtx, "vector reindex sweep complete")
	return errs
}
