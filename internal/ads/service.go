package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/analysis"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/visibility"
)

const (
	minModerationScore = 0
	maxModerationScore = 10
	minTags            = 2
)

type store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ad, error)
	UpdateModeration(ctx context.Context, id uuid.UUID, update ModerationUpdate) (*models.Ad, error)
	MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type indexer interface {
	Index(ctx context.Context, ad models.Ad) error
}

type remover interface {
	Compensate(ctx context.Context, ad models.Ad, reason string) error
}

// Service exposes reads and administrative corrections of listings.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Ad, error)
	GetAny(ctx context.Context, id uuid.UUID) (*models.Ad, error)
	UpdateModeration(ctx context.Context, id uuid.UUID, input ModerationInput) (*models.Ad, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ModerationInput is an admin correction. Nil Tags keeps the current tags.
type ModerationInput struct {
	Score   int
	Reasons []string
	Tags    []string
}

type service struct {
	repo    store
	indexer indexer
	remover remover
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the listing service.
func NewService(repo store, idx indexer, rm remover, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ad repository required")
	}
	if idx == nil {
		return nil, fmt.Errorf("vector indexer required")
	}
	if rm == nil {
		return nil, fmt.Errorf("compensator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, indexer: idx, remover: rm, logg: logg, now: time.Now}, nil
}

// Get returns a publicly visible, unexpired ad.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	ad, err := s.GetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := visibility.EnsurePublic(ad, s.now()); err != nil {
		return nil, err
	}
	return ad, nil
}

// GetAny returns an ad regardless of visibility or expiry.
func (s *service) GetAny(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	ad, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ad")
	}
	return ad, nil
}

func (s *service) UpdateModeration(ctx context.Context, id uuid.UUID, input ModerationInput) (*models.Ad, error) {
	if input.Score < minModerationScore || input.Score > maxModerationScore {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "score must be between 0 and 10")
	}
	current, err := s.GetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithAdID(ctx, id.String())

	reasons := input.Reasons
	if reasons == nil {
		reasons = []string(current.ModerationReasons)
	}

	tags := []string{}
	if input.Score > 0 {
		raw := input.Tags
		if raw == nil {
			raw = []string(current.Tags)
		}
		normalized, warnings := analysis.NormalizeTags(raw)
		if len(normalized) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a non-zero score requires at least one valid tag").
				WithDetails(map[string]any{"warnings": warnings})
		}
		if len(normalized) < minTags {
			s.logg.Warn(ctx, "moderation correction carries fewer than 2 tags")
		}
		tags = normalized
	}

	updated, err := s.repo.UpdateModeration(ctx, id, ModerationUpdate{Score: input.Score, Reasons: reasons, Tags: tags})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update moderation")
	}
	s.logg.Info(s.logg.WithField(ctx, "moderation_score", updated.ModerationScore), "moderation corrected")

	if err := s.indexer.Index(ctx, *updated); err != nil {
		s.logg.Error(ctx, "re-index corrected ad", err)
		return updated, nil
	}
	at := s.now().UTC()
	if err := s.repo.MarkIndexed(ctx, id, at); err != nil {
		s.logg.Error(ctx, "mark ad indexed", err)
		return updated, nil
	}
	updated.IndexedAt = &at
	return updated, nil
}

// Delete removes the row and the vector entry through the compensation path.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	ad, err := s.GetAny(ctx, id)
	if err != nil {
		return err
	}
	if err := s.remover.Compensate(ctx, *ad, "admin_delete"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete ad")
	}
	return nil
}
