package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analysis"
	"github.com/angelmondragon/adboard-backend/internal/checkout/helpers"
	"github.com/angelmondragon/adboard-backend/internal/payments"
	"github.com/angelmondragon/adboard-backend/internal/pricing"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

type paymentVerifier interface {
	ExtractPayer(ctx context.Context, signature string) (string, error)
	Verify(ctx context.Context, signature string, expectedUnits int64, recipient string) (*payments.VerifiedPayment, error)
}

type processedChecker interface {
	CheckProcessed(ctx context.Context, signature string) (bool, *models.Ad, error)
}

type contentAnalyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*analysis.Result, error)
}

type adStore interface {
	Create(ctx context.Context, ad *models.Ad) error
	FindByPaymentTx(ctx context.Context, signature string) (*models.Ad, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type vectorIndexer interface {
	Index(ctx context.Context, ad models.Ad) error
	Remove(ctx context.Context, ids ...uuid.UUID) error
}

type sagaObserver interface {
	ObserveStep(step string, duration time.Duration)
	IncOutcome(outcome, reason string)
	IncCompensation(result string)
}

// Service runs the listing creation workflow.
type Service interface {
	Execute(ctx context.Context, input CreateInput) (*Outcome, error)
	Compensate(ctx context.Context, ad models.Ad, reason string) error
}

// CreateInput is a validated creation request.
type CreateInput struct {
	helpers.Listing
	PaymentTx    string
	DurationDays int
}

// Outcome is the terminal result of a successful run.
type Outcome struct {
	Ad        *models.Ad
	Duplicate bool
}

// Config tunes the workflow.
type Config struct {
	Schedule            pricing.Schedule
	MaxDurationDays     int
	Timeout             time.Duration
	CompensationTimeout time.Duration
	RevalidatePayment   bool
}

// Deps groups the collaborators of the workflow.
type Deps struct {
	Payments paymentVerifier
	Guard    processedChecker
	Analyzer contentAnalyzer
	Store    adStore
	Indexer  vectorIndexer
	Metrics  sagaObserver
	Logger   *logger.Logger
}

const (
	compensationAttempts = 3

	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

type service struct {
	payments paymentVerifier
	guard    processedChecker
	analyzer contentAnalyzer
	store    adStore
	indexer  vectorIndexer
	metrics  sagaObserver
	logg     *logger.Logger
	cfg      Config

	now                 func() time.Time
	compensationBackoff time.Duration
	detach              func(fn func())
}

// NewService builds the creation workflow.
func NewService(deps Deps, cfg Config) (Service, error) {
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("content analyzer required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ad store required")
	}
	if deps.Indexer == nil {
		return nil, fmt.Errorf("vector indexer required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Schedule == (pricing.Schedule{}) {
		cfg.Schedule = pricing.DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 30 * time.Second
	}
	return &service{
		payments:            deps.Payments,
		guard:               deps.Guard,
		analyzer:            deps.Analyzer,
		store:               deps.Store,
		indexer:             deps.Indexer,
		metrics:             deps.Metrics,
		logg:                deps.Logger,
		cfg:                 cfg,
		now:                 time.Now,
		compensationBackoff: 250 * time.Millisecond,
		detach:              func(fn func()) { go fn() },
	}, nil
}

func (s *service) Execute(ctx context.Context, input CreateInput) (*Outcome, error) {
	signature := strings.TrimSpace(input.PaymentTx)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_tx is required")
	}
	if err := helpers.ValidateListing(input.Listing); err != nil {
		return nil, err
	}
	ctx = s.logg.WithPaymentTx(ctx, signature)

	s.transition(ctx, enums.CreationStateExtracting)
	var payer string
	err := s.timed(enums.CreationStateExtracting, func() error {
		var extractErr error
		payer, extractErr = s.payments.ExtractPayer(ctx, signature)
		return extractErr
	})
	if err != nil {
		return nil, s.reject(ctx, enums.RejectionPayerExtractionFailed, payments.APIError(err))
	}

	s.transition(ctx, enums.CreationStatePricing)
	if s.cfg.MaxDurationDays > 0 && input.DurationDays > s.cfg.MaxDurationDays {
		return nil, s.reject(ctx, enums.RejectionInvalidDuration,
			pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duration_days must be at most %d", s.cfg.MaxDurationDays)))
	}
	price, err := s.cfg.Schedule.Price(input.DurationDays, input.HasMedia())
	if err != nil {
		return nil, s.reject(ctx, enums.RejectionInvalidDuration,
			pkgerrors.Wrap(pkgerrors.CodeValidation, err, "duration_days must be at least 1"))
	}

	// Past this point the run is not abandoned when the client disconnects.
	sagaCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	return s.run(sagaCtx, input, helpers.Paid{
		Signature:    signature,
		Payer:        payer,
		DurationDays: input.DurationDays,
		PriceUnits:   price,
	})
}

func (s *service) run(ctx context.Context, input CreateInput, paid helpers.Paid) (*Outcome, error) {
	s.transition(ctx, enums.CreationStateVerifying)
	var verified *payments.VerifiedPayment
	err := s.timed(enums.CreationStateVerifying, func() error {
		var verifyErr error
		verified, verifyErr = s.payments.Verify(ctx, paid.Signature, paid.PriceUnits, "")
		return verifyErr
	})
	if err != nil {
		return nil, s.reject(ctx, enums.RejectionPaymentInvalid, payments.APIError(err))
	}
	if verified != nil && verified.Payer != "" {
		paid.Payer = verified.Payer
	}

	s.transition(ctx, enums.CreationStateIdempotencyCheck)
	processed, existing, err := s.guard.CheckProcessed(ctx, paid.Signature)
	if err != nil {
		return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check payment usage"))
	}
	if processed {
		return s.duplicate(ctx, existing), nil
	}

	s.transition(ctx, enums.CreationStateAnalyzing)
	var verdict *analysis.Result
	err = s.timed(enums.CreationStateAnalyzing, func() error {
		var analyzeErr error
		verdict, analyzeErr = s.analyzer.Analyze(ctx, helpers.AnalysisInput(input.Listing))
		return analyzeErr
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, err, "content analysis failed")
		}
		return nil, s.reject(ctx, enums.RejectionAnalysisFailed, err)
	}
	if verdict.FailedOpen {
		s.logg.Warn(ctx, "moderation unavailable, listing published by default")
	}

	ad := helpers.BuildAd(input.Listing, paid, verdict, s.now())
	ctx = s.logg.WithAdID(ctx, ad.ID.String())

	s.transition(ctx, enums.CreationStatePersisting)
	err = s.timed(enums.CreationStatePersisting, func() error {
		return s.store.Create(ctx, &ad)
	})
	if err != nil {
		if errors.Is(err, ads.ErrDuplicatePayment) {
			existing, findErr := s.store.FindByPaymentTx(ctx, paid.Signature)
			if findErr != nil {
				return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "reload existing ad"))
			}
			return s.duplicate(ctx, existing), nil
		}
		return nil, s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist ad"))
	}

	if s.cfg.RevalidatePayment {
		if _, err := s.payments.Verify(ctx, paid.Signature, paid.PriceUnits, ""); err != nil {
			apiErr := payments.APIError(err)
			s.compensateDetached(ctx, ad, string(enums.RejectionPaymentRevoked))
			return nil, s.reject(ctx, enums.RejectionPaymentRevoked, apiErr)
		}
	}

	s.transition(ctx, enums.CreationStateIndexing)
	s.index(ctx, &ad)

	s.transition(ctx, enums.CreationStateDone)
	s.outcome(outcomeCreated, "")
	return &Outcome{Ad: &ad}, nil
}

// index upserts the vector entry. Failures leave indexed_at unset for the
// reindex sweep and never change the outcome.
func (s *service) index(ctx context.Context, ad *models.Ad) {
	err := s.timed(enums.CreationStateIndexing, func() error {
		return s.indexer.Index(ctx, *ad)
	})
	if err != nil {
		s.logg.Error(ctx, "vector indexing failed", err)
		return
	}
	at := s.now().UTC()
	if err := s.store.MarkIndexed(ctx, ad.ID, at); err != nil {
		s.logg.Error(ctx, "mark ad indexed", err)
		return
	}
	ad.IndexedAt = &at
}

// Compensate removes the row and the vector entry of ad. Both removals run
// independently and are retried; the combined error is returned for logging.
func (s *service) Compensate(ctx context.Context, ad models.Ad, reason string) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"ad_id": ad.ID.String(), "compensation_reason": reason})
	errs := make([]error, 2)
	var g errgroup.Group
	g.Go(func() error {
		errs[0] = s.retry(ctx, "delete row", func(ctx context.Context) error {
			err := s.store.Delete(ctx, ad.ID)
			if errors.Is(err, ads.ErrNotFound) {
				return nil
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		errs[1] = s.retry(ctx, "delete vector", func(ctx context.Context) error {
			return s.indexer.Remove(ctx, ad.ID)
		})
		return nil
	})
	_ = g.Wait()

	combined := multierr.Combine(errs...)
	if combined != nil {
		s.logg.Error(ctx, "compensation incomplete", combined)
		s.incCompensation("failed")
		return combined
	}
	s.logg.Info(ctx, "compensation completed")
	s.incCompensation("succeeded")
	return nil
}

func (s *service) compensateDetached(ctx context.Context, ad models.Ad, reason string) {
	detached := context.WithoutCancel(ctx)
	s.detach(func() {
		cctx, cancel := context.WithTimeout(detached, s.cfg.CompensationTimeout)
		defer cancel()
		_ = s.Compensate(cctx, ad, reason)
	})
}

func (s *service) retry(ctx context.Context, action string, fn func(context.Context) error) error {
	backoff := s.compensationBackoff
	var lastErr error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		s.logg.Warn(ctx, fmt.Sprintf("%s attempt %d/%d failed: %v", action, attempt, compensationAttempts, lastErr))
		if attempt == compensationAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return multierr.Append(lastErr, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %w", action, lastErr)
}

func (s *service) duplicate(ctx context.Context, existing *models.Ad) *Outcome {
	if existing != nil {
		ctx = s.logg.WithAdID(ctx, existing.ID.String())
	}
	s.logg.Info(ctx, "payment already used, returning existing ad")
	s.outcome(outcomeDuplicate, "")
	return &Outcome{Ad: existing, Duplicate: true}
}

func (s *service) reject(ctx context.Context, reason enums.RejectionReason, err error) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"state":  enums.CreationStateRejected.String(),
		"reason": string(reason),
	})
	s.logg.Warn(ctx, fmt.Sprintf("ad creation rejected: %v", err))
	s.outcome(outcomeRejected, string(reason))
	return err
}

func (s *service) fail(ctx context.Context, err error) error {
	s.logg.Error(ctx, "ad creation failed", err)
	s.outcome(outcomeFailed, string(enums.RejectionPersistenceFailed))
	return err
}

func (s *service) transition(ctx context.Context, state enums.CreationState) {
	s.logg.Info(s.logg.WithField(ctx, "state", state.String()), "ad creation step")
}

func (s *service) timed(state enums.CreationState, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.ObserveStep(state.String(), time.Since(start))
	}
	return err
}

func (s *service) outcome(outcome, reason string) {
	if s.metrics != nil {
		s.metrics.IncOutcome(outcome, reason)
	}
}

func (s *service) incCompensation(result string) {
	if s.metrics != nil {
		s.metrics.IncCompensation(result)
	}
}
