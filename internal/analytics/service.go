package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analytics/types"
	"github.com/angelmondragon/adboard-backend/internal/analytics/writer"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/redis"
)

const defaultDedupWindow = 30 * time.Minute

// Outcome describes what happened to a submitted event.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeBot       Outcome = "bot"
)

// Event is one impression or click as reported by a client.
type Event struct {
	AdID      uuid.UUID
	Type      enums.AdEventType
	Source    enums.AdEventSource
	UserAgent string
	IP        string
	Referrer  string
}

type eventStore interface {
	Insert(ctx context.Context, event *models.AdEvent) error
	ExistsSince(ctx context.Context, adID uuid.UUID, eventType enums.AdEventType, fingerprint string, since time.Time) (bool, error)
	CountByAd(ctx context.Context, adID uuid.UUID) (Counts, error)
}

type adLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ad, error)
}

type mirror interface {
	InsertAdEvent(ctx context.Context, row types.AdEventRow) error
}

type engagementObserver interface {
	IncEvent(eventType, result string)
}

// Service records deduplicated engagement events.
type Service interface {
	Record(ctx context.Context, event Event) (Outcome, error)
	Counts(ctx context.Context, adID uuid.UUID) (Counts, error)
}

// Deps groups the collaborators of the engagement service.
type Deps struct {
	Store   eventStore
	Ads     adLookup
	Dedup   redis.DedupStore
	Mirror  mirror
	Metrics engagementObserver
	Logger  *logger.Logger
}

type service struct {
	store   eventStore
	ads     adLookup
	dedup   redis.DedupStore
	mirror  mirror
	metrics engagementObserver
	logg    *logger.Logger
	window  time.Duration
	now     func() time.Time
}

// NewService builds the engagement service. Dedup and Mirror are optional.
func NewService(deps Deps, window time.Duration) (Service, error) {
	if deps.Store == nil {
		return nil, errors.New("event store required")
	}
	if deps.Ads == nil {
		return nil, errors.New("ad lookup required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger required")
	}
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &service{
		store:   deps.Store,
		ads:     deps.Ads,
		dedup:   deps.Dedup,
		mirror:  deps.Mirror,
		metrics: deps.Metrics,
		logg:    deps.Logger,
		window:  window,
		now:     time.Now,
	}, nil
}

func (s *service) Record(ctx context.Context, event Event) (Outcome, error) {
	if !event.Type.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid event type")
	}
	if event.Source == "" {
		event.Source = enums.AdEventSourceProgrammatic
	}
	if !event.Source.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid event source")
	}
	if _, err := s.ads.FindByID(ctx, event.AdID); err != nil {
		if errors.Is(err, ads.ErrNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ad")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"ad_id":      event.AdID.String(),
		"event_type": event.Type.String(),
	})

	// Agent-sourced events come from non-browser clients and skip bot filtering.
	client := ParseClient(event.UserAgent)
	if client.Bot && event.Source == enums.AdEventSourceProgrammatic {
		s.count(event.Type, OutcomeBot)
		return OutcomeBot, nil
	}

	fingerprint := Fingerprint(event.UserAgent, event.IP)
	now := s.now().UTC()

	first, err := s.firstInWindow(ctx, event, fingerprint, now)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check engagement window")
	}
	if !first {
		s.count(event.Type, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	row := &models.AdEvent{
		ID:          uuid.New(),
		AdID:        event.AdID,
		Type:        event.Type,
		Source:      event.Source,
		Fingerprint: fingerprint,
		UserAgent:   optional(event.UserAgent),
		IP:          optional(event.IP),
		Referrer:    optional(event.Referrer),
		CreatedAt:   now,
	}
	if err := s.store.Insert(ctx, row); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert engagement event")
	}
	s.mirrorRow(ctx, row, client)
	s.count(event.Type, OutcomeRecorded)
	return OutcomeRecorded, nil
}

func (s *service) Counts(ctx context.Context, adID uuid.UUID) (Counts, error) {
	if _, err := s.ads.FindByID(ctx, adID); err != nil {
		if errors.Is(err, ads.ErrNotFound) {
			return Counts{}, pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return Counts{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ad")
	}
	counts, err := s.store.CountByAd(ctx, adID)
	if err != nil {
		return Counts{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count engagement")
	}
	return counts, nil
}

// firstInWindow claims the dedup slot in Redis, falling back to a DB lookup
// when Redis is unavailable.
func (s *service) firstInWindow(ctx context.Context, event Event, fingerprint string, now time.Time) (bool, error) {
	if s.dedup != nil {
		key := s.dedup.EngagementKey(event.AdID.String(), event.Type.String(), fingerprint)
		claimed, err := s.dedup.SetNX(ctx, key, now.Unix(), s.window)
		if err == nil {
			return claimed, nil
		}
		s.logg.Warn(ctx, fmt.Sprintf("engagement dedup unavailable, using database window: %v", err))
	}
	exists, err := s.store.ExistsSince(ctx, event.AdID, event.Type, fingerprint, now.Add(-s.window))
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *service) mirrorRow(ctx context.Context, row *models.AdEvent, client Client) {
	if s.mirror == nil {
		return
	}
	payload, err := writer.EncodeJSON(map[string]any{"user_agent": row.UserAgent})
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("encode analytics payload: %v", err))
	}
	out := types.AdEventRow{
		EventID:     row.ID.String(),
		OccurredAt:  row.CreatedAt,
		AdID:        row.AdID.String(),
		Type:        row.Type.String(),
		Source:      row.Source.String(),
		Fingerprint: row.Fingerprint,
		Referrer:    row.Referrer,
		Browser:     optional(client.Browser),
		OS:          optional(client.OS),
		Mobile:      client.Mobile,
		Payload:     payload,
	}
	if err := s.mirror.InsertAdEvent(ctx, out); err != nil {
		s.logg.Error(ctx, "mirror engagement event", err)
	}
}

func (s *service) count(eventType enums.AdEventType, outcome Outcome) {
	if s.metrics != nil {
		s.metrics.IncEvent(eventType.String(), string(outcome))
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
