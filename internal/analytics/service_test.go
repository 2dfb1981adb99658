package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analytics/types"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type memoryEvents struct {
	rows      []models.AdEvent
	insertErr error
	existsErr error
}

func (m *memoryEvents) Insert(ctx context.Context, event *models.AdEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.rows = append(m.rows, *event)
	return nil
}

func (m *memoryEvents) ExistsSince(ctx context.Context, adID uuid.UUID, eventType enums.AdEventType, fingerprint string, since time.Time) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, row := range m.rows {
		if row.AdID == adID && row.Type == eventType && row.Fingerprint == fingerprint && row.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryEvents) CountByAd(ctx context.Context, adID uuid.UUID) (Counts, error) {
	var counts Counts
	for _, row := range m.rows {
		if row.AdID != adID {
			continue
		}
		if row.Type == enums.AdEventTypeClick {
			counts.Clicks++
		} else {
			counts.Impressions++
		}
	}
	return counts, nil
}

type knownAds map[uuid.UUID]bool

func (k knownAds) FindByID(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	if !k[id] {
		return nil, ads.ErrNotFound
	}
	return &models.Ad{ID: id}, nil
}

type fakeDedup struct {
	keys map[string]bool
	err  error
}

func (f *fakeDedup) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedup) EngagementKey(adID, eventType, fingerprint string) string {
	return eventType + ":" + adID + ":" + fingerprint
}

type fakeMirror struct {
	rows []types.AdEventRow
	err  error
}

func (f *fakeMirror) InsertAdEvent(ctx context.Context, row types.AdEventRow) error {
	f.rows = append(f.rows, row)
	return f.err
}

func newTestService(t *testing.T, store *memoryEvents, dedup *fakeDedup, mirror *fakeMirror, known knownAds) *service {
	t.Helper()
	deps := Deps{
		Store:  store,
		Ads:    known,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	if dedup != nil {
		deps.Dedup = dedup
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	svc, err := NewService(deps, 30*time.Minute)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.(*service)
}

func TestRecordDeduplicatesWithinWindow(t *testing.T) {
	adID := uuid.New()
	store := &memoryEvents{}
	svc := newTestService(t, store, &fakeDedup{keys: map[string]bool{}}, nil, knownAds{adID: true})

	event := Event{AdID: adID, Type: enums.AdEventTypeImpression, UserAgent: browserUA, IP: "203.0.113.7"}
	first, err := svc.Record(context.Background(), event)
	if err != nil || first != OutcomeRecorded {
		t.Fatalf("expected recorded, got %v (%v)", first, err)
	}
	second, err := svc.Record(context.Background(), event)
	if err != nil || second != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v (%v)", second, err)
	}

	click := event
	click.Type = enums.AdEventTypeClick
	if out, _ := svc.Record(context.Background(), click); out != OutcomeRecorded {
		t.Fatalf("expected click to be recorded separately, got %v", out)
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(store.rows))
	}
	if store.rows[0].Source != enums.AdEventSourceProgrammatic {
		t.Fatalf("expected default source, got %s", store.rows[0].Source)
	}
}

func TestRecordFallsBackToDatabaseWindow(t *testing.T) {
	adID := uuid.New()
	store := &memoryEvents{}
	svc := newTestService(t, store, &fakeDedup{err: errors.New("redis down")}, nil, knownAds{adID: true})
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	event := Event{AdID: adID, Type: enums.AdEventTypeClick, UserAgent: browserUA, IP: "198.51.100.1"}
	if out, _ := svc.Record(context.Background(), event); out != OutcomeRecorded {
		t.Fatalf("expected recorded, got %v", out)
	}
	if out, _ := svc.Record(context.Background(), event); out != OutcomeDuplicate {
		t.Fatalf("expected duplicate from database window, got %v", out)
	}

	now = now.Add(31 * time.Minute)
	if out, _ := svc.Record(context.Background(), event); out != OutcomeRecorded {
		t.Fatalf("expected recorded after window, got %v", out)
	}
}

func TestRecordDropsBots(t *testing.T) {
	adID := uuid.New()
	store := &memoryEvents{}
	svc := newTestService(t, store, nil, nil, knownAds{adID: true})

	out, err := svc.Record(context.Background(), Event{
		AdID:      adID,
		Type:      enums.AdEventTypeImpression,
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		IP:        "66.249.66.1",
	})
	if err != nil || out != OutcomeBot {
		t.Fatalf("expected bot, got %v (%v)", out, err)
	}
	if len(store.rows) != 0 {
		t.Fatal("expected bot event to be dropped")
	}
}

func TestRecordUnknownAd(t *testing.T) {
	svc := newTestService(t, &memoryEvents{}, nil, nil, knownAds{})
	_, err := svc.Record(context.Background(), Event{AdID: uuid.New(), Type: enums.AdEventTypeClick, UserAgent: browserUA})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordRejectsUnknownType(t *testing.T) {
	svc := newTestService(t, &memoryEvents{}, nil, nil, knownAds{})
	_, err := svc.Record(context.Background(), Event{AdID: uuid.New(), Type: "hover"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordMirrorFailureDoesNotFail(t *testing.T) {
	adID := uuid.New()
	mirror := &fakeMirror{err: errors.New("bigquery down")}
	svc := newTestService(t, &memoryEvents{}, nil, mirror, knownAds{adID: true})

	out, err := svc.Record(context.Background(), Event{AdID: adID, Type: enums.AdEventTypeImpression, UserAgent: browserUA, IP: "192.0.2.1"})
	if err != nil || out != OutcomeRecorded {
		t.Fatalf("expected recorded despite mirror failure, got %v (%v)", out, err)
	}
	if len(mirror.rows) != 1 {
		t.Fatalf("expected mirror attempt, got %d", len(mirror.rows))
	}
	if mirror.rows[0].AdID != adID.String() || mirror.rows[0].Type != "impression" {
		t.Fatalf("unexpected mirror row %+v", mirror.rows[0])
	}
}

func TestCounts(t *testing.T) {
	adID := uuid.New()
	store := &memoryEvents{rows: []models.AdEvent{
		{AdID: adID, Type: enums.AdEventTypeImpression},
		{AdID: adID, Type: enums.AdEventTypeImpression},
		{AdID: adID, Type: enums.AdEventTypeClick},
		{AdID: uuid.New(), Type: enums.AdEventTypeClick},
	}}
	svc := newTestService(t, store, nil, nil, knownAds{adID: true})

	counts, err := svc.Counts(context.Background(), adID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Impressions != 2 || counts.Clicks != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint(browserUA, "203.0.113.7")
	b := Fingerprint(" "+browserUA+" ", "203.0.113.7")
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected fingerprints %q %q", a, b)
	}
	if a == Fingerprint(browserUA, "203.0.113.8") {
		t.Fatal("expected different IPs to produce different fingerprints")
	}
}

func TestParseClient(t *testing.T) {
	if !ParseClient("").Bot {
		t.Fatal("expected empty agent to be treated as bot")
	}
	client := ParseClient(browserUA)
	if client.Bot {
		t.Fatal("expected browser agent not to be a bot")
	}
	if client.Browser != "Chrome" {
		t.Fatalf("expected Chrome, got %q", client.Browser)
	}
}
