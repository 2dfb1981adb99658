package vectorindex

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/vectorize"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVectorStore struct {
	upserted []vectorize.Vector
	deleted  []string
	lastReq  vectorize.QueryRequest
	matches  []vectorize.Match
	queryErr error
}

func (f *fakeVectorStore) Upsert(_ context.Context, vectors []vectorize.Vector) error {
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func (f *fakeVectorStore) Query(_ context.Context, req vectorize.QueryRequest) ([]vectorize.Match, error) {
	f.lastReq = req
	return f.matches, f.queryErr
}

func (f *fakeVectorStore) DeleteByIDs(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeLoader struct {
	rows map[uuid.UUID]models.Ad
}

func (f fakeLoader) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Ad, error) {
	out := make([]models.Ad, 0, len(ids))
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testAd(title string, mutate func(*models.Ad)) models.Ad {
	ad := models.Ad{
		ID:        uuid.New(),
		Title:     title,
		Visible:   true,
		Tags:      pq.StringArray{"sports", "local"},
		ExpiresAt: fixedNow.Add(48 * time.Hour),
	}
	if mutate != nil {
		mutate(&ad)
	}
	return ad
}

func newTestService(t *testing.T, embed *fakeEmbedder, store *fakeVectorStore, rows ...models.Ad) *Service {
	t.Helper()
	loader := fakeLoader{rows: map[uuid.UUID]models.Ad{}}
	for _, row := range rows {
		loader.rows[row.ID] = row
	}
	svc, err := NewService(embed, store, loader, 500, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestIndexUpsertsDocumentAndMetadata(t *testing.T) {
	embed := &fakeEmbedder{}
	store := &fakeVectorStore{}
	svc := newTestService(t, embed, store)

	loc := "Lyon"
	ad := testAd("Bike repair", func(ad *models.Ad) {
		ad.LocationName = &loc
		ad.Interests = pq.StringArray{"cycling"}
		ad.Latitude, ad.Longitude = ptr(45.76), ptr(4.84)
	})
	if err := svc.Index(context.Background(), ad); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(store.upserted) != 1 || store.upserted[0].ID != ad.ID.String() {
		t.Fatalf("unexpected upserts %+v", store.upserted)
	}
	meta := store.upserted[0].Metadata
	if meta["visible"] != true || meta["lat"] != 45.76 || meta["tags"] != "sports,local" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	doc := embed.texts[0]
	for _, part := range []string{"Bike repair", "Lyon", "cycling", "sports, local"} {
		if !strings.Contains(doc, part) {
			t.Fatalf("document missing %q:\n%s", part, doc)
		}
	}
}

func TestRetrieveReappliesFiltersAndOrdersBySimilarity(t *testing.T) {
	strong := testAd("strong", nil)
	weak := testAd("weak", nil)
	hidden := testAd("hidden", func(ad *models.Ad) { ad.Visible = false })
	expired := testAd("expired", func(ad *models.Ad) { ad.ExpiresAt = fixedNow.Add(-time.Minute) })

	store := &fakeVectorStore{matches: []vectorize.Match{
		{ID: weak.ID.String(), Score: 0.4},
		{ID: hidden.ID.String(), Score: 0.99},
		{ID: strong.ID.String(), Score: 0.9},
		{ID: expired.ID.String(), Score: 0.95},
		{ID: "not-a-uuid", Score: 0.8},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store, strong, weak, hidden, expired)

	res := svc.Retrieve(context.Background(), "bikes", ads.Filters{})
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(res.Hits) != 2 || res.Hits[0].Ad.ID != strong.ID || res.Hits[1].Ad.ID != weak.ID {
		t.Fatalf("unexpected hits %+v", res.Hits)
	}
	if store.lastReq.TopK != vectorize.MaxTopK {
		t.Fatalf("expected topK %d, got %d", vectorize.MaxTopK, store.lastReq.TopK)
	}
	if _, ok := store.lastReq.Filter["visible"]; !ok {
		t.Fatal("expected visibility filter sent to the index")
	}
}

func TestRetrieveGeoOverridesSimilarity(t *testing.T) {
	center := geo.Point{Lat: 48.8566, Lng: 2.3522}
	near := testAd("near", func(ad *models.Ad) { ad.Latitude, ad.Longitude = ptr(48.86), ptr(2.35) })
	far := testAd("far", func(ad *models.Ad) { ad.Latitude, ad.Longitude = ptr(48.95), ptr(2.50) })
	outside := testAd("outside", func(ad *models.Ad) { ad.Latitude, ad.Longitude = ptr(51.5), ptr(-0.12) })

	store := &fakeVectorStore{matches: []vectorize.Match{
		{ID: far.ID.String(), Score: 0.9},
		{ID: outside.ID.String(), Score: 0.8},
		{ID: near.ID.String(), Score: 0.1},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store, near, far, outside)

	res := svc.Retrieve(context.Background(), "cafe", ads.Filters{Center: &center, RadiusKm: 30})
	if len(res.Hits) != 2 || res.Hits[0].Ad.ID != near.ID || res.Hits[1].Ad.ID != far.ID {
		t.Fatalf("expected distance order, got %+v", res.Hits)
	}
	if res.Hits[0].DistanceKm == nil {
		t.Fatal("expected distance on geo hits")
	}
}

func TestRetrieveDegradesOnBackendError(t *testing.T) {
	store := &fakeVectorStore{queryErr: errors.New("index unavailable")}
	svc := newTestService(t, &fakeEmbedder{}, store)

	res := svc.Retrieve(context.Background(), "anything", ads.Filters{})
	if !res.Degraded || res.Hits == nil || len(res.Hits) != 0 {
		t.Fatalf("expected empty degraded result, got %+v", res)
	}

	svc = newTestService(t, &fakeEmbedder{err: errors.New("ai down")}, &fakeVectorStore{})
	res = svc.Retrieve(context.Background(), "anything", ads.Filters{})
	if !res.Degraded || len(res.Hits) != 0 {
		t.Fatalf("expected degraded result on embed failure, got %+v", res)
	}
}

func TestRemove(t *testing.T) {
	store := &fakeVectorStore{}
	svc := newTestService(t, &fakeEmbedder{}, store)
	id := uuid.New()
	if err := svc.Remove(context.Background(), id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != id.String() {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
}

func ptr(v float64) *float64 { return &v }
