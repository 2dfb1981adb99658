package search

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/vectorindex"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/pagination"
)

type stubStore struct {
	lastQuery ads.StructuredQuery
	calls     int
	result    *ads.StructuredResult
	err       error
}

func (s *stubStore) Search(_ context.Context, query ads.StructuredQuery) (*ads.StructuredResult, error) {
	s.calls++
	s.lastQuery = query
	return s.result, s.err
}

type stubRetriever struct {
	result vectorindex.SemanticResult
	calls  int
}

func (s *stubRetriever) Retrieve(context.Context, string, ads.Filters) vectorindex.SemanticResult {
	s.calls++
	return s.result
}

type recordingObserver struct {
	modes []string
}

func (r *recordingObserver) ObserveSearch(mode string, _ time.Duration, _ int) {
	r.modes = append(r.modes, mode)
}

func hits(n int) []ads.Hit {
	out := make([]ads.Hit, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ads.Hit{Ad: models.Ad{ID: uuid.New()}})
	}
	return out
}

func newTestService(t *testing.T, store *stubStore, retriever *stubRetriever, obs *recordingObserver) Service {
	t.Helper()
	var metrics observer
	if obs != nil {
		metrics = obs
	}
	svc, err := NewService(store, retriever, metrics, Config{DefaultLimit: 20, MaxLimit: 50}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSearchWithoutQueryIsStructured(t *testing.T) {
	store := &stubStore{result: &ads.StructuredResult{Hits: hits(3), Total: 42}}
	retriever := &stubRetriever{}
	obs := &recordingObserver{}
	svc := newTestService(t, store, retriever, obs)

	resp, err := svc.Search(context.Background(), Request{Pagination: pagination.Params{Limit: 500, Offset: 10}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Mode != ModeStructured || resp.Total != 42 || len(resp.Hits) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Limit != 50 || resp.Offset != 10 {
		t.Fatalf("expected capped limit, got limit=%d offset=%d", resp.Limit, resp.Offset)
	}
	if retriever.calls != 0 {
		t.Fatal("structured search must not touch the vector index")
	}
	if len(obs.modes) != 1 || obs.modes[0] != "structured" {
		t.Fatalf("unexpected observations %v", obs.modes)
	}
}

func TestSearchWithQueryPagesSemanticHits(t *testing.T) {
	store := &stubStore{}
	retriever := &stubRetriever{result: vectorindex.SemanticResult{Hits: hits(5)}}
	svc := newTestService(t, store, retriever, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "bikes", Pagination: pagination.Params{Limit: 2, Offset: 2}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Mode != ModeSemantic || resp.Total != 5 || len(resp.Hits) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Hits[0].Ad.ID != retriever.result.Hits[2].Ad.ID {
		t.Fatal("expected offset applied to semantic hits")
	}
	if store.calls != 0 {
		t.Fatal("semantic search must not hit the structured store")
	}
}

func TestSearchFallsBackToKeywordWhenDegraded(t *testing.T) {
	store := &stubStore{result: &ads.StructuredResult{Hits: hits(1), Total: 1}}
	retriever := &stubRetriever{result: vectorindex.SemanticResult{Hits: []ads.Hit{}, Degraded: true}}
	svc := newTestService(t, store, retriever, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "  road bike ", Filters: ads.Filters{Tags: []string{"sports"}}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Mode != ModeKeywordFallback || resp.Total != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if store.lastQuery.Filters.Keyword != "road bike" || len(store.lastQuery.Filters.Tags) != 1 {
		t.Fatalf("unexpected fallback filters %+v", store.lastQuery.Filters)
	}
}

func TestSearchWarnsWhenRadiusResultsAreCapped(t *testing.T) {
	var buf bytes.Buffer
	store := &stubStore{result: &ads.StructuredResult{Hits: hits(2), Total: 2, Truncated: true}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	svc, err := NewService(store, &stubRetriever{}, nil, Config{DefaultLimit: 20, MaxLimit: 50}, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	center := geo.Point{Lat: 40, Lng: -74}
	resp, err := svc.Search(context.Background(), Request{Filters: ads.Filters{Center: &center, RadiusKm: 20000}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("expected capped hits to be returned, got %d", len(resp.Hits))
	}
	if !bytes.Contains(buf.Bytes(), []byte("candidate cap")) {
		t.Fatalf("expected a cap warning, got %q", buf.String())
	}
}

func TestSearchPropagatesStoreErrors(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	svc := newTestService(t, store, &stubRetriever{}, nil)
	if _, err := svc.Search(context.Background(), Request{}); err == nil {
		t.Fatal("expected structured store error")
	}
}
