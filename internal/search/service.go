package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/vectorindex"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/pagination"
)

// Mode names the path that produced a result page.
type Mode string

const (
	ModeStructured      Mode = "structured"
	ModeSemantic        Mode = "semantic"
	ModeKeywordFallback Mode = "keyword_fallback"
)

type structuredStore interface {
	Search(ctx context.Context, query ads.StructuredQuery) (*ads.StructuredResult, error)
}

type retriever interface {
	Retrieve(ctx context.Context, query string, filters ads.Filters) vectorindex.SemanticResult
}

type observer interface {
	ObserveSearch(mode string, duration time.Duration, results int)
}

// Request is a hybrid search request.
type Request struct {
	Query      string
	Filters    ads.Filters
	Pagination pagination.Params
}

// Response is one ranked page.
type Response struct {
	Hits   []ads.Hit
	Total  int64
	Limit  int
	Offset int
	Mode   Mode
}

// Service merges semantic retrieval with structured filtering.
type Service interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

type service struct {
	store        structuredStore
	retriever    retriever
	metrics      observer
	logg         *logger.Logger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// Config bounds page sizes.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs the hybrid search coordinator. metrics may be nil.
func NewService(store structuredStore, retriever retriever, metrics observer, cfg Config, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("structured store required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever required")
	}
	return &service{
		store:        store,
		retriever:    retriever,
		metrics:      metrics,
		logg:         logg,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		now:          time.Now,
	}, nil
}

func (s *service) Search(ctx context.Context, req Request) (*Response, error) {
	started := s.now()
	page := req.Pagination.Normalize(s.defaultLimit, s.maxLimit)
	query := strings.TrimSpace(req.Query)

	var (
		resp *Response
		err  error
	)
	if query == "" {
		resp, err = s.structured(ctx, req.Filters, page, ModeStructured)
	} else {
		resp, err = s.semantic(ctx, query, req.Filters, page)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveSearch(string(resp.Mode), s.now().Sub(started), len(resp.Hits))
	}
	return resp, nil
}

func (s *service) structured(ctx context.Context, filters ads.Filters, page pagination.Params, mode Mode) (*Response, error) {
	result, err := s.store.Search(ctx, ads.StructuredQuery{
		Filters:    filters,
		Pagination: page,
		Now:        s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("structured search: %w", err)
	}
	if result.Truncated && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"radius_km":      filters.RadiusKm,
			"candidate_cap":  ads.MaxGeoCandidates,
			"matching_total": result.Total,
		})
		s.logg.Warn(logCtx, "radius search hit the candidate cap, results are partial")
	}
	return &Response{
		Hits:   result.Hits,
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
		Mode:   mode,
	}, nil
}

// semantic pages through the re-filtered vector hits. A degraded retriever
// falls back to structured search narrowed by the query as a keyword.
func (s *service) semantic(ctx context.Context, query string, filters ads.Filters, page pagination.Params) (*Response, error) {
	result := s.retriever.Retrieve(ctx, query, filters)
	if result.Degraded {
		if s.logg != nil {
			s.logg.Warn(ctx, "vector search unavailable, using keyword fallback")
		}
		fallback := filters
		fallback.Keyword = query
		return s.structured(ctx, fallback, page, ModeKeywordFallback)
	}

	return &Response{
		Hits:   pagination.Window(result.Hits, page),
		Total:  int64(len(result.Hits)),
		Limit:  page.Limit,
		Offset: page.Offset,
		Mode:   ModeSemantic,
	}, nil
}
