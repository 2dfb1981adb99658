package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/vectorize"
)

type embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type vectorStore interface {
	Upsert(ctx context.Context, vectors []vectorize.Vector) error
	Query(ctx context.Context, req vectorize.QueryRequest) ([]vectorize.Match, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

type adLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Ad, error)
}

// SemanticResult is the re-filtered outcome of a similarity query.
type SemanticResult struct {
	Hits []ads.Hit
	// Degraded is set when the vector backend failed and the result is empty.
	Degraded bool
}

// Service writes ads into the vector index and queries it.
type Service struct {
	embed  embedder
	store  vectorStore
	loader adLoader
	topK   int
	logg   *logger.Logger
	now    func() time.Time
}

// NewService constructs the indexer/retriever.
func NewService(embed embedder, store vectorStore, loader adLoader, topK int, logg *logger.Logger) (*Service, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if loader == nil {
		return nil, fmt.Errorf("ad loader required")
	}
	if topK <= 0 || topK > vectorize.MaxTopK {
		topK = vectorize.MaxTopK
	}
	return &Service{
		embed:  embed,
		store:  store,
		loader: loader,
		topK:   topK,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Index embeds the ad and upserts it with filterable metadata.
func (s *Service) Index(ctx context.Context, ad models.Ad) error {
	values, err := s.embed.EmbedOne(ctx, DocumentText(ad))
	if err != nil {
		return fmt.Errorf("embed ad %s: %w", ad.ID, err)
	}
	if err := s.store.Upsert(ctx, []vectorize.Vector{{
		ID:       ad.ID.String(),
		Values:   values,
		Metadata: Metadata(ad),
	}}); err != nil {
		return fmt.Errorf("upsert ad %s: %w", ad.ID, err)
	}
	return nil
}

// Remove deletes vector entries. Missing entries are not an error.
func (s *Service) Remove(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	if err := s.store.DeleteByIDs(ctx, keys); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Retrieve runs a similarity query, reloads the matching rows and re-applies
// every filter locally. Backend failures yield an empty, degraded result.
func (s *Service) Retrieve(ctx context.Context, query string, filters ads.Filters) SemanticResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return SemanticResult{Hits: []ads.Hit{}}
	}

	vector, err := s.embed.EmbedOne(ctx, query)
	if err != nil {
		s.degraded(ctx, "embed query", err)
		return SemanticResult{Hits: []ads.Hit{}, Degraded: true}
	}

	matches, err := s.store.Query(ctx, vectorize.QueryRequest{
		Vector: vector,
		TopK:   s.topK,
		Filter: map[string]any{"visible": map[string]any{"$eq": true}},
	})
	if err != nil {
		s.degraded(ctx, "vector query", err)
		return SemanticResult{Hits: []ads.Hit{}, Degraded: true}
	}

	scores := make(map[uuid.UUID]float64, len(matches))
	ids := make([]uuid.UUID, 0, len(matches))
	for _, match := range matches {
		id, err := uuid.Parse(match.ID)
		if err != nil {
			continue
		}
		if _, dup := scores[id]; dup {
			continue
		}
		scores[id] = match.Score
		ids = append(ids, id)
	}

	rows, err := s.loader.FindByIDs(ctx, ids)
	if err != nil {
		s.degraded(ctx, "load matched ads", err)
		return SemanticResult{Hits: []ads.Hit{}, Degraded: true}
	}

	filters = filters.Normalized()
	now := s.now().UTC()
	hits := make([]ads.Hit, 0, len(rows))
	for _, row := range rows {
		distance, ok := filters.Match(row, now)
		if !ok {
			continue
		}
		score := scores[row.ID]
		hit := ads.Hit{Ad: row, Similarity: &score}
		if filters.HasGeo() {
			d := distance
			hit.DistanceKm = &d
		}
		hits = append(hits, hit)
	}

	if filters.HasGeo() {
		ads.SortByDistance(hits)
	} else {
		sort.SliceStable(hits, func(i, j int) bool {
			return *hits[i].Similarity > *hits[j].Similarity
		})
	}
	return SemanticResult{Hits: hits}
}

func (s *Service) degraded(ctx context.Context, step string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(ctx, fmt.Sprintf("semantic search degraded at %s: %v", step, err))
}
