package ads

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/adboard-backend/pkg/db"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/pagination"
)

// PaymentTxConstraint is the unique index guarding one ad per payment.
const PaymentTxConstraint = "ux_ads_payment_tx"

// MaxGeoCandidates caps the rows a radius query loads from the bounding box.
// The newest rows win when the box holds more.
const MaxGeoCandidates = 5000

var (
	// ErrNotFound is returned when no ad matches the lookup.
	ErrNotFound = errors.New("ad not found")
	// ErrDuplicatePayment is returned when an insert races another ad for the same payment.
	ErrDuplicatePayment = errors.New("payment already used by another ad")
)

// Hit is an ad plus its ranking data.
type Hit struct {
	Ad         models.Ad
	DistanceKm *float64
	Similarity *float64
}

// StructuredQuery is a filtered, paginated listing query.
type StructuredQuery struct {
	Filters    Filters
	Pagination pagination.Params
	Now        time.Time
}

// StructuredResult holds one page plus the unpaginated total. Truncated is set
// when a radius query hit the candidate cap, so Total is a lower bound.
type StructuredResult struct {
	Hits      []Hit
	Total     int64
	Truncated bool
}

// ModerationUpdate carries an administrative correction.
type ModerationUpdate struct {
	Score   int
	Reasons []string
	Tags    []string
}

// Repository persists ads.
type Repository struct {
	db     *gorm.DB
	geoCap int
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, geoCap: MaxGeoCandidates}
}

// WithTx returns a repository bound to the provided transaction. A nil tx
// keeps the pooled connection.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, geoCap: r.geoCap}
}

// Create inserts a new ad. A payment signature collision yields ErrDuplicatePayment.
func (r *Repository) Create(ctx context.Context, ad *models.Ad) error {
	if err := r.db.WithContext(ctx).Create(ad).Error; err != nil {
		if db.IsUniqueViolation(err, PaymentTxConstraint) {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// FindByID loads one ad.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	var ad models.Ad
	if err := r.db.WithContext(ctx).First(&ad, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ad, nil
}

// FindByPaymentTx loads the ad created by a payment signature.
func (r *Repository) FindByPaymentTx(ctx context.Context, signature string) (*models.Ad, error) {
	var ad models.Ad
	if err := r.db.WithContext(ctx).First(&ad, "payment_tx = ?", signature).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ad, nil
}

// FindByIDs loads ads in the order of ids, skipping ids that no longer exist.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Ad, error) {
	if len(ids) == 0 {
		return []models.Ad{}, nil
	}
	var rows []models.Ad
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Ad, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]models.Ad, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// Delete hard-deletes an ad. Deleting a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Ad{}).Error
}

// DeleteByIDs hard-deletes a batch inside tx and returns the affected row count.
func (r *Repository) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.WithTx(tx).db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Ad{})
	return res.RowsAffected, res.Error
}

// UpdateModeration applies an administrative correction and returns the updated row.
func (r *Repository) UpdateModeration(ctx context.Context, id uuid.UUID, update ModerationUpdate) (*models.Ad, error) {
	reasons := update.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	tags := update.Tags
	if tags == nil {
		tags = []string{}
	}
	res := r.db.WithContext(ctx).
		Model(&models.Ad{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"moderation_score":   update.Score,
			"moderation_reasons": datatypes.JSONSlice[string](reasons),
			"tags":               pq.StringArray(tags),
			"visible":            update.Score >= 5,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// MarkIndexed stamps the time the vector entry was last written.
func (r *Repository) MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Ad{}).
		Where("id = ?", id).
		UpdateColumn("indexed_at", at).
		Error
}

// ListUnindexed returns live, visible ads with no vector entry created before cutoff.
func (r *Repository) ListUnindexed(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Ad, error) {
	var rows []models.Ad
	err := r.db.WithContext(ctx).
		Where("indexed_at IS NULL").
		Where("visible = ?", true).
		Where("expires_at > ?", now).
		Where("created_at <= ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	return rows, err
}

// ListExpiredIDs locks and returns ads that expired before cutoff, oldest first.
// Rows locked by another transaction are skipped.
func (r *Repository) ListExpiredIDs(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.Ad{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("expires_at < ?", cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).
		Error
	return ids, err
}

// Search runs the structured listing query. With a geo filter the bounding box
// narrows rows in SQL and exact distances filter and order them in memory.
func (r *Repository) Search(ctx context.Context, query StructuredQuery) (*StructuredResult, error) {
	filters := query.Filters.Normalized()
	page := query.Pagination
	now := query.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	qb := r.filtered(ctx, filters, now)

	if filters.HasGeo() {
		var rows []models.Ad
		err := qb.
			Order("created_at DESC").
			Order("id DESC").
			Limit(r.geoCap + 1).
			Find(&rows).
			Error
		if err != nil {
			return nil, err
		}
		truncated := len(rows) > r.geoCap
		if truncated {
			rows = rows[:r.geoCap]
		}
		hits := make([]Hit, 0, len(rows))
		for _, row := range rows {
			distance, ok := filters.Match(row, now)
			if !ok {
				continue
			}
			d := distance
			hits = append(hits, Hit{Ad: row, DistanceKm: &d})
		}
		SortByDistance(hits)
		return &StructuredResult{
			Hits:      pagination.Window(hits, page),
			Total:     int64(len(hits)),
			Truncated: truncated,
		}, nil
	}

	var total int64
	if err := qb.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.Ad
	err := qb.
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, Hit{Ad: row})
	}
	return &StructuredResult{Hits: hits, Total: total}, nil
}

func (r *Repository) filtered(ctx context.Context, filters Filters, now time.Time) *gorm.DB {
	qb := r.db.WithContext(ctx).
		Model(&models.Ad{}).
		Where("visible = ?", true).
		Where("expires_at > ?", now)

	if filters.AgeMax != nil {
		qb = qb.Where("(age_min IS NULL OR age_min <= ?)", *filters.AgeMax)
	}
	if filters.AgeMin != nil {
		qb = qb.Where("(age_max IS NULL OR age_max >= ?)", *filters.AgeMin)
	}
	if len(filters.Interests) > 0 {
		qb = qb.Where("interests && ?", pq.StringArray(filters.Interests))
	}
	if len(filters.Tags) > 0 {
		qb = qb.Where("tags && ?", pq.StringArray(filters.Tags))
	}
	if filters.Keyword != "" {
		pattern := "%" + escapeLike(filters.Keyword) + "%"
		qb = qb.Where("(LOWER(title) LIKE LOWER(?) OR LOWER(COALESCE(description, '')) LIKE LOWER(?))", pattern, pattern)
	}
	if filters.HasGeo() {
		box := geo.BoundingBoxAround(*filters.Center, filters.RadiusKm)
		qb = qb.Where("latitude IS NOT NULL AND longitude IS NOT NULL").
			Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
		// a box crossing the antimeridian keeps only the latitude band
		if box.MinLng >= -180 && box.MaxLng <= 180 {
			qb = qb.Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng)
		}
	}
	return qb
}

// SortByDistance orders hits nearest first; ties keep newer ads first.
func SortByDistance(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		di, dj := distanceOf(hits[i]), distanceOf(hits[j])
		if di != dj {
			return di < dj
		}
		return hits[i].Ad.CreatedAt.After(hits[j].Ad.CreatedAt)
	})
}

func distanceOf(h Hit) float64 {
	if h.DistanceKm == nil {
		return 0
	}
	return *h.DistanceKm
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
