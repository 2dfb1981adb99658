package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/enums"
)

// Counts aggregates recorded engagement for one ad.
type Counts struct {
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
}

// Repository persists engagement events.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends an event row.
func (r *Repository) Insert(ctx context.Context, event *models.AdEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ExistsSince reports whether the viewer already produced this event type for the ad after since.
func (r *Repository) ExistsSince(ctx context.Context, adID uuid.UUID, eventType enums.AdEventType, fingerprint string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AdEvent{}).
		Where("ad_id = ? AND type = ? AND fingerprint = ? AND created_at > ?", adID, eventType, fingerprint, since).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByAd returns impression and click totals for an ad.
func (r *Repository) CountByAd(ctx context.Context, adID uuid.UUID) (Counts, error) {
	var rows []struct {
		Type  enums.AdEventType
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.AdEvent{}).
		Select("type, COUNT(*) AS total").
		Where("ad_id = ?", adID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}
	var counts Counts
	for _, row := range rows {
		switch row.Type {
		case enums.AdEventTypeImpression:
			counts.Impressions = row.Total
		case enums.AdEventTypeClick:
			counts.Clicks = row.Total
		}
	}
	return counts, nil
}
