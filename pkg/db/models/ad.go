package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Ad is a paid, moderated classified listing.
type Ad struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Author            string                      `gorm:"column:author;not null"`
	Title             string                      `gorm:"column:title;not null"`
	Description       *string                     `gorm:"column:description"`
	CallToAction      *string                     `gorm:"column:call_to_action"`
	DestinationURL    *string                     `gorm:"column:destination_url"`
	MediaURL          *string                     `gorm:"column:media_url"`
	LocationName      *string                     `gorm:"column:location_name"`
	Latitude          *float64                    `gorm:"column:latitude"`
	Longitude         *float64                    `gorm:"column:longitude"`
	AgeMin            *int                        `gorm:"column:age_min"`
	AgeMax            *int                        `gorm:"column:age_max"`
	Interests         pq.StringArray              `gorm:"column:interests;type:text[];not null;default:'{}'"`
	Tags              pq.StringArray              `gorm:"column:tags;type:text[];not null;default:'{}'"`
	PaymentTx         string                      `gorm:"column:payment_tx;not null;uniqueIndex:ux_ads_payment_tx"`
	ModerationScore   int                         `gorm:"column:moderation_score;not null"`
	ModerationReasons datatypes.JSONSlice[string] `gorm:"column:moderation_reasons;type:jsonb;not null;default:'[]'"`
	Visible           bool                        `gorm:"column:visible;not null;default:false"`
	DurationDays      int                         `gorm:"column:duration_days;not null"`
	PricePaid         decimal.Decimal             `gorm:"column:price_paid;type:numeric(38,0);not null"`
	CreatedAt         time.Time                   `gorm:"column:created_at;not null"`
	ExpiresAt         time.Time                   `gorm:"column:expires_at;not null"`
	IndexedAt         *time.Time                  `gorm:"column:indexed_at"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Ad) TableName() string { return "ads" }

// HasGeo reports whether both coordinates are present.
func (a Ad) HasGeo() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// IsExpired reports whether the listing is past its expiry at now.
func (a Ad) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}
