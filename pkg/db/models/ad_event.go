package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/pkg/enums"
)

// AdEvent is an append-only impression or click record.
type AdEvent struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AdID        uuid.UUID           `gorm:"column:ad_id;type:uuid;not null"`
	Type        enums.AdEventType   `gorm:"column:type;not null"`
	Source      enums.AdEventSource `gorm:"column:source;not null"`
	Fingerprint string              `gorm:"column:fingerprint;not null"`
	UserAgent   *string             `gorm:"column:user_agent"`
	IP          *string             `gorm:"column:ip"`
	Referrer    *string             `gorm:"column:referrer"`
	CreatedAt   time.Time           `gorm:"column:created_at;not null"`
}

func (AdEvent) TableName() string { return "ad_events" }
