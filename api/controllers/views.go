package controllers

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
)

// adView is the public shape of a listing. Interests are exposed comma-joined.
type adView struct {
	ID                uuid.UUID `json:"id"`
	Author            string    `json:"author"`
	Title             string    `json:"title"`
	Description       *string   `json:"description,omitempty"`
	CallToAction      *string   `json:"call_to_action,omitempty"`
	DestinationURL    *string   `json:"destination_url,omitempty"`
	MediaURL          *string   `json:"media_url,omitempty"`
	LocationName      *string   `json:"location_name,omitempty"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	AgeMin            *int      `json:"age_min,omitempty"`
	AgeMax            *int      `json:"age_max,omitempty"`
	Interests         string    `json:"interests"`
	Tags              []string  `json:"tags"`
	PaymentTx         string    `json:"payment_tx"`
	ModerationScore   int       `json:"moderation_score"`
	ModerationReasons []string  `json:"moderation_reasons"`
	Visible           bool      `json:"visible"`
	DurationDays      int       `json:"duration_days"`
	PricePaid         string    `json:"price_paid"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	DistanceKm        *float64  `json:"distance_km,omitempty"`
	Similarity        *float64  `json:"similarity,omitempty"`
}

func newAdView(ad models.Ad) adView {
	tags := []string(ad.Tags)
	if tags == nil {
		tags = []string{}
	}
	reasons := []string(ad.ModerationReasons)
	if reasons == nil {
		reasons = []string{}
	}
	return adView{
		ID:                ad.ID,
		Author:            ad.Author,
		Title:             ad.Title,
		Description:       ad.Description,
		CallToAction:      ad.CallToAction,
		DestinationURL:    ad.DestinationURL,
		MediaURL:          ad.MediaURL,
		LocationName:      ad.LocationName,
		Latitude:          ad.Latitude,
		Longitude:         ad.Longitude,
		AgeMin:            ad.AgeMin,
		AgeMax:            ad.AgeMax,
		Interests:         strings.Join(ad.Interests, ","),
		Tags:              tags,
		PaymentTx:         ad.PaymentTx,
		ModerationScore:   ad.ModerationScore,
		ModerationReasons: reasons,
		Visible:           ad.Visible,
		DurationDays:      ad.DurationDays,
		PricePaid:         ad.PricePaid.String(),
		CreatedAt:         ad.CreatedAt,
		ExpiresAt:         ad.ExpiresAt,
	}
}

func newHitViews(hits []ads.Hit) []adView {
	out := make([]adView, 0, len(hits))
	for _, hit := range hits {
		view := newAdView(hit.Ad)
		view.DistanceKm = hit.DistanceKm
		view.Similarity = hit.Similarity
		out = append(out, view)
	}
	return out
}
