package helpers

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/adboard-backend/internal/analysis"
	"github.com/angelmondragon/adboard-backend/pkg/db/models"
)

// Paid describes the verified payment backing a listing.
type Paid struct {
	Signature    string
	Payer        string
	DurationDays int
	PriceUnits   int64
}

// BuildAd assembles the row to persist. The author always comes from the
// verified payment.
func BuildAd(l Listing, paid Paid, verdict *analysis.Result, now time.Time) models.Ad {
	now = now.UTC()
	ad := models.Ad{
		ID:             uuid.New(),
		Author:         paid.Payer,
		Title:          strings.TrimSpace(l.Title),
		Description:    trimmed(l.Description),
		CallToAction:   trimmed(l.CallToAction),
		DestinationURL: trimmed(l.DestinationURL),
		MediaURL:       trimmed(l.MediaURL),
		LocationName:   trimmed(l.LocationName),
		Latitude:       l.Latitude,
		Longitude:      l.Longitude,
		AgeMin:         l.AgeMin,
		AgeMax:         l.AgeMax,
		Interests:      pq.StringArray(NormalizeInterests(l.Interests)),
		Tags:           pq.StringArray{},
		PaymentTx:      paid.Signature,
		DurationDays:   paid.DurationDays,
		PricePaid:      decimal.NewFromInt(paid.PriceUnits),
		CreatedAt:      now,
		ExpiresAt:      now.AddDate(0, 0, paid.DurationDays),
	}
	if verdict != nil {
		ad.ModerationScore = verdict.Score
		ad.Visible = verdict.Visible
		ad.ModerationReasons = datatypes.JSONSlice[string](nonNil(verdict.Reasons))
		if verdict.Score > 0 {
			ad.Tags = pq.StringArray(nonNil(verdict.Tags))
		}
	} else {
		ad.ModerationReasons = datatypes.JSONSlice[string]{}
	}
	return ad
}

// AnalysisInput maps listing content onto the analyzer's prompt input.
func AnalysisInput(l Listing) analysis.Input {
	return analysis.Input{
		Title:        strings.TrimSpace(l.Title),
		Description:  deref(l.Description),
		CallToAction: deref(l.CallToAction),
		Location:     deref(l.LocationName),
		Interests:    NormalizeInterests(l.Interests),
		AgeMin:       l.AgeMin,
		AgeMax:       l.AgeMax,
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
