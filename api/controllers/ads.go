package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/api/validators"
	adsvc "github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/checkout"
	"github.com/angelmondragon/adboard-backend/internal/checkout/helpers"
	"github.com/angelmondragon/adboard-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

type createAdRequest struct {
	PaymentTx      string   `json:"payment_tx" validate:"required,signature"`
	DurationDays   int      `json:"duration_days" validate:"required,min=1"`
	Title          string   `json:"title" validate:"required,max=100"`
	Description    *string  `json:"description,omitempty" validate:"omitempty,max=1000"`
	CallToAction   *string  `json:"call_to_action,omitempty" validate:"omitempty,max=50"`
	DestinationURL *string  `json:"destination_url,omitempty" validate:"omitempty,max=2048,httpurl"`
	MediaURL       *string  `json:"media_url,omitempty" validate:"omitempty,max=2048,httpurl"`
	LocationName   *string  `json:"location_name,omitempty" validate:"omitempty,max=100"`
	Latitude       *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	AgeMin         *int     `json:"age_min,omitempty" validate:"omitempty,gte=0,lte=120"`
	AgeMax         *int     `json:"age_max,omitempty" validate:"omitempty,gte=0,lte=120"`
	Interests      []string `json:"interests,omitempty" validate:"omitempty,max=5,dive,max=32"`
}

func (r createAdRequest) toInput() checkout.CreateInput {
	return checkout.CreateInput{
		Listing: helpers.Listing{
			Title:          strings.TrimSpace(r.Title),
			Description:    validators.SanitizeOptional(r.Description, 1000),
			CallToAction:   validators.SanitizeOptional(r.CallToAction, 50),
			DestinationURL: validators.SanitizeOptional(r.DestinationURL, 2048),
			MediaURL:       validators.SanitizeOptional(r.MediaURL, 2048),
			LocationName:   validators.SanitizeOptional(r.LocationName, 100),
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			AgeMin:         r.AgeMin,
			AgeMax:         r.AgeMax,
			Interests:      r.Interests,
		},
		PaymentTx:    strings.TrimSpace(r.PaymentTx),
		DurationDays: r.DurationDays,
	}
}

type createAdResponse struct {
	Ad        adView `json:"ad"`
	Duplicate bool   `json:"duplicate"`
}

// CreateAd runs the paid creation workflow. Replays of a processed payment return 200.
func CreateAd(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "creation service unavailable"))
			return
		}

		var payload createAdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Execute(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if outcome.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, createAdResponse{Ad: newAdView(*outcome.Ad), Duplicate: outcome.Duplicate})
	}
}

// GetAd returns one visible, unexpired listing.
func GetAd(svc adsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ad, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAdView(*ad))
	}
}

type priceQuoteResponse struct {
	pricing.Quote
	TreasuryAccount string `json:"treasury_account"`
	TokenMint       string `json:"token_mint,omitempty"`
}

// PriceQuoteConfig describes where clients send payment.
type PriceQuoteConfig struct {
	Schedule        pricing.Schedule
	MaxDurationDays int
	Decimals        int32
	TreasuryAccount string
	TokenMint       string
}

// PriceQuote tells a client how much to transfer before creating a listing.
func PriceQuote(cfg PriceQuoteConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxDays := cfg.MaxDurationDays
		if maxDays <= 0 {
			maxDays = 90
		}
		days, err := validators.ParseQueryInt(r, "duration_days", 1, 1, maxDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hasMedia := false
		if raw := strings.TrimSpace(r.URL.Query().Get("has_media")); raw != "" {
			hasMedia, err = strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "has_media must be a boolean").
					WithDetails(map[string]any{"field": "has_media"}))
				return
			}
		}

		quote, err := cfg.Schedule.Quote(days, hasMedia, cfg.Decimals)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid duration"))
			return
		}
		responses.WriteSuccess(w, priceQuoteResponse{
			Quote:           quote,
			TreasuryAccount: cfg.TreasuryAccount,
			TokenMint:       cfg.TokenMint,
		})
	}
}

func adIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "adId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ad id").WithDetails(map[string]any{"field": "adId"})
	}
	return id, nil
}
