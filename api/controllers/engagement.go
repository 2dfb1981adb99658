package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/adboard-backend/api/middleware"
	"github.com/angelmondragon/adboard-backend/api/responses"
	adsvc "github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analytics"
	"github.com/angelmondragon/adboard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

type engagementResponse struct {
	Recorded bool   `json:"recorded"`
	Outcome  string `json:"outcome"`
}

// RecordImpression records a deduplicated impression for the ad in the path.
func RecordImpression(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return recordEvent(svc, enums.AdEventTypeImpression, logg)
}

// RecordClick records a deduplicated click for the ad in the path.
func RecordClick(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return recordEvent(svc, enums.AdEventTypeClick, logg)
}

func recordEvent(svc analytics.Service, eventType enums.AdEventType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		source, err := enums.ParseAdEventSource(strings.TrimSpace(r.URL.Query().Get("source")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source").
				WithDetails(map[string]any{"field": "source"}))
			return
		}

		outcome, err := svc.Record(r.Context(), analytics.Event{
			AdID:      id,
			Type:      eventType,
			Source:    source,
			UserAgent: r.UserAgent(),
			IP:        middleware.ClientIP(r),
			Referrer:  r.Referer(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engagementResponse{
			Recorded: outcome == analytics.OutcomeRecorded,
			Outcome:  string(outcome),
		})
	}
}

type statsResponse struct {
	AdID        string `json:"ad_id"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
}

// AdStats returns engagement counters for a visible ad.
func AdStats(ads adsvc.Service, svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := ads.Get(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		counts, err := svc.Counts(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statsResponse{
			AdID:        id.String(),
			Impressions: counts.Impressions,
			Clicks:      counts.Clicks,
		})
	}
}
