package controllers

import (
	"net/http"

	"github.com/angelmondragon/adboard-backend/api/middleware"
	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/api/validators"
	adsvc "github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

type moderationRequest struct {
	Score   *int     `json:"score" validate:"required,gte=0,lte=10"`
	Reasons []string `json:"reasons,omitempty" validate:"omitempty,max=20,dive,max=500"`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,max=32"`
}

// AdminGetAd returns any listing, including hidden and expired ones.
func AdminGetAd(svc adsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ad, err := svc.GetAny(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAdView(*ad))
	}
}

// AdminUpdateModeration applies an operator correction to the moderation verdict.
func AdminUpdateModeration(svc adsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload moderationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithField(r.Context(), "admin_subject", middleware.AdminSubjectFromContext(r.Context()))
		ad, err := svc.UpdateModeration(ctx, id, adsvc.ModerationInput{
			Score:   *payload.Score,
			Reasons: payload.Reasons,
			Tags:    payload.Tags,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAdView(*ad))
	}
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// AdminDeleteAd removes the row and its vector entry.
func AdminDeleteAd(svc adsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := adIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithField(r.Context(), "admin_subject", middleware.AdminSubjectFromContext(r.Context()))
		if err := svc.Delete(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deleteResponse{ID: id.String(), Deleted: true})
	}
}
