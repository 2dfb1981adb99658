package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/api/validators"
	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/search"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/pagination"
)

const (
	maxQueryLength = 500
	maxRadiusKm    = 20000
	maxOffset      = 10000
)

type searchResponse struct {
	Ads    []adView `json:"ads"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Mode   string   `json:"mode"`
}

// SearchAds serves hybrid search: semantic when q is present, structured otherwise.
func SearchAds(svc search.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseSearchRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if req.Query != "" {
			ctx = logg.WithField(ctx, "query_length", len(req.Query))
		}
		resp, err := svc.Search(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search failed"))
			return
		}

		responses.WriteSuccess(w, searchResponse{
			Ads:    newHitViews(resp.Hits),
			Total:  resp.Total,
			Limit:  resp.Limit,
			Offset: resp.Offset,
			Mode:   string(resp.Mode),
		})
	}
}

func parseSearchRequest(r *http.Request) (search.Request, error) {
	query := validators.SanitizeString(r.URL.Query().Get("q"), maxQueryLength)

	lat, err := validators.ParseOptionalQueryFloat(r, "lat", -90, 90)
	if err != nil {
		return search.Request{}, err
	}
	lng, err := validators.ParseOptionalQueryFloat(r, "lng", -180, 180)
	if err != nil {
		return search.Request{}, err
	}
	radius, err := validators.ParseOptionalQueryFloat(r, "radius_km", 0, maxRadiusKm)
	if err != nil {
		return search.Request{}, err
	}
	ageMin, err := validators.ParseOptionalQueryInt(r, "age_min", 0, 120)
	if err != nil {
		return search.Request{}, err
	}
	ageMax, err := validators.ParseOptionalQueryInt(r, "age_max", 0, 120)
	if err != nil {
		return search.Request{}, err
	}
	if ageMin != nil && ageMax != nil && *ageMin > *ageMax {
		return search.Request{}, pkgerrors.New(pkgerrors.CodeValidation, "age_min must not exceed age_max")
	}
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return search.Request{}, err
	}
	offset, err := validators.ParseQueryInt(r, "offset", 0, 0, maxOffset)
	if err != nil {
		return search.Request{}, err
	}

	filters := ads.Filters{
		AgeMin:    ageMin,
		AgeMax:    ageMax,
		Interests: validators.ParseQueryList(r, "interests"),
		Tags:      validators.ParseQueryList(r, "tags"),
	}

	geoParams := 0
	for _, present := range []bool{lat != nil, lng != nil, radius != nil} {
		if present {
			geoParams++
		}
	}
	switch geoParams {
	case 0:
	case 3:
		if *radius <= 0 {
			return search.Request{}, pkgerrors.New(pkgerrors.CodeValidation, "radius_km must be positive").
				WithDetails(map[string]any{"field": "radius_km"})
		}
		filters.Center = &geo.Point{Lat: *lat, Lng: *lng}
		filters.RadiusKm = *radius
	default:
		return search.Request{}, pkgerrors.New(pkgerrors.CodeValidation, "lat, lng and radius_km must be supplied together")
	}

	return search.Request{
		Query:      strings.TrimSpace(query),
		Filters:    filters.Normalized(),
		Pagination: pagination.Params{Limit: limit, Offset: offset},
	}, nil
}
