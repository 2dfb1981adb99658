package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/adboard-backend/api/controllers"
	"github.com/angelmondragon/adboard-backend/api/middleware"
	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analytics"
	"github.com/angelmondragon/adboard-backend/internal/checkout"
	"github.com/angelmondragon/adboard-backend/internal/search"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps carries the services the HTTP surface dispatches to.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Checkout  checkout.Service
	Ads       ads.Service
	Search    search.Service
	Analytics analytics.Service
	Limiter   rateLimiter
	Gatherer  prometheus.Gatherer
	Quote     controllers.PriceQuoteConfig
	Readiness []controllers.ReadinessCheck
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, "method not allowed"))
	})

	createPolicy := middleware.NewRateLimitPolicy("create", cfg.RateLimit.CreateWindow, cfg.RateLimit.CreateIPLimit)
	eventPolicy := middleware.NewRateLimitPolicy("event", cfg.RateLimit.EventWindow, cfg.RateLimit.EventIPLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/ads", func(r chi.Router) {
		r.Get("/", controllers.SearchAds(deps.Search, logg))
		r.With(middleware.RateLimit(createPolicy, deps.Limiter, logg)).Post("/", controllers.CreateAd(deps.Checkout, logg))
		r.Get("/price", controllers.PriceQuote(deps.Quote, logg))

		r.Route("/{adId}", func(r chi.Router) {
			r.Get("/", controllers.GetAd(deps.Ads, logg))
			r.Get("/stats", controllers.AdStats(deps.Ads, deps.Analytics, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(eventPolicy, deps.Limiter, logg))
				r.Post("/impressions", controllers.RecordImpression(deps.Analytics, logg))
				r.Post("/clicks", controllers.RecordClick(deps.Analytics, logg))
			})
		})
	})

	r.Route("/api/admin/v1/ads/{adId}", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Get("/", controllers.AdminGetAd(deps.Ads, logg))
		r.Delete("/", controllers.AdminDeleteAd(deps.Ads, logg))
		r.Patch("/moderation", controllers.AdminUpdateModeration(deps.Ads, logg))
	})

	return r
}
