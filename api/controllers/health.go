package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Adboard-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady runs every check and answers 503 when any of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Adboard-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		resp := readinessResponse{Status: "ready", Checks: map[string]string{}}
		status := http.StatusOK
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				resp.Checks[check.Name] = "unavailable"
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				if logg != nil {
					logg.Error(logg.WithField(ctx, "check", check.Name), "readiness check failed", err)
				}
				continue
			}
			resp.Checks[check.Name] = "ok"
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}
