package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/adboard-backend/api/responses"
	"github.com/angelmondragon/adboard-backend/api/validators"
	pkgAuth "github.com/angelmondragon/adboard-backend/pkg/auth"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

// AdminAuth validates an HS256 bearer token carrying role=admin.
func AdminAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := validators.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if !claims.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxAdminSubject, claims.Subject)
			if logg != nil {
				ctx = logg.WithField(ctx, "admin_subject", claims.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
