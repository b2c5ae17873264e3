package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"github.com/dropDatabas3/claimbridge/internal/security/trigauth"
)

// WithTriggerAuth exige un token de entrega firmado en cada request de
// trigger. Con verifier nil el auth queda deshabilitado (sólo dev local).
func WithTriggerAuth(v *trigauth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := v.FromRequest(r); err != nil {
				logger.From(r.Context()).Warn("trigger delivery rejected", logger.Err(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
