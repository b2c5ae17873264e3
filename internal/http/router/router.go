// Package router cablea las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/claimbridge/internal/http/handlers"
	mw "github.com/dropDatabas3/claimbridge/internal/http/middlewares"
	"github.com/dropDatabas3/claimbridge/internal/security/trigauth"
)

// Deps agrupa las dependencias del router.
type Deps struct {
	Triggers *handlers.Triggers
	Verifier *trigauth.Verifier // nil deshabilita auth (sólo dev)
	Ready    handlers.Pinger
	Metrics  http.Handler // nil deshabilita /metrics
}

// New arma el router completo.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Probes y métricas, sin auth.
	r.Get("/healthz", handlers.Healthz)
	r.Get("/readyz", handlers.Readyz(deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Triggers de la plataforma: recover primero, auth al final para que
	// los rechazos queden logueados con request_id.
	r.Route("/v1/triggers", func(r chi.Router) {
		r.Use(mw.WithRecover())
		r.Use(mw.WithRequestID())
		r.Use(mw.WithLogging())
		r.Use(mw.WithTriggerAuth(deps.Verifier))

		r.Post("/post-authentication", deps.Triggers.PostAuthentication)
		r.Post("/token-generation", deps.Triggers.TokenGeneration)
	})

	return r
}
