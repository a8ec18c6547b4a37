// Package api is the HTTP front-end of the authority: JSON endpoints for
// session management plus the classic validation endpoints.
package api

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	customMiddleware "github.com/auriga-id/casd/internal/api/middleware"
	"github.com/auriga-id/casd/internal/cas"
	"github.com/auriga-id/casd/internal/stats"
)

type Server struct {
	Router *chi.Mux
}

// ServerConfig carries the front-end knobs.
type ServerConfig struct {
	ThrottleRPS   float64
	ThrottleBurst int
}

// NewServer wires the middleware stack and routes.
func NewServer(svc *cas.CentralAuthenticationService, collector *stats.Collector, cfg ServerConfig) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Sentry before recovery so it sees the repanic.
	sentryHandler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
	})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	limiter := customMiddleware.NewIPRateLimiter(rate.Limit(cfg.ThrottleRPS), cfg.ThrottleBurst)
	r.Use(limiter.Middleware)

	h := NewCASHandler(svc, collector)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/stats", h.Stats)

	// Classic validation endpoints, queried by relying parties.
	r.Get("/validate", h.Validate)
	r.Get("/serviceValidate", h.ServiceValidate)
	r.Get("/proxyValidate", h.ProxyValidate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Delete("/sessions", h.LogoutPrincipal)
		r.Post("/grant", h.Grant)
	})

	return &Server{Router: r}
}
