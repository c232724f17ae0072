package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relicta-tech/deke/internal/httpserver/middleware"
)

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders())
	if len(s.config.CORSOrigins) > 0 {
		r.Use(s.corsMiddleware())
	}
	if s.config.RateLimit > 0 {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit, 0)))
	}

	h := s.handlers

	// Unauthenticated
	r.Get("/health", h.Health)
	r.Get("/metrics", h.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(s.config.APIKeys))

		r.Get("/health", h.Health)
		r.Post("/eval", h.Eval)
		r.Post("/check", h.Check)
		r.Post("/explain", h.Explain)

		r.Route("/policy-sets", func(r chi.Router) {
			r.Get("/", h.ListPolicySets)
			r.Get("/{name}", h.GetPolicySet)
			r.Post("/{name}/run", h.RunPolicySet)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Get("/{id}", h.GetReport)
		})
	})

	return r
}

// corsMiddleware returns configured CORS middleware.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
