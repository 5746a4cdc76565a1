package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/beside/server/internal/auth"
	"github.com/beside/server/internal/http/handlers"
	"github.com/beside/server/internal/middleware"
	"github.com/beside/server/internal/repo"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Auth           *handlers.AuthHandler
	Signals        *handlers.SignalHandler
	Health         *handlers.HealthHandler
	JWT            *auth.JWTService
	Users          repo.UserRepo
	AllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", deps.Health.ServeHTTP)

	// Login/registration get a per-IP limiter; everything else relies on the
	// bearer requirement.
	authLimiter := middleware.NewIPRateLimiter(rate.Limit(1), 5)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", deps.Health.ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(authLimiter))
				r.Post("/register", deps.Auth.HandleRegister)
				r.Post("/login", deps.Auth.HandleLogin)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(deps.JWT, deps.Users))
				r.Get("/me", deps.Auth.HandleMe)
				r.Put("/profile", deps.Auth.HandleUpdateProfile)
			})
		})

		r.Route("/signals", func(r chi.Router) {
			// Public with optional identity for self-exclusion.
			r.With(middleware.OptionalAuth(deps.JWT, deps.Users)).
				Get("/nearby", deps.Signals.HandleNearby)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(deps.JWT, deps.Users))
				r.Post("/", deps.Signals.HandleCreate)
				r.Get("/my", deps.Signals.HandleMySignals)
				r.Get("/responses", deps.Signals.HandleMyResponses)
				r.Put("/responses/{id}/thank", deps.Signals.HandleThank)
				r.Get("/statistics", deps.Signals.HandleStatistics)
				r.Post("/{id}/respond", deps.Signals.HandleRespond)
				r.Delete("/{id}", deps.Signals.HandleCancel)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.JWT, deps.Users))
			r.Put("/users/location", deps.Auth.HandleUpdateLocation)
		})
	})

	return r
}
