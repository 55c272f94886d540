package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"permitflow/internal/config"
	"permitflow/internal/guard"
	"permitflow/internal/notify"
	"permitflow/internal/profile"
	"permitflow/internal/session"
)

// RouterDeps carries the wired application services.
type RouterDeps struct {
	Manager  *session.Manager
	Profiles *profile.Service
	Guard    *guard.Guard
	Feed     *notify.Feed
	Views    *ViewState
	Google   *OAuthHandler
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))

	m := &metrics{}
	r.Use(m.middleware())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler())

	authHandler := NewAuthHandler(deps.Manager, deps.Feed, deps.Views, cfg.RequireEmailVerification, logger)
	profileHandler := NewProfileHandler(deps.Profiles, logger)
	limiter := newRateLimiter(m)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.middleware())
				r.Post("/login", authHandler.Login)
				r.Post("/signup", authHandler.Signup)
			})
			r.Post("/logout", authHandler.Logout)

			if deps.Google != nil {
				r.Get("/google", deps.Google.InitiateGoogle)
				r.Get("/google/callback", deps.Google.CallbackGoogle)
			}
		})

		r.Get("/session", authHandler.Session)
		r.Get("/notifications", authHandler.Notifications)
		r.Get("/view", authHandler.View)

		// The marketplace catalog is public.
		r.Get("/workflows", profileHandler.Workflows)

		r.Group(func(r chi.Router) {
			r.Use(newGuardMiddleware(deps.Guard, deps.Manager))

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.Get)
				r.Put("/", profileHandler.Update)
				r.Post("/ensure", profileHandler.Ensure)
			})
			r.Route("/creators", func(r chi.Router) {
				r.Get("/me", profileHandler.GetCreator)
				r.Post("/", profileHandler.RegisterCreator)
			})
			r.Get("/purchases", profileHandler.Purchases)
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", profileHandler.Projects)
				r.Post("/", profileHandler.CreateProject)
			})
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
