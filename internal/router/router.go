package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coachdesk-backend/internal/handlers"
	"coachdesk-backend/internal/middleware"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Stopwatch *handlers.StopwatchHandler
	Students  *handlers.StudentHandler
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, limiter *middleware.RateLimiter, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth.Middleware)

		// ──── Auth Events ────
		r.Post("/auth/signed-out", h.Auth.SignedOut)

		// ──── Stopwatch Routes ────
		r.Route("/stopwatch", func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Get("/", h.Stopwatch.Get)
			r.Post("/start", h.Stopwatch.Start)
			r.Post("/pause", h.Stopwatch.Pause)
			r.Post("/resume", h.Stopwatch.Resume)
			r.Post("/stop", h.Stopwatch.Stop)
			r.Get("/daily", h.Stopwatch.Daily)
		})

		// ──── Coach Routes ────
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.Students.List)
			r.Get("/{id}/stopwatch", h.Students.Stopwatch)
			r.Get("/{id}/stopwatch/daily", h.Students.Daily)
		})
	})

	return r
}
