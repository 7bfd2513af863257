package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/partsplit-prereg/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/partsplit-prereg/internal/http/middleware"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Registration       *handlers.RegistrationHandler
	Uploads            *handlers.UploadsHandler
	AdminRegistrations *handlers.AdminRegistrationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter throttles /api per client IP; nil disables throttling.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics, local uploads)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Uploads != nil {
			public.Get("/uploads/{key}", cfg.Uploads.GetUpload)
		}
	})

	// Landing page API
	if cfg.Registration != nil {
		r.Route("/api", func(api chi.Router) {
			if cfg.RateLimiter != nil {
				api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			api.Post("/sessions", cfg.Registration.CreateSession)
			api.Route("/sessions/{id}", func(s chi.Router) {
				s.Get("/", cfg.Registration.GetSession)
				s.Delete("/", cfg.Registration.DeleteSession)
				s.Put("/asset", cfg.Registration.PutAsset)
				s.Delete("/asset", cfg.Registration.DeleteAsset)
				s.Post("/submit", cfg.Registration.Submit)
				s.Post("/reset", cfg.Registration.Reset)
			})
			api.Get("/previews/{ref}", cfg.Registration.GetPreview)
			api.Get("/phone/format", cfg.Registration.FormatPhone)
		})
	}

	// Admin routes (JWT protected)
	if cfg.AdminRegistrations != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/registrations", cfg.AdminRegistrations.List)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
