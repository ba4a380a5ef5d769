package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/vidrelay/internal/api/handler"
	mw "github.com/iconidentify/vidrelay/internal/api/middleware"
)

// RouterConfig carries the settings the router needs.
type RouterConfig struct {
	APIKey      string
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	downloadHandler *handler.DownloadHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
	cfg RouterConfig,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(cfg.Logger))
	r.Use(mw.Recovery(cfg.Logger))
	r.Use(mw.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// Downloads can run for many minutes, so no request timeout here;
	// the server write timeout bounds them.
	r.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Post("/download", downloadHandler.Download)
		r.Get("/stats", healthHandler.Stats)
	})

	return r
}
