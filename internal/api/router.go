package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/storechat/storechat/internal/api/handlers"
	"github.com/storechat/storechat/internal/api/middleware"
	"github.com/storechat/storechat/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(strings.Split(cfg.APIKeys, ",")).Middleware)

	// Health & info
	r.Get("/healthz", h.Health)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", h.VersionInfo)

		// Chat
		r.Post("/chat", h.Chat)
		r.Post("/chat/stream", h.ChatStream)

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/history", h.SessionHistory)
				r.Patch("/", h.RenameSession)
				r.Delete("/", h.DeleteSession)
			})
		})

		// Knowledge base
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.IngestDocument)
			r.Get("/search", h.SearchDocuments)
		})

		// Web search
		r.Get("/search/web", h.WebSearch)

		// Commerce schema
		r.Get("/schema", h.Schema)
	})

	return r
}
