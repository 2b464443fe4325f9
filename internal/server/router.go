package server

import (
	"net/http"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api/handlers"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes int64 = 5 * 1024 * 1024

type RouterConfig struct {
	APIToken      string
	Logger        *zap.Logger
	GateHandler   *handlers.GateHandler
	SchemaHandler *handlers.SchemaHandler
	EntryHandler  *handlers.EntryHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BearerToken(cfg.APIToken))

		r.Post("/evaluate", cfg.GateHandler.Evaluate)
		r.Post("/validate", cfg.GateHandler.Validate)
		r.Post("/fingerprint", cfg.GateHandler.Fingerprint)

		r.Get("/schemas", cfg.SchemaHandler.List)
		r.Get("/schemas/{type}", cfg.SchemaHandler.Get)

		if cfg.EntryHandler != nil {
			r.Post("/entries", cfg.EntryHandler.Create)
			r.Get("/collections", cfg.EntryHandler.Stats)
		}
	})

	return r
}
