package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/varsilias/chat-relay/internal/config"
	"github.com/varsilias/chat-relay/internal/middleware"
)

func RegisterRoutes(mux chi.Router, h *Handlers) {
	mux.Get("/", h.Root)
	mux.Get("/healthz", h.Health)
	mux.Get("/version", h.Version)

	mux.Get("/models", h.ListModels)
	mux.Post("/chat", h.Chat)
	mux.Get("/chat/ws", h.ChatWS)
	mux.Post("/export", h.Export)
	mux.Get("/usage", h.Usage)
}

// NewRouter builds the full handler chain.
func NewRouter(logger *slog.Logger, h *Handlers, cors config.CORS) http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.RequestID())
	mux.Use(middleware.AccessLog(logger))
	mux.Use(middleware.VersionHeader())
	mux.Use(middleware.CORS(cors))
	mux.Use(middleware.Recoverer(logger))

	RegisterRoutes(mux, h)
	return mux
}
