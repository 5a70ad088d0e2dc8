package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/varsilias/chat-relay/internal/buildinfo"
	"github.com/varsilias/chat-relay/internal/chat"
	"github.com/varsilias/chat-relay/internal/config"
	"github.com/varsilias/chat-relay/internal/models"
	"github.com/varsilias/chat-relay/internal/transcript"
	"github.com/varsilias/chat-relay/internal/usage"
	"github.com/varsilias/chat-relay/pkg/types"
	"github.com/varsilias/chat-relay/pkg/utils"
)

type Handlers struct {
	log      *slog.Logger
	relay    *chat.Relay
	models   models.Manager
	usage    usage.Store
	exporter *transcript.Renderer
	cors     config.CORS
	validate *validator.Validate
	now      func() time.Time
}

func NewHandlers(log *slog.Logger, relay *chat.Relay, manager models.Manager, store usage.Store, exporter *transcript.Renderer, cors config.CORS) *Handlers {
	return &Handlers{
		log:      log,
		relay:    relay,
		models:   manager,
		usage:    store,
		exporter: exporter,
		cors:     cors,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Root GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

// Health GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	res := map[string]any{
		"status":    true,
		"message":   "chat-relay",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	utils.JSON(w, http.StatusOK, res)
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	res := map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	}

	utils.JSON(w, http.StatusOK, res)
}

// ListModels GET /models. Always 200; a failing backend yields an empty list.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"models": models.ListOrEmpty(r.Context(), h.models, h.log),
	})
}

// Chat POST /chat streams NDJSON records. Once validation passes the status
// is 200 no matter what the backend does.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	req, rerr := decodeChat(h.validate, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if rerr != nil {
		utils.JSON(w, rerr.Status, rerr)
		return
	}

	out := utils.NewNDJSON(w)
	if err := out.Start(); err != nil {
		h.log.Info("chat: client gone before stream start", "err", err)
		return
	}
	_ = h.relay.Stream(r.Context(), req, func(c types.Chunk) error {
		return out.Write(c)
	})
}

// Export POST /export[?format=json|md|html] returns the transcript as an
// attachment. Nothing is stored server-side.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	format, err := transcript.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	hist, rerr := decodeHistory(h.validate, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if rerr != nil {
		utils.JSON(w, rerr.Status, rerr)
		return
	}

	now := h.now()
	body, err := h.exporter.Render(format, hist, now)
	if err != nil {
		h.log.Error("export render", "format", format, "err", err)
		utils.Error(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+transcript.Filename(now, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Usage GET /usage
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	totals, err := h.usage.Totals(r.Context())
	if err != nil {
		h.log.Error("usage totals", "err", err)
		utils.Error(w, http.StatusServiceUnavailable, "usage totals unavailable")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"models": totals})
}
