package summary

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mastermarket/mastermarket/internal/platform/httpx"
)

// Handler exposes summary endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs summary handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers summary routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/summary", h.handleProduct)
	r.Get("/generics/{id}/summary", h.handleGeneric)
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "product id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ResolveID(r.Context(), id)
	h.respond(w, out, err)
}

func (h *Handler) handleGeneric(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "generic id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Resolve(r.Context(), Generic(id))
	h.respond(w, out, err)
}

func (h *Handler) respond(w http.ResponseWriter, out Summary, err error) {
	if err != nil {
		if httpx.StatusOf(err) == http.StatusInternalServerError {
			h.logger.Error("resolve summary", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
