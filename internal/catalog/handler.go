package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mastermarket/mastermarket/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    func(http.Handler) http.Handler
}

// NewHandler constructs catalog handler. auth guards mutating routes.
func NewHandler(logger *slog.Logger, service *Service, auth func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/history", h.handleHistory)
	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Patch("/products/{id}", h.handlePatch)
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "product id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 100)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		h.logError("price history", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "product id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var patch ProductPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.PatchProduct(r.Context(), id, patch)
	if err != nil {
		h.logError("patch product", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) logError(msg string, err error) {
	if h.logger == nil || httpx.StatusOf(err) != http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
}
