package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	repo   *ProductRepository
	logger *slog.Logger
}

func NewHandler(repo *ProductRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list products", "error", err)
		h.writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "failed to list products"})
		return
	}

	h.logger.InfoContext(r.Context(), "products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "missing product id"})
		return
	}

	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get product", "error", err, "product_id", id)
		h.writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "failed to get product"})
		return
	}

	if product == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "product not found"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
