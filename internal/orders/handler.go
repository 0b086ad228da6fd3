package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/domain"
)

type FinalOrderLister interface {
	ListFinal(ctx context.Context, buyerID string) ([]domain.Order, error)
}

// Handler serves the read side: a buyer's own final orders and, for the
// seller, every final order. Neither endpoint paginates.
type Handler struct {
	repo   FinalOrderLister
	logger *slog.Logger
}

func NewHandler(repo FinalOrderLister, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	buyerID := accounts.BuyerID(r.Context())
	if buyerID == "" {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
		return
	}

	h.list(w, r, buyerID)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, buyerID string) {
	orders, err := h.repo.ListFinal(r.Context(), buyerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list orders", "error", err, "buyer_id", buyerID)
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "failed to load orders",
			"code":    domain.ErrorCode(domain.ErrPersistence),
		})
		return
	}

	h.logger.InfoContext(r.Context(), "orders listed", "count", len(orders), "buyer_id", buyerID)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
