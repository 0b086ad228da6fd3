package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/domain"
)

const maxRequestBytes = 64 << 10

type Placer interface {
	PlaceCOD(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
	PlaceOnline(ctx context.Context, req PlaceOrderRequest, returnOrigin string) (*OnlineCheckout, error)
}

type Handler struct {
	placer Placer
	// returnOrigin resolves the request's Origin header to a trusted origin.
	returnOrigin func(requested string) string
	logger       *slog.Logger
}

func NewHandler(placer Placer, returnOrigin func(string) string, logger *slog.Logger) *Handler {
	return &Handler{
		placer:       placer,
		returnOrigin: returnOrigin,
		logger:       logger,
	}
}

type itemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items   []itemRequest `json:"items"`
	Address string        `json:"address"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (PlaceOrderRequest, bool) {
	buyerID := accounts.BuyerID(r.Context())
	if buyerID == "" {
		h.writeError(w, http.StatusUnauthorized, "Not authenticated", "")
		return PlaceOrderRequest{}, false
	}

	var body placeOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid data", domain.ErrorCode(domain.ErrInvalidCheckoutRequest))
		return PlaceOrderRequest{}, false
	}

	items := make([]domain.OrderItem, len(body.Items))
	for i, item := range body.Items {
		items[i] = domain.OrderItem{ProductID: item.Product, Quantity: item.Quantity}
	}

	return PlaceOrderRequest{BuyerID: buyerID, Items: items, AddressID: body.Address}, true
}

func (h *Handler) HandlePlaceCOD(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if _, err := h.placer.PlaceCOD(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order Placed Successfully"})
}

func (h *Handler) HandlePlaceOnline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	checkout, err := h.placer.PlaceOnline(r.Context(), req, h.returnOrigin(r.Header.Get("Origin")))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": checkout.RedirectURL})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "Failed to place order"
	switch {
	case errors.Is(err, domain.ErrInvalidCheckoutRequest):
		status, message = http.StatusBadRequest, "Invalid data"
	case errors.Is(err, domain.ErrProductNotFound):
		status, message = http.StatusBadRequest, "Product not found"
	case errors.Is(err, domain.ErrPaymentSessionCreationFailed):
		status, message = http.StatusBadGateway, "Error creating Stripe session"
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "failed to place order", "error", err)
	} else {
		h.logger.WarnContext(r.Context(), "order rejected", "error", err)
	}

	h.writeError(w, status, message, domain.ErrorCode(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]any{"success": false, "message": message}
	if code != "" {
		body["code"] = code
	}
	h.writeJSON(w, status, body)
}
