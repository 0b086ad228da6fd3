// Package webhook reconciles payment provider notifications with orders.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

const (
	SignatureHeader = "Stripe-Signature"
	maxPayloadBytes = 64 << 10
)

type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (*payment.Event, error)
}

type PaymentConfirmer interface {
	// ConfirmPayment returns nil, nil when no order changed.
	ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*domain.Order, error)
}

type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	verifier  EventVerifier
	orders    PaymentConfirmer
	events    EventLog
	publisher Publisher
	metrics   *telemetry.StorefrontMetrics
	logger    *slog.Logger
}

// NewHandler wires the reconciliation endpoint. events, publisher and metrics
// may be nil.
func NewHandler(verifier EventVerifier, orders PaymentConfirmer, events EventLog, publisher Publisher,
	metrics *telemetry.StorefrontMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		verifier:  verifier,
		orders:    orders,
		events:    events,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

func (h *Handler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		h.reject(w, r, "invalid payload")
		return
	}

	event, err := h.verifier.VerifyEvent(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		h.logger.WarnContext(ctx, "webhook verification failed", "error", err)
		h.reject(w, r, "webhook verification failed")
		return
	}

	if h.alreadyProcessed(ctx, event.ID) {
		h.logger.InfoContext(ctx, "webhook event already processed", "event_id", event.ID)
		h.metrics.RecordWebhookEvent(ctx, telemetry.WebhookDuplicate)
		h.writeReceived(w)
		return
	}

	if event.Type != payment.EventCheckoutCompleted || event.CheckoutCompleted == nil {
		h.logger.InfoContext(ctx, "ignoring webhook event", "event_id", event.ID, "type", event.Type)
		h.metrics.RecordWebhookEvent(ctx, telemetry.WebhookIgnored)
		h.writeReceived(w)
		return
	}

	completed := event.CheckoutCompleted
	orderID := completed.Metadata.OrderID
	if orderID == "" {
		h.logger.WarnContext(ctx, "checkout session without order metadata", "event_id", event.ID, "session_id", completed.SessionID)
		h.reject(w, r, "missing order metadata")
		return
	}

	order, err := h.orders.ConfirmPayment(ctx, orderID, completed.PaymentReference)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to confirm payment", "error", err, "event_id", event.ID, "order_id", orderID)
		h.metrics.RecordWebhookEvent(ctx, telemetry.WebhookFailed)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"received": false,
			"code":     domain.ErrorCode(domain.ErrPersistence),
		})
		return
	}

	if order == nil {
		h.logger.InfoContext(ctx, "payment confirmation was a no-op", "event_id", event.ID, "order_id", orderID)
		h.metrics.RecordWebhookEvent(ctx, telemetry.WebhookDuplicate)
		h.remember(ctx, event.ID)
		h.writeReceived(w)
		return
	}

	if order.BuyerID != completed.Metadata.BuyerID {
		h.logger.WarnContext(ctx, "webhook buyer does not match order owner", "order_id", order.ID,
			"order_buyer_id", order.BuyerID, "metadata_buyer_id", completed.Metadata.BuyerID)
	}

	h.publishConfirmed(ctx, order)
	h.remember(ctx, event.ID)
	h.metrics.RecordWebhookEvent(ctx, telemetry.WebhookConfirmed)

	h.logger.InfoContext(ctx, "order payment confirmed", "event_id", event.ID, "order_id", order.ID,
		"buyer_id", order.BuyerID, "amount", order.Amount)
	h.writeReceived(w)
}

// alreadyProcessed consults the event log. Lookup failures fall through to the
// database guard.
func (h *Handler) alreadyProcessed(ctx context.Context, eventID string) bool {
	if h.events == nil || eventID == "" {
		return false
	}

	seen, err := h.events.Seen(ctx, eventID)
	if err != nil {
		h.logger.WarnContext(ctx, "event log lookup failed", "error", err, "event_id", eventID)
		return false
	}
	return seen
}

func (h *Handler) remember(ctx context.Context, eventID string) {
	if h.events == nil || eventID == "" {
		return
	}
	if err := h.events.Remember(ctx, eventID); err != nil {
		h.logger.WarnContext(ctx, "failed to record processed event", "error", err, "event_id", eventID)
	}
}

func (h *Handler) publishConfirmed(ctx context.Context, order *domain.Order) {
	if h.publisher == nil {
		return
	}

	if err := h.publisher.Publish(ctx, order.ID, domain.NewOrderConfirmedEvent(order)); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish order confirmed event", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, message string) {
	h.metrics.RecordWebhookEvent(r.Context(), telemetry.WebhookRejected)
	h.writeJSON(w, http.StatusBadRequest, map[string]any{
		"received": false,
		"message":  message,
		"code":     domain.ErrorCode(domain.ErrWebhookVerificationFailed),
	})
}

func (h *Handler) writeReceived(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
