// Package notify turns order confirmations into buyer emails.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/email"
)

type ConfirmationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewConfirmationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailRequest struct {
	To         string `json:"to"`
	Template   string `json:"template"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

// Handle consumes one order.confirmed payload. Malformed payloads are logged
// and skipped so they do not block the partition.
func (h *ConfirmationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed order confirmed event", "error", err)
		return nil
	}
	if event.OrderID == "" || event.BuyerID == "" {
		h.logger.ErrorContext(ctx, "dropping order confirmed event without ids", "order_id", event.OrderID)
		return nil
	}
	if event.BuyerEmail == "" {
		h.logger.WarnContext(ctx, "skipping confirmation email for buyer without address",
			"order_id", event.OrderID, "buyer_id", event.BuyerID)
		return nil
	}

	h.logger.InfoContext(ctx, "processing order confirmed event", "order_id", event.OrderID,
		"buyer_id", event.BuyerID, "payment_method", event.PaymentMethod)

	if err := h.sendEmail(ctx, confirmationEmail(event)); err != nil {
		h.logger.ErrorContext(ctx, "failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.InfoContext(ctx, "confirmation email sent", "order_id", event.OrderID)
	return nil
}

func confirmationEmail(event domain.OrderConfirmedEvent) emailRequest {
	req := emailRequest{
		To:         event.BuyerEmail,
		Template:   email.TemplateOrderPlacedCOD,
		OrderID:    event.OrderID,
		Amount:     event.Amount,
		PaymentRef: event.PaymentRef,
	}
	if event.PaymentMethod == domain.PaymentMethodOnline {
		req.Template = email.TemplateOrderPaid
	}
	return req
}

func (h *ConfirmationHandler) sendEmail(ctx context.Context, body emailRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
