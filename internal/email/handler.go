// Package email is a stand-in mail sink. It renders order notifications from
// named templates and logs them instead of delivering them.
package email

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
)

const (
	TemplateOrderPaid      = "order_paid"
	TemplateOrderPlacedCOD = "order_placed_cod"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

func newMessage(subject, body string) message {
	return message{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

var messages = map[string]message{
	TemplateOrderPaid: newMessage(`Payment received for order {{.OrderID}}`,
		`We received your payment of {{.Amount}} for order {{.OrderID}}{{with .PaymentRef}} (reference {{.}}){{end}}.`),
	TemplateOrderPlacedCOD: newMessage(`Order {{.OrderID}} placed`,
		`Your order {{.OrderID}} has been placed. Please pay {{.Amount}} on delivery.`),
}

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendRequest struct {
	To         string `json:"to"`
	Template   string `json:"template"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Subject string `json:"subject"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !strings.Contains(req.To, "@") || strings.TrimSpace(req.OrderID) == "" {
		h.writeError(w, http.StatusBadRequest, "recipient and order id are required")
		return
	}

	msg, ok := messages[req.Template]
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown template "+req.Template)
		return
	}

	subject, err := render(msg.subject, req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render subject", "error", err, "template", req.Template)
		h.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	body, err := render(msg.body, req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render body", "error", err, "template", req.Template)
		h.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	h.logger.InfoContext(r.Context(), "email sent", "to", req.To, "order_id", req.OrderID,
		"template", req.Template, "subject", subject, "body_bytes", len(body))

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent", Subject: subject})
}

func render(t *template.Template, req sendRequest) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
