package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the API base URL. Empty means api.stripe.com.
	APIURL     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Stripe talks to Stripe Checkout. One instance is built at startup and
// shared by the checkout and webhook handlers.
type Stripe struct {
	sc            *stripe.Client
	webhookSecret string
}

func NewStripe(cfg StripeConfig) *Stripe {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: cfg.HTTPClient,
		// Retries are left to the buyer; a retried POST could open a second session.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.Logger != nil {
		backendCfg.LeveledLogger = &leveledLogger{logger: cfg.Logger}
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	return &Stripe{
		sc:            stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg))),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Metadata.OrderID),
	}
	params.AddMetadata(metadataOrderID, req.Metadata.OrderID)
	params.AddMetadata(metadataBuyerID, req.Metadata.BuyerID)
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	session, err := s.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	return &Session{ID: session.ID, URL: session.URL}, nil
}

// VerifyEvent checks the Stripe-Signature header against the raw payload
// before anything in the payload is read.
func (s *Stripe) VerifyEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWebhookVerificationFailed, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted {
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", domain.ErrWebhookVerificationFailed, event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrWebhookVerificationFailed, err)
	}

	ref := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		ref = session.PaymentIntent.ID
	}

	out.CheckoutCompleted = &CheckoutCompleted{
		SessionID: session.ID,
		Metadata: Metadata{
			OrderID: session.Metadata[metadataOrderID],
			BuyerID: session.Metadata[metadataBuyerID],
		},
		PaymentReference: ref,
	}

	return out, nil
}

// NewHTTPClient returns the client used for provider calls. The timeout bounds
// every call, including ones whose context has no deadline.
func NewHTTPClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	return &http.Client{Timeout: timeout, Transport: transport}
}

type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
