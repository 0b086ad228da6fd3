package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const testWebhookSecret = "whsec_test_secret"

func newTestStripe(apiURL string, timeout time.Duration) *Stripe {
	return NewStripe(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		APIURL:        apiURL,
		HTTPClient:    NewHTTPClient(timeout, http.DefaultTransport),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return signed.Header
}

func TestStripe_CreateCheckoutSession(t *testing.T) {
	t.Run("sends line items and correlation metadata", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
			assert.NoError(t, r.ParseForm())

			assert.Equal(t, "payment", r.PostForm.Get("mode"))
			assert.Equal(t, "order-1", r.PostForm.Get("metadata[orderId]"))
			assert.Equal(t, "buyer-1", r.PostForm.Get("metadata[buyerId]"))
			assert.Equal(t, "order-1", r.PostForm.Get("client_reference_id"))
			assert.Equal(t, "https://shop.example.com/my-orders", r.PostForm.Get("success_url"))
			assert.Equal(t, "https://shop.example.com/cart", r.PostForm.Get("cancel_url"))
			assert.Equal(t, "inr", r.PostForm.Get("line_items[0][price_data][currency]"))
			assert.Equal(t, "Apple", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
			assert.Equal(t, "10200", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))
			assert.NotEmpty(t, r.PostForm.Get("expires_at"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
		}))
		defer server.Close()

		session, err := newTestStripe(server.URL, 5*time.Second).CreateCheckoutSession(context.Background(), SessionRequest{
			LineItems:  []LineItem{{Name: "Apple", UnitAmount: 10200, Quantity: 2}},
			Currency:   "inr",
			SuccessURL: "https://shop.example.com/my-orders",
			CancelURL:  "https://shop.example.com/cart",
			Metadata:   Metadata{OrderID: "order-1", BuyerID: "buyer-1"},
			ExpiresAt:  time.Now().Add(30 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", session.ID)
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
	})

	t.Run("surfaces provider errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`)
		}))
		defer server.Close()

		_, err := newTestStripe(server.URL, 5*time.Second).CreateCheckoutSession(context.Background(), SessionRequest{Currency: "xxx"})
		assert.Error(t, err)
	})

	t.Run("gives up after the client timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		start := time.Now()
		_, err := newTestStripe(server.URL, 100*time.Millisecond).CreateCheckoutSession(context.Background(), SessionRequest{})
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("stops when the request context is cancelled", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := newTestStripe(server.URL, time.Minute).CreateCheckoutSession(ctx, SessionRequest{})
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestStripe_VerifyEvent(t *testing.T) {
	s := newTestStripe("", time.Second)

	completed := []byte(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"payment_intent": "pi_1",
			"metadata": {"orderId": "order-1", "buyerId": "buyer-1"}
		}}
	}`)

	t.Run("decodes a signed checkout completion", func(t *testing.T) {
		event, err := s.VerifyEvent(completed, sign(t, completed, testWebhookSecret))
		require.NoError(t, err)

		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventCheckoutCompleted, event.Type)
		require.NotNil(t, event.CheckoutCompleted)
		assert.Equal(t, "cs_1", event.CheckoutCompleted.SessionID)
		assert.Equal(t, "pi_1", event.CheckoutCompleted.PaymentReference)
		assert.Equal(t, Metadata{OrderID: "order-1", BuyerID: "buyer-1"}, event.CheckoutCompleted.Metadata)
	})

	t.Run("falls back to the session id without a payment intent", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_2","object":"checkout.session","metadata":{"orderId":"order-2"}}}}`)

		event, err := s.VerifyEvent(payload, sign(t, payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "cs_2", event.CheckoutCompleted.PaymentReference)
		assert.Empty(t, event.CheckoutCompleted.Metadata.BuyerID)
	})

	t.Run("leaves other event types undecoded", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_3"}}}`)

		event, err := s.VerifyEvent(payload, sign(t, payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "payment_intent.created", event.Type)
		assert.Nil(t, event.CheckoutCompleted)
	})

	t.Run("rejects a signature from another secret", func(t *testing.T) {
		_, err := s.VerifyEvent(completed, sign(t, completed, "whsec_attacker"))
		assert.ErrorIs(t, err, domain.ErrWebhookVerificationFailed)
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		header := sign(t, completed, testWebhookSecret)
		tampered := []byte(string(completed) + " ")

		_, err := s.VerifyEvent(tampered, header)
		assert.ErrorIs(t, err, domain.ErrWebhookVerificationFailed)
	})

	t.Run("rejects a missing signature", func(t *testing.T) {
		_, err := s.VerifyEvent(completed, "")
		assert.ErrorIs(t, err, domain.ErrWebhookVerificationFailed)
	})
}
