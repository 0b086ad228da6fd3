package domain

import "errors"

var (
	ErrInvalidCheckoutRequest       = errors.New("invalid checkout request")
	ErrProductNotFound              = errors.New("product not found")
	ErrPaymentSessionCreationFailed = errors.New("payment session creation failed")
	ErrWebhookVerificationFailed    = errors.New("webhook verification failed")
	ErrPersistence                  = errors.New("persistence failure")
)

// ErrorCode maps an error to the stable code reported to API clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCheckoutRequest):
		return "invalid_checkout_request"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrPaymentSessionCreationFailed):
		return "payment_session_creation_failed"
	case errors.Is(err, ErrWebhookVerificationFailed):
		return "webhook_verification_failed"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal_error"
	}
}
