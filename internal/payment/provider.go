// Package payment adapts the hosted-checkout payment provider.
package payment

import "time"

// EventCheckoutCompleted is the only provider event that confirms an order.
const EventCheckoutCompleted = "checkout.session.completed"

// Metadata correlates a provider session with an order. Keys are part of the
// wire contract with sessions already in flight; do not rename.
type Metadata struct {
	OrderID string
	BuyerID string
}

const (
	metadataOrderID = "orderId"
	metadataBuyerID = "buyerId"
)

type LineItem struct {
	Name string
	// UnitAmount is in the currency's minor unit.
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	LineItems  []LineItem
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   Metadata
	ExpiresAt  time.Time
}

type Session struct {
	ID  string
	URL string
}

// Event is a provider notification whose signature has been verified.
type Event struct {
	ID   string
	Type string
	// CheckoutCompleted is set only for EventCheckoutCompleted.
	CheckoutCompleted *CheckoutCompleted
}

type CheckoutCompleted struct {
	SessionID        string
	Metadata         Metadata
	PaymentReference string
}
