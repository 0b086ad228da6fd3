package domain

import "time"

// OrderConfirmedEvent is published once an order becomes final: on COD
// placement and when an online payment is reconciled.
type OrderConfirmedEvent struct {
	OrderID       string        `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	BuyerEmail    string        `json:"buyer_email"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewOrderConfirmedEvent copies the order's ids, amount and payment details.
// BuyerEmail stays empty unless the order's buyer has been resolved.
func NewOrderConfirmedEvent(order *Order) OrderConfirmedEvent {
	event := OrderConfirmedEvent{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Amount,
	}
	if order.Buyer != nil {
		event.BuyerEmail = order.Buyer.Email
	}
	if order.PaymentRef != nil {
		event.PaymentRef = *order.PaymentRef
	}
	if order.PaidAt != nil {
		event.Timestamp = *order.PaidAt
	}
	return event
}
