package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusAbandoned OrderStatus = "abandoned"
)

type OrderItem struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Product   *Product `json:"product,omitempty"`
}

// Order amounts are whole currency units computed from catalog prices at
// creation time. PaymentRef is set only once an online payment is confirmed.
type Order struct {
	ID                string        `json:"id"`
	BuyerID           string        `json:"buyer_id"`
	Items             []OrderItem   `json:"items"`
	Amount            int64         `json:"amount"`
	AddressID         string        `json:"address_id"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	Paid              bool          `json:"paid"`
	PaymentRef        *string       `json:"payment_ref"`
	CheckoutSessionID *string       `json:"-"`
	Status            OrderStatus   `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`

	Address *Address `json:"address,omitempty"`
	Buyer   *Buyer   `json:"buyer,omitempty"`
}

// IsFinal reports whether the order is actionable by the seller: every COD
// order, and online orders once payment has been confirmed.
func (o *Order) IsFinal() bool {
	return o.PaymentMethod == PaymentMethodCOD || o.Paid
}
