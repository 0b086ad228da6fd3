// Package checkout places cash-on-delivery and hosted-checkout orders.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/pricing"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

var tracer = otel.Tracer("storefront/checkout")

// MaxItemQuantity is the largest quantity order_items.quantity can hold.
const MaxItemQuantity = math.MaxInt32

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	AttachCheckoutSession(ctx context.Context, orderID, sessionID string) error
}

type Accounts interface {
	GetBuyer(ctx context.Context, buyerID string) (*domain.Buyer, error)
	GetAddress(ctx context.Context, buyerID, addressID string) (*domain.Address, error)
}

type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Options struct {
	Currency string
	// MinorUnits converts whole currency units to the provider's minor unit.
	MinorUnits      int64
	ProviderTimeout time.Duration
	SessionTTL      time.Duration
}

type Service struct {
	pricing   *pricing.Engine
	orders    OrderStore
	accounts  Accounts
	sessions  SessionCreator
	publisher Publisher
	metrics   *telemetry.StorefrontMetrics
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. publisher and metrics may be nil.
func NewService(engine *pricing.Engine, orders OrderStore, accounts Accounts, sessions SessionCreator,
	publisher Publisher, metrics *telemetry.StorefrontMetrics, opts Options, logger *slog.Logger) *Service {
	return &Service{
		pricing:   engine,
		orders:    orders,
		accounts:  accounts,
		sessions:  sessions,
		publisher: publisher,
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type PlaceOrderRequest struct {
	BuyerID   string
	Items     []domain.OrderItem
	AddressID string
}

type OnlineCheckout struct {
	Order       *domain.Order
	RedirectURL string
}

// validate checks the request and resolves the buyer placing it.
func (s *Service) validate(ctx context.Context, req PlaceOrderRequest) (*domain.Buyer, error) {
	if req.BuyerID == "" {
		return nil, fmt.Errorf("%w: missing buyer", domain.ErrInvalidCheckoutRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", domain.ErrInvalidCheckoutRequest)
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.Quantity > MaxItemQuantity {
			return nil, fmt.Errorf("%w: invalid item %q quantity %d", domain.ErrInvalidCheckoutRequest, item.ProductID, item.Quantity)
		}
	}
	if req.AddressID == "" {
		return nil, fmt.Errorf("%w: missing address", domain.ErrInvalidCheckoutRequest)
	}

	buyer, err := s.accounts.GetBuyer(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("resolve buyer: %w: %w", domain.ErrPersistence, err)
	}
	if buyer == nil {
		return nil, fmt.Errorf("%w: unknown buyer %s", domain.ErrInvalidCheckoutRequest, req.BuyerID)
	}

	addr, err := s.accounts.GetAddress(ctx, req.BuyerID, req.AddressID)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w: %w", domain.ErrPersistence, err)
	}
	if addr == nil {
		return nil, fmt.Errorf("%w: unknown address %s", domain.ErrInvalidCheckoutRequest, req.AddressID)
	}

	return buyer, nil
}

func (s *Service) newOrder(req PlaceOrderRequest, buyer *domain.Buyer, q *pricing.Quote, method domain.PaymentMethod, status domain.OrderStatus) *domain.Order {
	items := make([]domain.OrderItem, len(q.Lines))
	for i, line := range q.Lines {
		items[i] = domain.OrderItem{ProductID: line.Product.ID, Quantity: line.Quantity, UnitPrice: line.UnitPrice}
	}

	return &domain.Order{
		BuyerID:       req.BuyerID,
		Items:         items,
		Amount:        q.Total,
		AddressID:     req.AddressID,
		PaymentMethod: method,
		Paid:          false,
		Status:        status,
		CreatedAt:     s.now(),
		Buyer:         buyer,
	}
}

// PlaceCOD records a cash-on-delivery order. It makes no provider call.
func (s *Service) PlaceCOD(ctx context.Context, req PlaceOrderRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "checkout.PlaceCOD")
	defer func() { endSpan(span, err) }()

	buyer, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	q, err := s.pricing.Quote(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order = s.newOrder(req, buyer, q, domain.PaymentMethodCOD, domain.OrderStatusConfirmed)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w: %w", domain.ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.amount", order.Amount))

	s.metrics.RecordOrderPlaced(ctx, order.PaymentMethod)
	s.publishConfirmed(ctx, order)

	s.logger.InfoContext(ctx, "cod order placed", "order_id", order.ID, "buyer_id", order.BuyerID, "amount", order.Amount)
	return order, nil
}

// PlaceOnline records a pending order and opens a hosted checkout session for
// it. When the provider call fails the pending order is left behind; it is
// never confirmed and the sweep marks it abandoned.
func (s *Service) PlaceOnline(ctx context.Context, req PlaceOrderRequest, returnOrigin string) (checkout *OnlineCheckout, err error) {
	ctx, span := tracer.Start(ctx, "checkout.PlaceOnline")
	defer func() { endSpan(span, err) }()

	buyer, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	q, err := s.pricing.Quote(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if q.Total > math.MaxInt64/s.minorUnits() {
		return nil, fmt.Errorf("%w: amount %d exceeds provider range", domain.ErrInvalidCheckoutRequest, q.Total)
	}

	order := s.newOrder(req, buyer, q, domain.PaymentMethodOnline, domain.OrderStatusPending)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w: %w", domain.ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.amount", order.Amount))

	sessionReq := payment.SessionRequest{
		LineItems:  s.lineItems(q),
		Currency:   s.opts.Currency,
		SuccessURL: returnOrigin + "/my-orders",
		CancelURL:  returnOrigin + "/cart",
		Metadata:   payment.Metadata{OrderID: order.ID, BuyerID: order.BuyerID},
	}
	if s.opts.SessionTTL > 0 {
		sessionReq.ExpiresAt = s.now().Add(s.opts.SessionTTL)
	}

	providerCtx := ctx
	if s.opts.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		providerCtx, cancel = context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
	}

	session, err := s.sessions.CreateCheckoutSession(providerCtx, sessionReq)
	if err != nil {
		s.metrics.RecordSessionFailure(ctx)
		s.logger.ErrorContext(ctx, "failed to create checkout session", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("%w: order %s: %v", domain.ErrPaymentSessionCreationFailed, order.ID, err)
	}

	if err := s.orders.AttachCheckoutSession(ctx, order.ID, session.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to store checkout session id", "error", err, "order_id", order.ID, "session_id", session.ID)
	} else {
		order.CheckoutSessionID = &session.ID
	}

	s.metrics.RecordOrderPlaced(ctx, order.PaymentMethod)
	s.logger.InfoContext(ctx, "online order pending payment", "order_id", order.ID, "buyer_id", order.BuyerID,
		"amount", order.Amount, "session_id", session.ID)

	return &OnlineCheckout{Order: order, RedirectURL: session.URL}, nil
}

// lineItems shows per-unit surcharged prices. Flooring per unit can leave the
// lines short of the aggregate total; the difference is charged as its own
// line so the buyer pays exactly order.Amount.
func (s *Service) lineItems(q *pricing.Quote) []payment.LineItem {
	minor := s.minorUnits()

	items := make([]payment.LineItem, 0, len(q.Lines)+1)
	for _, line := range q.Lines {
		items = append(items, payment.LineItem{
			Name:       line.Product.Name,
			UnitAmount: line.SurchargedUnitPrice * minor,
			Quantity:   int64(line.Quantity),
		})
	}

	if adj := q.RoundingAdjustment(); adj > 0 {
		items = append(items, payment.LineItem{Name: "Surcharge rounding", UnitAmount: adj * minor, Quantity: 1})
	}

	return items
}

func (s *Service) minorUnits() int64 {
	if s.opts.MinorUnits <= 0 {
		return 1
	}
	return s.opts.MinorUnits
}

func (s *Service) publishConfirmed(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}

	event := domain.NewOrderConfirmedEvent(order)
	event.Timestamp = order.CreatedAt
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order confirmed event", "error", err, "order_id", order.ID)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
