package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// CartStore clears a buyer's cart as part of a payment confirmation
// transaction.
type CartStore interface {
	ClearCartTx(ctx context.Context, tx *sql.Tx, buyerID string) error
}

type OrderRepository struct {
	db    *sql.DB
	carts CartStore
}

func NewOrderRepository(db *sql.DB, carts CartStore) *OrderRepository {
	return &OrderRepository{db: db, carts: carts}
}

const orderColumns = `id, buyer_id, address_id, amount, payment_method, paid, payment_ref, checkout_session_id, status, created_at, paid_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, o *domain.Order) error {
	var ref, session sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(&o.ID, &o.BuyerID, &o.AddressID, &o.Amount, &o.PaymentMethod, &o.Paid,
		&ref, &session, &o.Status, &o.CreatedAt, &paidAt); err != nil {
		return err
	}
	o.PaymentRef = nullString(ref)
	o.CheckoutSessionID = nullString(session)
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, address_id, amount, payment_method, paid, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, order.ID, order.BuyerID, order.AddressID, order.Amount, order.PaymentMethod, order.Paid, order.Status, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, i, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) AttachCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET checkout_session_id = $2, updated_at = NOW()
		WHERE id = $1
	`, orderID, sessionID)
	return err
}

// ConfirmPayment marks an unpaid online order as paid, resolves its buyer and
// clears the buyer's cart in one transaction. The conditional update lets exactly one of any
// number of concurrent confirmations win; it returns nil, nil when nothing
// changed (unknown order, COD order, or already paid).
func (r *OrderRepository) ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order := &domain.Order{}
	err = scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		SET paid = TRUE, payment_ref = $2, status = $3, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND payment_method = $4 AND paid = FALSE
		RETURNING `+orderColumns+`
	`, orderID, paymentRef, domain.OrderStatusConfirmed, domain.PaymentMethodOnline), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	buyer := &domain.Buyer{ID: order.BuyerID}
	if err := tx.QueryRowContext(ctx, `SELECT name, email FROM buyers WHERE id = $1`, order.BuyerID).
		Scan(&buyer.Name, &buyer.Email); err != nil {
		return nil, err
	}
	order.Buyer = buyer

	if err := r.carts.ClearCartTx(ctx, tx, order.BuyerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// AbandonStalePending marks online orders still pending since before cutoff
// as abandoned. Rows are kept; a late confirmation still succeeds.
func (r *OrderRepository) AbandonStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE payment_method = $2 AND paid = FALSE AND status = $3 AND created_at < $4
	`, domain.OrderStatusAbandoned, domain.PaymentMethodOnline, domain.OrderStatusPending, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ListFinal returns COD and paid orders, newest first, with address and
// products resolved. An empty buyerID lists every buyer's orders and also
// resolves the buyer.
func (r *OrderRepository) ListFinal(ctx context.Context, buyerID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.buyer_id, o.address_id, o.amount, o.payment_method, o.paid, o.payment_ref,
			o.checkout_session_id, o.status, o.created_at, o.paid_at,
			a.first_name, a.last_name, a.email, a.street, a.city, a.state, a.zip_code, a.country, a.phone,
			b.name, b.email
		FROM orders o
		JOIN addresses a ON a.id = o.address_id
		JOIN buyers b ON b.id = o.buyer_id
		WHERE (o.payment_method = $1 OR o.paid) AND ($2::text = '' OR o.buyer_id = $2)
		ORDER BY o.created_at DESC
	`, domain.PaymentMethodCOD, buyerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order := &domain.Order{Items: []domain.OrderItem{}}
		addr := &domain.Address{}
		buyer := &domain.Buyer{}
		var ref, session sql.NullString
		var paidAt sql.NullTime

		if err := rows.Scan(&order.ID, &order.BuyerID, &order.AddressID, &order.Amount, &order.PaymentMethod,
			&order.Paid, &ref, &session, &order.Status, &order.CreatedAt, &paidAt,
			&addr.FirstName, &addr.LastName, &addr.Email, &addr.Street, &addr.City, &addr.State,
			&addr.ZipCode, &addr.Country, &addr.Phone,
			&buyer.Name, &buyer.Email); err != nil {
			return nil, err
		}

		order.PaymentRef = nullString(ref)
		order.CheckoutSessionID = nullString(session)
		if paidAt.Valid {
			t := paidAt.Time
			order.PaidAt = &t
		}
		addr.ID = order.AddressID
		addr.BuyerID = order.BuyerID
		order.Address = addr
		if buyerID == "" {
			buyer.ID = order.BuyerID
			order.Buyer = buyer
		}

		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, orderIDs, orderMap); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string, orderMap map[string]*domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
			p.name, p.description, p.category, p.price, p.offer_price, p.image, p.in_stock
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		var name, description, category, image sql.NullString
		var price, offerPrice sql.NullInt64
		var inStock sql.NullBool

		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&name, &description, &category, &price, &offerPrice, &image, &inStock); err != nil {
			return err
		}

		// Products deleted after the order was placed resolve to nil.
		if name.Valid {
			item.Product = &domain.Product{
				ID:          item.ProductID,
				Name:        name.String,
				Description: description.String,
				Category:    category.String,
				Price:       price.Int64,
				OfferPrice:  offerPrice.Int64,
				Image:       image.String,
				InStock:     inStock.Bool,
			}
		}

		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}
