package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/domain"
)

var orderCols = []string{"id", "buyer_id", "address_id", "amount", "payment_method", "paid", "payment_ref",
	"checkout_session_id", "status", "created_at", "paid_at"}

func newMockRepo(t *testing.T) (*OrderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewOrderRepository(db, accounts.NewRepository(db)), mock
}

func TestOrderRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).
		WithArgs(sqlmock.AnyArg(), "buyer-1", "addr-1", int64(459), domain.PaymentMethodCOD, false, domain.OrderStatusConfirmed, createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
		WithArgs(sqlmock.AnyArg(), 0, "p-100", 2, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
		WithArgs(sqlmock.AnyArg(), 1, "p-250", 1, int64(250)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order := &domain.Order{
		BuyerID:   "buyer-1",
		AddressID: "addr-1",
		Items: []domain.OrderItem{
			{ProductID: "p-100", Quantity: 2, UnitPrice: 100},
			{ProductID: "p-250", Quantity: 1, UnitPrice: 250},
		},
		Amount:        459,
		PaymentMethod: domain.PaymentMethodCOD,
		Status:        domain.OrderStatusConfirmed,
		CreatedAt:     createdAt,
	}

	require.NoError(t, repo.Create(context.Background(), order))
	assert.NotEmpty(t, order.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_RollsBackOnItemFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.Order{
		Items:     []domain.OrderItem{{ProductID: "p-1", Quantity: 1}},
		CreatedAt: time.Now().UTC(),
	})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ConfirmPayment(t *testing.T) {
	confirm := regexp.QuoteMeta(`SET paid = TRUE, payment_ref = $2`)
	clearCart := regexp.QuoteMeta(`UPDATE buyers SET cart_items = '{}'::jsonb`)
	lookupBuyer := regexp.QuoteMeta(`SELECT name, email FROM buyers WHERE id = $1`)
	buyerCols := []string{"name", "email"}
	now := time.Now().UTC()

	t.Run("marks paid and clears the cart", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(confirm).
			WithArgs("order-1", "pi_123", domain.OrderStatusConfirmed, domain.PaymentMethodOnline).
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow("order-1", "buyer-1", "addr-1", int64(459), "online", true, "pi_123", "cs_1", "confirmed", now, now))
		mock.ExpectQuery(lookupBuyer).WithArgs("buyer-1").
			WillReturnRows(sqlmock.NewRows(buyerCols).AddRow("Asha Rao", "asha@example.com"))
		mock.ExpectExec(clearCart).WithArgs("buyer-1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order, err := repo.ConfirmPayment(context.Background(), "order-1", "pi_123")
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.True(t, order.Paid)
		require.NotNil(t, order.PaymentRef)
		assert.Equal(t, "pi_123", *order.PaymentRef)
		assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
		require.NotNil(t, order.Buyer)
		assert.Equal(t, "asha@example.com", order.Buyer.Email)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is a no-op when no unpaid online order matches", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(confirm).
			WithArgs("order-1", "pi_other", domain.OrderStatusConfirmed, domain.PaymentMethodOnline).
			WillReturnRows(sqlmock.NewRows(orderCols))
		mock.ExpectRollback()

		order, err := repo.ConfirmPayment(context.Background(), "order-1", "pi_other")
		require.NoError(t, err)
		assert.Nil(t, order)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the cart cannot be cleared", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(confirm).
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow("order-1", "buyer-1", "addr-1", int64(459), "online", true, "pi_123", nil, "confirmed", now, now))
		mock.ExpectQuery(lookupBuyer).
			WillReturnRows(sqlmock.NewRows(buyerCols).AddRow("Asha Rao", "asha@example.com"))
		mock.ExpectExec(clearCart).WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		order, err := repo.ConfirmPayment(context.Background(), "order-1", "pi_123")
		assert.Error(t, err)
		assert.Nil(t, order)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_AbandonStalePending(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = $1`)).
		WithArgs(domain.OrderStatusAbandoned, domain.PaymentMethodOnline, domain.OrderStatusPending, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.AbandonStalePending(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListFinal(t *testing.T) {
	listCols := append(append([]string{}, orderCols...),
		"first_name", "last_name", "email", "street", "city", "state", "zip_code", "country", "phone",
		"buyer_name", "buyer_email")
	itemCols := []string{"order_id", "product_id", "quantity", "unit_price",
		"name", "description", "category", "price", "offer_price", "image", "in_stock"}
	newer := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	expectOrders := func(mock sqlmock.Sqlmock, buyerID string) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE (o.payment_method = $1 OR o.paid) AND ($2::text = '' OR o.buyer_id = $2)`)).
			WithArgs(domain.PaymentMethodCOD, buyerID).
			WillReturnRows(sqlmock.NewRows(listCols).
				AddRow("order-2", "buyer-1", "addr-1", int64(459), "online", true, "pi_1", "cs_1", "confirmed", newer, newer,
					"Asha", "Rao", "asha@example.com", "1 MG Road", "Pune", "MH", "411001", "IN", "99", "Asha Rao", "asha@example.com").
				AddRow("order-1", "buyer-1", "addr-1", int64(102), "cod", false, nil, nil, "confirmed", older, nil,
					"Asha", "Rao", "asha@example.com", "1 MG Road", "Pune", "MH", "411001", "IN", "99", "Asha Rao", "asha@example.com"))
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE oi.order_id = ANY($1)`)).
			WithArgs(pq.Array([]string{"order-2", "order-1"})).
			WillReturnRows(sqlmock.NewRows(itemCols).
				AddRow("order-1", "p-100", 1, int64(100), "Apple", "", "fruits", int64(120), int64(100), "", true).
				AddRow("order-2", "p-100", 2, int64(100), "Apple", "", "fruits", int64(120), int64(100), "", true).
				AddRow("order-2", "p-gone", 1, int64(250), nil, nil, nil, nil, nil, nil, nil))
	}

	t.Run("own orders resolve items and address", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		expectOrders(mock, "buyer-1")

		orders, err := repo.ListFinal(context.Background(), "buyer-1")
		require.NoError(t, err)
		require.Len(t, orders, 2)

		assert.Equal(t, "order-2", orders[0].ID)
		assert.Equal(t, "order-1", orders[1].ID)
		assert.Nil(t, orders[0].Buyer)
		require.NotNil(t, orders[0].Address)
		assert.Equal(t, "Pune", orders[0].Address.City)

		require.Len(t, orders[0].Items, 2)
		require.NotNil(t, orders[0].Items[0].Product)
		assert.Equal(t, "Apple", orders[0].Items[0].Product.Name)
		assert.Nil(t, orders[0].Items[1].Product)
		assert.Nil(t, orders[1].PaymentRef)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("all orders also resolve the buyer", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		expectOrders(mock, "")

		orders, err := repo.ListFinal(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, orders, 2)
		require.NotNil(t, orders[0].Buyer)
		assert.Equal(t, "buyer-1", orders[0].Buyer.ID)
		assert.Equal(t, "Asha Rao", orders[0].Buyer.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result skips the item query", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM orders o`)).WillReturnRows(sqlmock.NewRows(listCols))

		orders, err := repo.ListFinal(context.Background(), "buyer-9")
		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
