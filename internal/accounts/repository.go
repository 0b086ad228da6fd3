package accounts

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetAddress returns the address only when it belongs to buyerID.
func (r *Repository) GetAddress(ctx context.Context, buyerID, addressID string) (*domain.Address, error) {
	a := &domain.Address{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, first_name, last_name, email, street, city, state, zip_code, country, phone
		FROM addresses
		WHERE id = $1 AND buyer_id = $2
	`, addressID, buyerID).Scan(&a.ID, &a.BuyerID, &a.FirstName, &a.LastName, &a.Email,
		&a.Street, &a.City, &a.State, &a.ZipCode, &a.Country, &a.Phone)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return a, nil
}

func (r *Repository) GetBuyer(ctx context.Context, buyerID string) (*domain.Buyer, error) {
	b := &domain.Buyer{}

	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM buyers WHERE id = $1`, buyerID).
		Scan(&b.ID, &b.Name, &b.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return b, nil
}

func (r *Repository) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	var raw []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT cart_items FROM buyers WHERE id = $1
	`, buyerID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	cart := domain.Cart{}
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, err
	}

	return cart, nil
}

// ClearCartTx replaces the buyer's cart with an empty one inside tx. It is a
// whole-value write: concurrent cart edits are overwritten.
func (r *Repository) ClearCartTx(ctx context.Context, tx *sql.Tx, buyerID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE buyers SET cart_items = '{}'::jsonb, updated_at = NOW()
		WHERE id = $1
	`, buyerID)
	return err
}
