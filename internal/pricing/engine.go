// Package pricing computes order totals from persisted catalog prices.
package pricing

import (
	"context"
	"fmt"
	"math"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const basisPointsPerUnit = 10_000

// DefaultSurchargeBasisPoints is a 2% surcharge.
const DefaultSurchargeBasisPoints = 200

type ProductLookup interface {
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type Line struct {
	Product domain.Product
	// Quantity is always >= 1.
	Quantity int
	// UnitPrice is the catalog offer price at quote time.
	UnitPrice int64
	// SurchargedUnitPrice is UnitPrice with the surcharge applied and floored.
	SurchargedUnitPrice int64
}

type Quote struct {
	Lines     []Line
	Subtotal  int64
	Surcharge int64
	Total     int64
}

type Engine struct {
	catalog     ProductLookup
	basisPoints int64
}

func NewEngine(catalog ProductLookup, surchargeBasisPoints int64) *Engine {
	return &Engine{catalog: catalog, basisPoints: surchargeBasisPoints}
}

// ApplySurcharge returns v plus floor(v * rate). Inputs are non-negative, so
// integer division floors. Callers must keep v within MaxSurchargeable.
func (e *Engine) ApplySurcharge(v int64) int64 {
	return v + v*e.basisPoints/basisPointsPerUnit
}

// MaxSurchargeable is the largest value ApplySurcharge handles without
// overflowing int64.
func (e *Engine) MaxSurchargeable() int64 {
	return math.MaxInt64 / (basisPointsPerUnit + e.basisPoints)
}

func (e *Engine) surcharge(v int64) (int64, error) {
	if v < 0 || v > e.MaxSurchargeable() {
		return 0, fmt.Errorf("%w: amount %d out of range", domain.ErrInvalidCheckoutRequest, v)
	}
	return e.ApplySurcharge(v), nil
}

// Quote prices items from the catalog. The surcharge is applied once to the
// aggregate; per-unit surcharged prices are informational.
func (e *Engine) Quote(ctx context.Context, items []domain.OrderItem) (*Quote, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := e.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load product prices: %w: %w", domain.ErrPersistence, err)
	}

	q := &Quote{Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity %d for %s", domain.ErrInvalidCheckoutRequest, item.Quantity, item.ProductID)
		}
		unit, err := e.surcharge(product.OfferPrice)
		if err != nil {
			return nil, err
		}

		qty := int64(item.Quantity)
		if product.OfferPrice > (math.MaxInt64-q.Subtotal)/qty {
			return nil, fmt.Errorf("%w: subtotal overflows at %s x %d", domain.ErrInvalidCheckoutRequest, item.ProductID, item.Quantity)
		}

		q.Lines = append(q.Lines, Line{
			Product:             product,
			Quantity:            item.Quantity,
			UnitPrice:           product.OfferPrice,
			SurchargedUnitPrice: unit,
		})
		q.Subtotal += product.OfferPrice * qty
	}

	total, err := e.surcharge(q.Subtotal)
	if err != nil {
		return nil, err
	}
	q.Total = total
	q.Surcharge = q.Total - q.Subtotal

	return q, nil
}

func (e *Engine) ComputeAmount(ctx context.Context, items []domain.OrderItem) (int64, error) {
	q, err := e.Quote(ctx, items)
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}

// RoundingAdjustment is the amount by which the aggregate total exceeds the
// sum of per-unit surcharged lines. It is never negative, and the line sum
// never exceeds Total, so it cannot overflow.
func (q *Quote) RoundingAdjustment() int64 {
	var lines int64
	for _, l := range q.Lines {
		lines += l.SurchargedUnitPrice * int64(l.Quantity)
	}
	return q.Total - lines
}
