package accounts

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Identity headers are set by the session layer in front of this service.
const (
	BuyerIDHeader   = "X-Buyer-ID"
	SellerKeyHeader = "X-Seller-Key"
)

type buyerKey struct{}

func WithBuyerID(ctx context.Context, buyerID string) context.Context {
	return context.WithValue(ctx, buyerKey{}, buyerID)
}

func BuyerID(ctx context.Context) string {
	id, _ := ctx.Value(buyerKey{}).(string)
	return id
}

func RequireBuyer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID := strings.TrimSpace(r.Header.Get(BuyerIDHeader))
		if buyerID == "" {
			writeUnauthorized(w, "Not authenticated")
			return
		}
		next(w, r.WithContext(WithBuyerID(r.Context(), buyerID)))
	}
}

func RequireSeller(sellerKey string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SellerKeyHeader)
			if sellerKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(sellerKey)) != 1 {
				writeUnauthorized(w, "Not Authorized")
				return
			}
			next(w, r)
		}
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
