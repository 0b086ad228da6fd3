package catalog

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_HandleGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	handler := NewHandler(NewProductRepository(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/product/{id}", handler.HandleGet)

	t.Run("returns the product", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1`)).WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows(productCols).AddRow("p-1", "Apple", "", "fruits", int64(120), int64(100), "", true))

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/p-1", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool `json:"success"`
			Product struct {
				OfferPrice int64 `json:"offer_price"`
			} `json:"product"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(100), resp.Product.OfferPrice)
	})

	t.Run("returns 404 for unknown product", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1`)).WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(productCols))

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/nope", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
