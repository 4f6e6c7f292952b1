package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/artha-pos/artha-pos/internal/shared"
)

type memoryCatalog struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{products: make(map[int64]Product)}
}

func (m *memoryCatalog) Create(ctx context.Context, input ProductInput) (Product, error) {
	for _, p := range m.products {
		if p.Barcode == input.Barcode {
			return Product{}, fmt.Errorf("barcode %s: %w", input.Barcode, shared.ErrDuplicate)
		}
	}
	m.nextID++
	p := Product{ID: m.nextID, Barcode: input.Barcode, Title: input.Title, Description: input.Description,
		BuyPrice: input.BuyPrice, SellPrice: input.SellPrice}
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryCatalog) Update(ctx context.Context, id int64, input ProductInput) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	p.Barcode, p.Title, p.Description = input.Barcode, input.Title, input.Description
	p.BuyPrice, p.SellPrice = input.BuyPrice, input.SellPrice
	m.products[id] = p
	return p, nil
}

func (m *memoryCatalog) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryCatalog) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	for _, p := range m.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (m *memoryCatalog) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryCatalog) Delete(ctx context.Context, id int64) error {
	if _, ok := m.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func newTestRouter(store Store) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestCreateProduct(t *testing.T) {
	store := newMemoryCatalog()
	router := newTestRouter(store)

	body, _ := json.Marshal(ProductInput{
		Barcode:   "8991002100015",
		Title:     "Kopi Bubuk 250g",
		BuyPrice:  decimal.NewFromInt(15000),
		SellPrice: decimal.NewFromInt(22000),
	})
	req := httptest.NewRequest(http.MethodPost, "/products/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Kopi Bubuk 250g", got.Title)
	require.True(t, got.SellPrice.Equal(decimal.NewFromInt(22000)))
}

func TestCreateProductValidation(t *testing.T) {
	router := newTestRouter(newMemoryCatalog())

	req := httptest.NewRequest(http.MethodPost, "/products/", bytes.NewReader([]byte(`{"title":""}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProductDuplicateBarcode(t *testing.T) {
	store := newMemoryCatalog()
	_, err := store.Create(context.Background(), ProductInput{Barcode: "123", Title: "Teh"})
	require.NoError(t, err)
	router := newTestRouter(store)

	body, _ := json.Marshal(ProductInput{Barcode: "123", Title: "Teh Botol"})
	req := httptest.NewRequest(http.MethodPost, "/products/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetProductByBarcode(t *testing.T) {
	store := newMemoryCatalog()
	_, err := store.Create(context.Background(), ProductInput{Barcode: "555", Title: "Gula"})
	require.NoError(t, err)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/products/barcode/555", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/products/barcode/999", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	store := newMemoryCatalog()
	p, err := store.Create(context.Background(), ProductInput{Barcode: "1", Title: "Mie"})
	require.NoError(t, err)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/products/%d/", p.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, store.products)
}
