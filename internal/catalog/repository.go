package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-pos/artha-pos/internal/shared"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, barcode, title, COALESCE(description,''), buy_price, sell_price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Title, &p.Description, &p.BuyPrice, &p.SellPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// Create inserts a product with zero stock.
func (r *Repository) Create(ctx context.Context, input ProductInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO products (barcode, title, description, buy_price, sell_price, stock, created_at, updated_at)
VALUES ($1, $2, NULLIF($3,''), $4, $5, 0, now(), now())
RETURNING `+productColumns,
		input.Barcode, input.Title, input.Description, input.BuyPrice, input.SellPrice)
	p, err := scanProduct(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, fmt.Errorf("barcode %s: %w", input.Barcode, shared.ErrDuplicate)
		}
		return Product{}, err
	}
	return p, nil
}

// Update rewrites the descriptive fields. Stock is never touched here.
func (r *Repository) Update(ctx context.Context, id int64, input ProductInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `UPDATE products
SET barcode = $2, title = $3, description = NULLIF($4,''), buy_price = $5, sell_price = $6, updated_at = now()
WHERE id = $1
RETURNING `+productColumns,
		id, input.Barcode, input.Title, input.Description, input.BuyPrice, input.SellPrice)
	return scanProduct(row)
}

// Get fetches one product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// GetByBarcode fetches one product by barcode, the cashier scan path.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
}

// List returns products matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR barcode = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, filter.Query, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Delete removes a product that has no ledger history.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1
AND NOT EXISTS (SELECT 1 FROM inventory_adjustments WHERE product_id = $1)`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		return fmt.Errorf("product %d has stock history: %w", id, shared.ErrValidation)
	}
	return nil
}
