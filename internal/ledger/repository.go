package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-pos/artha-pos/internal/platform/db"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProductRef is the slice of a product the engine needs: identity plus the
// displayed stock used to seed a missing balance.
type ProductRef struct {
	ID    int64
	Stock float64
}

// TxRepository exposes the transactional operations used by the engine.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (ProductRef, error)
	GetBalance(ctx context.Context, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	UpdateProductStock(ctx context.Context, productID int64, quantity float64) error
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("ledger: balance not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so callers owning their own
// transaction (document services) can run ledger mutations inside it.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetProductForUpdate locks the product row, serialising all mutations for
// one product. This is the only lock the engine takes.
func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (ProductRef, error) {
	var ref ProductRef
	err := r.tx.QueryRow(ctx, `SELECT id, stock FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&ref.ID, &ref.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductRef{}, fmt.Errorf("ledger: product %d: %w", productID, shared.ErrNotFound)
		}
		return ProductRef{}, err
	}
	return ref, nil
}

func (r *txRepository) GetBalance(ctx context.Context, productID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT product_id, quantity, updated_at FROM inventory_balances WHERE product_id=$1 FOR UPDATE`, productID).
		Scan(&bal.ProductID, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (product_id, quantity, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`, balance.ProductID, balance.Quantity)
	return err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments
(product_id, user_id, type, quantity_before, quantity_change, quantity_after, reference_type, reference_id, reason, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`,
		adj.ProductID, nullInt(adj.UserID), string(adj.Type),
		adj.QuantityBefore, adj.QuantityChange, adj.QuantityAfter,
		nullString(adj.ReferenceType), nullInt(adj.ReferenceID),
		nullString(adj.Reason), nullString(adj.Notes), adj.CreatedAt).Scan(&adj.ID)
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

func (r *txRepository) UpdateProductStock(ctx context.Context, productID int64, quantity float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=NOW() WHERE id=$1`, productID, quantity)
	return err
}

// Summary aggregates dashboard figures. Products without a balance row fall
// back to the seeded display stock.
func (r *Repository) Summary(ctx context.Context) (Summary, error) {
	if r == nil {
		return Summary{}, errors.New("ledger repository not initialised")
	}
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT
    COUNT(*),
    COALESCE(SUM(COALESCE(b.quantity, p.stock)), 0),
    COALESCE(SUM(COALESCE(b.quantity, p.stock)::numeric * p.buy_price), 0)::numeric,
    COALESCE(SUM(COALESCE(b.quantity, p.stock)::numeric * p.sell_price), 0)::numeric,
    COUNT(*) FILTER (WHERE COALESCE(b.quantity, p.stock) > 0 AND COALESCE(b.quantity, p.stock) <= $1),
    COUNT(*) FILTER (WHERE COALESCE(b.quantity, p.stock) <= 0)
FROM products p
LEFT JOIN inventory_balances b ON b.product_id = p.id`, LowStockThreshold).
		Scan(&s.TotalProducts, &s.TotalStock, &s.TotalStockValueBuy, &s.TotalStockValueSell, &s.LowStockCount, &s.OutOfStockCount)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

// ProductMovement sums quantity_change per direction for one product.
func (r *Repository) ProductMovement(ctx context.Context, productID int64, from, to time.Time) (MovementTotals, error) {
	if r == nil {
		return MovementTotals{}, errors.New("ledger repository not initialised")
	}
	var m MovementTotals
	err := r.pool.QueryRow(ctx, `SELECT
    COALESCE(SUM(quantity_change) FILTER (WHERE type IN ('in','purchase','return') AND quantity_change > 0), 0),
    COALESCE(ABS(SUM(quantity_change) FILTER (WHERE type IN ('out','sale','damage','adjustment') AND quantity_change < 0)), 0)
FROM inventory_adjustments
WHERE product_id=$1
  AND created_at BETWEEN COALESCE($2::timestamptz, '-infinity') AND COALESCE($3::timestamptz, 'infinity')`,
		productID, nullTime(from), nullTime(to)).
		Scan(&m.TotalIn, &m.TotalOut)
	if err != nil {
		return MovementTotals{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(b.quantity, p.stock)
FROM products p
LEFT JOIN inventory_balances b ON b.product_id = p.id
WHERE p.id=$1`, productID).Scan(&m.CurrentStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MovementTotals{}, fmt.Errorf("ledger: product %d: %w", productID, shared.ErrNotFound)
		}
		return MovementTotals{}, err
	}
	return m, nil
}

// History lists adjustments newest first.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Adjustment, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, COALESCE(user_id,0), type,
    quantity_before, quantity_change, quantity_after,
    COALESCE(reference_type,''), COALESCE(reference_id,0),
    COALESCE(reason,''), COALESCE(notes,''), created_at
FROM inventory_adjustments
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR reference_type = $3)
  AND ($4 = 0 OR reference_id = $4)
  AND created_at BETWEEN COALESCE($5::timestamptz, '-infinity') AND COALESCE($6::timestamptz, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $7`,
		filter.ProductID, string(filter.Type), filter.ReferenceType, filter.ReferenceID,
		nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Adjustment{}
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.ProductID, &adj.UserID, &adj.Type,
			&adj.QuantityBefore, &adj.QuantityChange, &adj.QuantityAfter,
			&adj.ReferenceType, &adj.ReferenceID, &adj.Reason, &adj.Notes, &adj.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
