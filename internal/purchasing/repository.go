package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/platform/db"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// TxRepository is the per-transaction surface. Ledger exposes the inventory
// writer bound to the same transaction so document and stock changes commit
// together.
type TxRepository interface {
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeletePurchase(ctx context.Context, id int64) error
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	GetItems(ctx context.Context, purchaseID int64) ([]Item, error)
	InsertItems(ctx context.Context, purchaseID int64, items []Item) error
	DeleteItems(ctx context.Context, purchaseID int64) error
	Ledger() ledger.TxRepository
}

// Repository persists purchases in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository { return r.ledger }

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases
(supplier_name, invoice_number, purchase_date, total_amount, notes, created_by, created_at, updated_at)
VALUES ($1, NULLIF($2,''), $3, $4, NULLIF($5,''), NULLIF($6,0), now(), now())
RETURNING id, created_at, updated_at`,
		p.SupplierName, p.InvoiceNumber, p.PurchaseDate, p.TotalAmount, p.Notes, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	return p, nil
}

func (r *txRepository) UpdatePurchase(ctx context.Context, p Purchase) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchases
SET supplier_name=$2, invoice_number=NULLIF($3,''), purchase_date=$4, total_amount=$5, notes=NULLIF($6,''), updated_at=now()
WHERE id=$1`,
		p.ID, p.SupplierName, p.InvoiceNumber, p.PurchaseDate, p.TotalAmount, p.Notes)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeletePurchase(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchases WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.tx.QueryRow(ctx, `SELECT id, supplier_name, COALESCE(invoice_number,''), purchase_date,
total_amount, COALESCE(notes,''), COALESCE(created_by,0), created_at, updated_at
FROM purchases WHERE id=$1 FOR UPDATE`, id).
		Scan(&p.ID, &p.SupplierName, &p.InvoiceNumber, &p.PurchaseDate, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, shared.ErrNotFound
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

func (r *txRepository) GetItems(ctx context.Context, purchaseID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, purchase_id, product_id, quantity, unit_cost, subtotal
FROM purchase_items WHERE purchase_id=$1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("list purchase items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Quantity, &item.UnitCost, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertItems(ctx context.Context, purchaseID int64, items []Item) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, subtotal)
VALUES ($1, $2, $3, $4, $5)`,
			purchaseID, item.ProductID, item.Quantity, item.UnitCost, item.Subtotal)
		if err != nil {
			return fmt.Errorf("insert purchase item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) DeleteItems(ctx context.Context, purchaseID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id=$1`, purchaseID)
	return err
}

// Get loads one purchase with its lines outside any transaction.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.pool.QueryRow(ctx, `SELECT id, supplier_name, COALESCE(invoice_number,''), purchase_date,
total_amount, COALESCE(notes,''), COALESCE(created_by,0), created_at, updated_at
FROM purchases WHERE id=$1`, id).
		Scan(&p.ID, &p.SupplierName, &p.InvoiceNumber, &p.PurchaseDate, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, shared.ErrNotFound
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, quantity, unit_cost, subtotal
FROM purchase_items WHERE purchase_id=$1 ORDER BY id`, id)
	if err != nil {
		return Purchase{}, fmt.Errorf("list purchase items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Quantity, &item.UnitCost, &item.Subtotal); err != nil {
			return Purchase{}, err
		}
		p.Items = append(p.Items, item)
	}
	return p, rows.Err()
}

// List returns purchases within an optional date window, newest first.
func (r *Repository) List(ctx context.Context, from, to time.Time, limit int) ([]Purchase, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, supplier_name, COALESCE(invoice_number,''), purchase_date,
total_amount, COALESCE(notes,''), COALESCE(created_by,0), created_at, updated_at
FROM purchases
WHERE purchase_date >= COALESCE(NULLIF($1, '0001-01-01'::timestamptz), '-infinity'::timestamptz)
  AND purchase_date <= COALESCE(NULLIF($2, '0001-01-01'::timestamptz), 'infinity'::timestamptz)
ORDER BY purchase_date DESC, id DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.SupplierName, &p.InvoiceNumber, &p.PurchaseDate, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
