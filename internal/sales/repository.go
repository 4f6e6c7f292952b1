package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/platform/db"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// TxRepository is the per-transaction surface. Ledger exposes the inventory
// writer bound to the same transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	InsertDetails(ctx context.Context, transactionID int64, details []Detail) error
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	GetDetails(ctx context.Context, transactionID int64) ([]Detail, error)
	SetStatus(ctx context.Context, id int64, status string) error
	NextInvoiceNumber(ctx context.Context, day time.Time) (string, error)
	Ledger() ledger.TxRepository
}

// Repository persists transactions in PostgreSQL.
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

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions
(invoice_number, cashier_id, customer_name, total_amount, paid_amount, change_amount, status, created_at, updated_at)
VALUES ($1, NULLIF($2,0), NULLIF($3,''), $4, $5, $6, $7, now(), now())
RETURNING id, created_at, updated_at`,
		t.InvoiceNumber, t.CashierID, t.CustomerName, t.TotalAmount, t.PaidAmount, t.ChangeAmount, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, fmt.Errorf("invoice number %s taken, retry checkout: %w", t.InvoiceNumber, shared.ErrDuplicate)
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// NextInvoiceNumber produces the daily sequential invoice number. Runs on
// the checkout transaction; the unique index on invoice_number catches the
// race when two checkouts count the same day simultaneously, and the loser
// surfaces a retryable duplicate instead of a wrong number.
func (r *txRepository) NextInvoiceNumber(ctx context.Context, day time.Time) (string, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE created_at::date = $1::date`, day).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count invoices: %w", err)
	}
	return fmt.Sprintf("INV-%s-%04d", day.Format("20060102"), count+1), nil
}

func (r *txRepository) InsertDetails(ctx context.Context, transactionID int64, details []Detail) error {
	for _, d := range details {
		_, err := r.tx.Exec(ctx, `INSERT INTO transaction_details (transaction_id, product_id, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5)`,
			transactionID, d.ProductID, d.Quantity, d.UnitPrice, d.Subtotal)
		if err != nil {
			return fmt.Errorf("insert transaction detail: %w", err)
		}
	}
	return nil
}

const transactionColumns = `id, invoice_number, COALESCE(cashier_id,0), COALESCE(customer_name,''),
total_amount, paid_amount, change_amount, status, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.InvoiceNumber, &t.CashierID, &t.CustomerName,
		&t.TotalAmount, &t.PaidAmount, &t.ChangeAmount, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetDetails(ctx context.Context, transactionID int64) ([]Detail, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, transaction_id, product_id, quantity, unit_price, subtotal
FROM transaction_details WHERE transaction_id=$1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction details: %w", err)
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.ProductID, &d.Quantity, &d.UnitPrice, &d.Subtotal); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("set transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Get loads one transaction with details.
func (r *Repository) Get(ctx context.Context, id int64) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
	if err != nil {
		return Transaction{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, product_id, quantity, unit_price, subtotal
FROM transaction_details WHERE transaction_id=$1 ORDER BY id`, id)
	if err != nil {
		return Transaction{}, fmt.Errorf("list transaction details: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.ProductID, &d.Quantity, &d.UnitPrice, &d.Subtotal); err != nil {
			return Transaction{}, err
		}
		t.Details = append(t.Details, d)
	}
	return t, rows.Err()
}

// List returns transactions within an optional date window, newest first.
func (r *Repository) List(ctx context.Context, from, to time.Time, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE created_at >= COALESCE(NULLIF($1, '0001-01-01'::timestamptz), '-infinity'::timestamptz)
  AND created_at <= COALESCE(NULLIF($2, '0001-01-01'::timestamptz), 'infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var transactions []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
