package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reconciler repairs drift between the authoritative balances and the
// displayed stock column. The ledger is the source of truth; the mirror is
// rewritten, never the other way round.
type Reconciler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReconciler constructs Reconciler.
func NewReconciler(pool *pgxpool.Pool, logger *slog.Logger) *Reconciler {
	return &Reconciler{pool: pool, logger: logger}
}

// Handle processes TaskLedgerReconcile tasks.
func (r *Reconciler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	started := time.Now()

	tag, err := r.pool.Exec(ctx, `UPDATE products p
SET stock = b.quantity, updated_at = now()
FROM inventory_balances b
WHERE b.product_id = p.id AND p.stock IS DISTINCT FROM b.quantity`)
	if err != nil {
		return err
	}
	repaired := tag.RowsAffected()

	// Balances disagreeing with their latest log entry point at a bug, so
	// they are reported rather than silently rewritten.
	rows, err := r.pool.Query(ctx, `SELECT b.product_id, b.quantity, a.quantity_after
FROM inventory_balances b
JOIN LATERAL (
    SELECT quantity_after FROM inventory_adjustments
    WHERE product_id = b.product_id
    ORDER BY created_at DESC, id DESC LIMIT 1
) a ON true
WHERE b.quantity <> a.quantity_after`)
	if err != nil {
		return err
	}
	defer rows.Close()
	var mismatches int
	for rows.Next() {
		var productID int64
		var balance, latest float64
		if err := rows.Scan(&productID, &balance, &latest); err != nil {
			return err
		}
		mismatches++
		r.logger.Error("balance diverged from adjustment log",
			slog.Int64("product_id", productID),
			slog.Float64("balance", balance),
			slog.Float64("latest_entry", latest))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.logger.Info("ledger reconcile finished",
		slog.Int64("mirrors_repaired", repaired),
		slog.Int("log_mismatches", mismatches),
		slog.Duration("took", time.Since(started)))
	return nil
}
