package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artha-pos/artha-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed mutations.
type MetricsPort interface {
	ObserveMutation(adjustmentType string)
}

// InvalidatorPort invalidates cached read-side aggregates after a mutation.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// StrictStock makes over-reduction fail with ErrInsufficientStock
	// instead of clamping the balance at zero.
	StrictStock bool
}

// Service is the mutation engine: the only component allowed to change a
// balance. Every change writes exactly one adjustment entry and the new
// balance in the same transaction.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	cache   InvalidatorPort
	strict  bool
}

// NewService builds Service. audit, metrics and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, cache InvalidatorPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, cache: cache, strict: cfg.StrictStock}
}

// AddStock applies +quantity with an incoming type (in, purchase, return).
func (s *Service) AddStock(ctx context.Context, input MutationInput) (Adjustment, error) {
	if input.Quantity < 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	if input.Type.Direction() != 1 {
		return Adjustment{}, fmt.Errorf("%w: %q cannot add stock", ErrInvalidType, input.Type)
	}
	return s.run(ctx, Mutation{
		ProductID:     input.ProductID,
		Type:          input.Type,
		Delta:         input.Quantity,
		Reason:        input.Reason,
		Notes:         input.Notes,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		UserID:        input.UserID,
	})
}

// ReduceStock applies -quantity with an outgoing type (out, sale, damage,
// adjustment) or correction.
func (s *Service) ReduceStock(ctx context.Context, input MutationInput) (Adjustment, error) {
	if input.Quantity < 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	if input.Type.Direction() == 1 || !input.Type.Valid() {
		return Adjustment{}, fmt.Errorf("%w: %q cannot reduce stock", ErrInvalidType, input.Type)
	}
	return s.run(ctx, Mutation{
		ProductID:     input.ProductID,
		Type:          input.Type,
		Delta:         -input.Quantity,
		Reason:        input.Reason,
		Notes:         input.Notes,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		UserID:        input.UserID,
	})
}

// SetStock moves a product to an exact quantity with a correction entry,
// whatever the sign of the difference.
func (s *Service) SetStock(ctx context.Context, productID int64, target float64, reason string, userID int64) (Adjustment, error) {
	if target < 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = s.ApplySet(ctx, tx, productID, target, reason, userID)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.finish(ctx, adj)
	return adj, nil
}

// run executes one mutation in its own transaction.
func (s *Service) run(ctx context.Context, m Mutation) (Adjustment, error) {
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = s.Apply(ctx, tx, m)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.finish(ctx, adj)
	return adj, nil
}

// Apply runs the mutation inside the caller's transaction. Document services
// use this to keep their own writes and the ledger writes in one atomic unit.
//
// Sequence: lock the product row, resolve the balance (creating it seeded
// from the displayed stock when missing), compute the new quantity, append
// the adjustment, then write balance and stock mirror.
func (s *Service) Apply(ctx context.Context, tx TxRepository, m Mutation) (Adjustment, error) {
	if !m.Type.Valid() {
		return Adjustment{}, fmt.Errorf("%w: %q", ErrInvalidType, m.Type)
	}
	if d := m.Type.Direction(); (d > 0 && m.Delta < 0) || (d < 0 && m.Delta > 0) {
		return Adjustment{}, fmt.Errorf("%w: %q with change %v", ErrInvalidType, m.Type, m.Delta)
	}
	if m.Delta == 0 && m.Type != TypeCorrection {
		return Adjustment{}, ErrInvalidQuantity
	}

	product, err := tx.GetProductForUpdate(ctx, m.ProductID)
	if err != nil {
		return Adjustment{}, err
	}

	balance, err := tx.GetBalance(ctx, m.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Adjustment{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{ProductID: m.ProductID, Quantity: product.Stock}
	}

	before := balance.Quantity
	after := before + m.Delta
	if after < 0 {
		if s.strict {
			return Adjustment{}, fmt.Errorf("%w: product %d has %v, requested %v", ErrInsufficientStock, m.ProductID, before, -m.Delta)
		}
		// Observed legacy behaviour: the balance floors at zero while the
		// entry keeps the requested quantity_change.
		after = 0
	}

	adj := Adjustment{
		ProductID:      m.ProductID,
		UserID:         m.UserID,
		Type:           m.Type,
		QuantityBefore: before,
		QuantityChange: m.Delta,
		QuantityAfter:  after,
		ReferenceType:  m.ReferenceType,
		ReferenceID:    m.ReferenceID,
		Reason:         m.Reason,
		Notes:          m.Notes,
		CreatedAt:      time.Now().UTC(),
	}
	adj, err = tx.InsertAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	if err := tx.UpsertBalance(ctx, Balance{ProductID: m.ProductID, Quantity: after}); err != nil {
		return Adjustment{}, err
	}
	// Display mirror on products; updated only here, inside the same unit.
	if err := tx.UpdateProductStock(ctx, m.ProductID, after); err != nil {
		return Adjustment{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMutation(string(m.Type))
	}
	return adj, nil
}

// ApplySet computes the correction delta against the live balance and applies
// it inside the caller's transaction.
func (s *Service) ApplySet(ctx context.Context, tx TxRepository, productID int64, target float64, reason string, userID int64) (Adjustment, error) {
	if target < 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Adjustment{}, err
	}
	balance, err := tx.GetBalance(ctx, productID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Adjustment{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{ProductID: productID, Quantity: product.Stock}
	}

	before := balance.Quantity
	adj := Adjustment{
		ProductID:      productID,
		UserID:         userID,
		Type:           TypeCorrection,
		QuantityBefore: before,
		QuantityChange: target - before,
		QuantityAfter:  target,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}
	adj, err = tx.InsertAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	if err := tx.UpsertBalance(ctx, Balance{ProductID: productID, Quantity: target}); err != nil {
		return Adjustment{}, err
	}
	if err := tx.UpdateProductStock(ctx, productID, target); err != nil {
		return Adjustment{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMutation(string(TypeCorrection))
	}
	return adj, nil
}

// Invalidate bumps cached aggregates. Document services call this after
// committing transactions that contained ledger mutations.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

// finish records post-commit side effects for self-contained mutations.
func (s *Service) finish(ctx context.Context, adj Adjustment) {
	s.Invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  adj.UserID,
			Action:   fmt.Sprintf("ledger:%s", adj.Type),
			Entity:   "inventory_adjustment",
			EntityID: fmt.Sprintf("%d", adj.ID),
			Meta: map[string]any{
				"product_id":      adj.ProductID,
				"quantity_change": adj.QuantityChange,
				"quantity_after":  adj.QuantityAfter,
				"reason":          adj.Reason,
			},
		})
	}
}
