package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// Store is the transactional persistence surface.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, from, to time.Time, limit int) ([]Purchase, error)
}

// IdempotencyPort guards duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service manages purchase documents. Every stock effect goes through the
// inventory ledger inside the document transaction, so a failed write leaves
// neither document nor stock changes behind.
type Service struct {
	logger   *slog.Logger
	store    Store
	ledger   *ledger.Service
	reversal *ledger.Coordinator
	idem     IdempotencyPort
}

// NewService constructs Service. idem may be nil.
func NewService(logger *slog.Logger, store Store, ledgerSvc *ledger.Service, idem IdempotencyPort) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		ledger:   ledgerSvc,
		reversal: ledger.NewCoordinator(ledgerSvc),
		idem:     idem,
	}
}

// Create stores the document and receives its stock atomically.
func (s *Service) Create(ctx context.Context, input PurchaseInput) (Purchase, error) {
	if err := s.guard(ctx, input.IdempotencyKey); err != nil {
		return Purchase{}, err
	}
	actor := shared.ActorFromContext(ctx)
	if input.PurchaseDate.IsZero() {
		input.PurchaseDate = time.Now().UTC()
	}

	var created Purchase
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p := Purchase{
			SupplierName:  input.SupplierName,
			InvoiceNumber: input.InvoiceNumber,
			PurchaseDate:  input.PurchaseDate,
			TotalAmount:   input.Total(),
			Notes:         input.Notes,
			CreatedBy:     actor,
		}
		var err error
		created, err = tx.InsertPurchase(ctx, p)
		if err != nil {
			return err
		}
		items := buildItems(created.ID, input.Items)
		if err := tx.InsertItems(ctx, created.ID, items); err != nil {
			return err
		}
		created.Items = items
		return s.receiveStock(ctx, tx, created, items, actor)
	})
	if err != nil {
		s.release(ctx, input.IdempotencyKey)
		return Purchase{}, err
	}
	s.ledger.Invalidate(ctx)
	s.logger.Info("purchase created",
		slog.Int64("purchase_id", created.ID),
		slog.String("supplier", created.SupplierName),
		slog.Int("items", len(created.Items)))
	return created, nil
}

// Update rewrites the document: the old stock effect is reversed with
// compensating entries, then the new lines are received, all in one
// transaction.
func (s *Service) Update(ctx context.Context, id int64, input PurchaseInput) (Purchase, error) {
	actor := shared.ActorFromContext(ctx)

	var updated Purchase
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldItems, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reversal.ReversePurchase(ctx, tx.Ledger(), id, existing.SupplierName, lineItems(oldItems), actor); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}

		updated = existing
		updated.SupplierName = input.SupplierName
		updated.InvoiceNumber = input.InvoiceNumber
		if !input.PurchaseDate.IsZero() {
			updated.PurchaseDate = input.PurchaseDate
		}
		updated.Notes = input.Notes
		updated.TotalAmount = input.Total()
		if err := tx.UpdatePurchase(ctx, updated); err != nil {
			return err
		}
		items := buildItems(id, input.Items)
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		updated.Items = items
		return s.receiveStock(ctx, tx, updated, items, actor)
	})
	if err != nil {
		return Purchase{}, err
	}
	s.ledger.Invalidate(ctx)
	s.logger.Info("purchase updated", slog.Int64("purchase_id", id))
	return updated, nil
}

// Delete reverses the received stock and removes the document. The ledger
// entries written for the purchase remain as history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	actor := shared.ActorFromContext(ctx)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reversal.ReversePurchase(ctx, tx.Ledger(), id, existing.SupplierName, lineItems(items), actor); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, id)
	})
	if err != nil {
		return err
	}
	s.ledger.Invalidate(ctx)
	s.logger.Info("purchase deleted", slog.Int64("purchase_id", id))
	return nil
}

// Get loads one purchase with lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.store.Get(ctx, id)
}

// List returns purchases within a date window.
func (s *Service) List(ctx context.Context, from, to time.Time, limit int) ([]Purchase, error) {
	return s.store.List(ctx, from, to, limit)
}

func (s *Service) receiveStock(ctx context.Context, tx TxRepository, p Purchase, items []Item, actor int64) error {
	for _, item := range items {
		_, err := s.ledger.Apply(ctx, tx.Ledger(), ledger.Mutation{
			ProductID:     item.ProductID,
			Type:          ledger.TypePurchase,
			Delta:         item.Quantity,
			Reason:        fmt.Sprintf("Purchase from %s", p.SupplierName),
			ReferenceType: ledger.ReferencePurchase,
			ReferenceID:   p.ID,
			UserID:        actor,
		})
		if err != nil {
			return fmt.Errorf("receive product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *Service) guard(ctx context.Context, key string) error {
	if s.idem == nil || key == "" {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, key, "purchasing")
}

func (s *Service) release(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key failed", slog.String("key", key), slog.Any("error", err))
	}
}

func buildItems(purchaseID int64, inputs []ItemInput) []Item {
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, Item{
			PurchaseID: purchaseID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitCost:   in.UnitCost,
			Subtotal:   in.UnitCost.Mul(decimal.NewFromFloat(in.Quantity)),
		})
	}
	return items
}

func lineItems(items []Item) []ledger.LineItem {
	lines := make([]ledger.LineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, ledger.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
