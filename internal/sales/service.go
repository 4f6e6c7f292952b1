package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/shared"
)

// Store is the transactional persistence surface.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, from, to time.Time, limit int) ([]Transaction, error)
}

// IdempotencyPort guards duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ErrAlreadyRefunded indicates a second refund attempt.
var ErrAlreadyRefunded = fmt.Errorf("transaction already refunded: %w", shared.ErrValidation)

// ErrInsufficientPayment indicates paid amount below the total.
var ErrInsufficientPayment = fmt.Errorf("paid amount below total: %w", shared.ErrValidation)

// Service handles checkout and refunds. Selling stock and recording the
// transaction happen in one transaction through the inventory ledger.
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

// Checkout records the sale and deducts stock atomically.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Transaction, error) {
	total := input.Total()
	if input.PaidAmount.LessThan(total) {
		return Transaction{}, ErrInsufficientPayment
	}
	if s.idem != nil && input.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "sales"); err != nil {
			return Transaction{}, err
		}
	}
	actor := shared.ActorFromContext(ctx)

	var created Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Numbering runs inside the transaction; a concurrent checkout that
		// lands on the same number fails the unique index and rolls back
		// whole, surfacing a retryable duplicate.
		invoice, err := tx.NextInvoiceNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		t := Transaction{
			InvoiceNumber: invoice,
			CashierID:     actor,
			CustomerName:  input.CustomerName,
			TotalAmount:   total,
			PaidAmount:    input.PaidAmount,
			ChangeAmount:  input.PaidAmount.Sub(total),
			Status:        StatusCompleted,
		}
		created, err = tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		details := buildDetails(created.ID, input.Details)
		if err := tx.InsertDetails(ctx, created.ID, details); err != nil {
			return err
		}
		created.Details = details

		for _, d := range details {
			_, err := s.ledger.Apply(ctx, tx.Ledger(), ledger.Mutation{
				ProductID:     d.ProductID,
				Type:          ledger.TypeSale,
				Delta:         -d.Quantity,
				Reason:        fmt.Sprintf("Sale invoice: %s", invoice),
				ReferenceType: ledger.ReferenceTransaction,
				ReferenceID:   created.ID,
				UserID:        actor,
			})
			if err != nil {
				return fmt.Errorf("sell product %d: %w", d.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.release(ctx, input.IdempotencyKey)
		return Transaction{}, err
	}
	s.ledger.Invalidate(ctx)
	s.logger.Info("checkout completed",
		slog.Int64("transaction_id", created.ID),
		slog.String("invoice", created.InvoiceNumber),
		slog.Int("lines", len(created.Details)))
	return created, nil
}

// Refund restores sold stock with return entries and flags the transaction.
// The original sale entries stay in the log untouched.
func (s *Service) Refund(ctx context.Context, id int64) (Transaction, error) {
	actor := shared.ActorFromContext(ctx)

	// Deterministic key so concurrent refund submissions collapse to one.
	refundKey := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("refund:%d", id))).String()
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, refundKey, "sales"); err != nil {
			return Transaction{}, err
		}
	}

	var refunded Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status == StatusRefunded {
			return ErrAlreadyRefunded
		}
		details, err := tx.GetDetails(ctx, id)
		if err != nil {
			return err
		}
		lines := make([]ledger.LineItem, 0, len(details))
		for _, d := range details {
			lines = append(lines, ledger.LineItem{ProductID: d.ProductID, Quantity: d.Quantity})
		}
		if err := s.reversal.ReverseSale(ctx, tx.Ledger(), id, existing.InvoiceNumber, lines, actor); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, StatusRefunded); err != nil {
			return err
		}
		refunded = existing
		refunded.Status = StatusRefunded
		refunded.Details = details
		return nil
	})
	if err != nil {
		s.release(ctx, refundKey)
		return Transaction{}, err
	}
	s.ledger.Invalidate(ctx)
	s.logger.Info("transaction refunded", slog.Int64("transaction_id", id), slog.String("invoice", refunded.InvoiceNumber))
	return refunded, nil
}

// Get loads one transaction with details.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.store.Get(ctx, id)
}

// List returns transactions within a date window.
func (s *Service) List(ctx context.Context, from, to time.Time, limit int) ([]Transaction, error) {
	return s.store.List(ctx, from, to, limit)
}

func (s *Service) release(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key failed", slog.String("key", key), slog.Any("error", err))
	}
}

func buildDetails(transactionID int64, inputs []DetailInput) []Detail {
	details := make([]Detail, 0, len(inputs))
	for _, in := range inputs {
		details = append(details, Detail{
			TransactionID: transactionID,
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			Subtotal:      in.UnitPrice.Mul(decimal.NewFromFloat(in.Quantity)),
		})
	}
	return details
}
