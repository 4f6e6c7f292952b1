package ledger

import (
	"context"
	"fmt"
)

// Reference types carried by adjustments that point at a causing document.
const (
	ReferencePurchase    = "purchase"
	ReferenceTransaction = "transaction"
)

// LineItem is one document line affecting stock.
type LineItem struct {
	ProductID int64
	Quantity  float64
}

// Coordinator builds compensating mutations when a document that previously
// fed the ledger is edited or deleted. Reversal never deletes or edits prior
// adjustment entries; it only appends new ones carrying the same reference.
type Coordinator struct {
	svc *Service
}

// NewCoordinator constructs Coordinator.
func NewCoordinator(svc *Service) *Coordinator {
	return &Coordinator{svc: svc}
}

// ReversePurchase cancels received stock with correction entries. It runs in
// the caller's transaction so document rewrites stay atomic end to end.
func (c *Coordinator) ReversePurchase(ctx context.Context, tx TxRepository, purchaseID int64, supplierName string, items []LineItem, userID int64) error {
	for _, item := range items {
		if item.ProductID == 0 {
			continue
		}
		_, err := c.svc.Apply(ctx, tx, Mutation{
			ProductID:     item.ProductID,
			Type:          TypeCorrection,
			Delta:         -item.Quantity,
			Reason:        fmt.Sprintf("Reversed purchase from %s", supplierName),
			ReferenceType: ReferencePurchase,
			ReferenceID:   purchaseID,
			UserID:        userID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReverseSale restores sold stock with return entries.
func (c *Coordinator) ReverseSale(ctx context.Context, tx TxRepository, transactionID int64, invoice string, items []LineItem, userID int64) error {
	for _, item := range items {
		if item.ProductID == 0 {
			continue
		}
		_, err := c.svc.Apply(ctx, tx, Mutation{
			ProductID:     item.ProductID,
			Type:          TypeReturn,
			Delta:         item.Quantity,
			Reason:        fmt.Sprintf("Return for invoice: %s", invoice),
			ReferenceType: ReferenceTransaction,
			ReferenceID:   transactionID,
			UserID:        userID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReverseReference reverses a whole document in its own transaction. label is
// the human identifier used in reasons (supplier name or invoice number).
func (c *Coordinator) ReverseReference(ctx context.Context, referenceType string, referenceID int64, label string, items []LineItem, userID int64) error {
	var fn func(context.Context, TxRepository) error
	switch referenceType {
	case ReferencePurchase:
		fn = func(ctx context.Context, tx TxRepository) error {
			return c.ReversePurchase(ctx, tx, referenceID, label, items, userID)
		}
	case ReferenceTransaction:
		fn = func(ctx context.Context, tx TxRepository) error {
			return c.ReverseSale(ctx, tx, referenceID, label, items, userID)
		}
	default:
		return fmt.Errorf("ledger: unknown reference type %q", referenceType)
	}
	if err := c.svc.repo.WithTx(ctx, fn); err != nil {
		return err
	}
	c.svc.Invalidate(ctx)
	return nil
}
