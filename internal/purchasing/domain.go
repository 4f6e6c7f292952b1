package purchasing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is a goods-receipt document. Receiving stock goes through the
// inventory ledger in the same transaction as the document write.
type Purchase struct {
	ID            int64           `json:"id"`
	SupplierName  string          `json:"supplier_name"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     int64           `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items,omitempty"`
}

// Item is one received product line.
type Item struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchase_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   float64         `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  float64         `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// PurchaseInput creates or rewrites a purchase document.
type PurchaseInput struct {
	SupplierName   string      `json:"supplier_name" validate:"required,max=255"`
	InvoiceNumber  string      `json:"invoice_number" validate:"max=64"`
	PurchaseDate   time.Time   `json:"purchase_date"`
	Notes          string      `json:"notes"`
	IdempotencyKey string      `json:"idempotency_key"`
	Items          []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// Total sums line subtotals.
func (in PurchaseInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range in.Items {
		total = total.Add(item.UnitCost.Mul(decimal.NewFromFloat(item.Quantity)))
	}
	return total
}
