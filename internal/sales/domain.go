package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses.
const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// Transaction is a completed point-of-sale checkout.
type Transaction struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CashierID     int64           `json:"cashier_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Details       []Detail        `json:"details,omitempty"`
}

// Detail is one sold line.
type Detail struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      float64         `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// DetailInput is one requested line.
type DetailInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CheckoutInput describes a checkout request.
type CheckoutInput struct {
	CustomerName   string          `json:"customer_name" validate:"max=255"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	Details        []DetailInput   `json:"details" validate:"required,min=1,dive"`
}

// Total sums line subtotals.
func (in CheckoutInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range in.Details {
		total = total.Add(d.UnitPrice.Mul(decimal.NewFromFloat(d.Quantity)))
	}
	return total
}
