package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Stock is a display mirror maintained by the
// inventory ledger; catalog never writes it directly.
type Product struct {
	ID          int64           `json:"id"`
	Barcode     string          `json:"barcode"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Stock       float64         `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductInput carries create/update fields.
type ProductInput struct {
	Barcode     string          `json:"barcode" validate:"required,max=64"`
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Query  string
	Limit  int
	Offset int
}
