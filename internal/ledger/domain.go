package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType classifies a single stock mutation.
type AdjustmentType string

const (
	// TypeIn is a manual stock-in.
	TypeIn AdjustmentType = "in"
	// TypeOut is a manual stock-out.
	TypeOut AdjustmentType = "out"
	// TypeAdjustment is an operator adjustment that removes stock.
	TypeAdjustment AdjustmentType = "adjustment"
	// TypePurchase records goods received from a purchase document.
	TypePurchase AdjustmentType = "purchase"
	// TypeSale records goods leaving through a sales transaction.
	TypeSale AdjustmentType = "sale"
	// TypeReturn records goods coming back, including sale reversals.
	TypeReturn AdjustmentType = "return"
	// TypeDamage records written-off stock.
	TypeDamage AdjustmentType = "damage"
	// TypeCorrection sets or compensates stock in either direction.
	TypeCorrection AdjustmentType = "correction"
)

// Direction reports the sign the type's quantity_change must carry:
// +1 incoming, -1 outgoing, 0 for correction which may be either.
func (t AdjustmentType) Direction() int {
	switch t {
	case TypeIn, TypePurchase, TypeReturn:
		return 1
	case TypeOut, TypeSale, TypeDamage, TypeAdjustment:
		return -1
	default:
		return 0
	}
}

// Valid reports whether t is a known adjustment type.
func (t AdjustmentType) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeAdjustment, TypePurchase, TypeSale, TypeReturn, TypeDamage, TypeCorrection:
		return true
	}
	return false
}

// Balance holds the authoritative current quantity for one product.
type Balance struct {
	ProductID int64
	Quantity  float64
	UpdatedAt time.Time
}

// Adjustment is one immutable audit record of a single stock mutation.
// Entries are never edited in place; they may only be superseded by new
// compensating entries.
type Adjustment struct {
	ID             int64          `json:"id"`
	ProductID      int64          `json:"product_id"`
	UserID         int64          `json:"user_id,omitempty"`
	Type           AdjustmentType `json:"type"`
	QuantityBefore float64        `json:"quantity_before"`
	QuantityChange float64        `json:"quantity_change"`
	QuantityAfter  float64        `json:"quantity_after"`
	ReferenceType  string         `json:"reference_type,omitempty"`
	ReferenceID    int64          `json:"reference_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MutationInput describes a requested stock change. Quantity is a magnitude.
type MutationInput struct {
	ProductID     int64
	Type          AdjustmentType
	Quantity      float64
	Reason        string
	Notes         string
	ReferenceType string
	ReferenceID   int64
	UserID        int64
}

// Mutation is the signed form handed to the engine core.
type Mutation struct {
	ProductID     int64
	Type          AdjustmentType
	Delta         float64
	Reason        string
	Notes         string
	ReferenceType string
	ReferenceID   int64
	UserID        int64
}

// HistoryFilter narrows adjustment history queries. Zero values mean "any".
type HistoryFilter struct {
	ProductID     int64
	Type          AdjustmentType
	ReferenceType string
	ReferenceID   int64
	From          time.Time
	To            time.Time
	Limit         int
}

// LowStockThreshold marks products considered low on stock.
const LowStockThreshold = 10

// Summary aggregates the whole inventory for dashboards.
type Summary struct {
	TotalProducts       int64           `json:"total_products"`
	TotalStock          float64         `json:"total_stock"`
	TotalStockValueBuy  decimal.Decimal `json:"total_stock_value_buy"`
	TotalStockValueSell decimal.Decimal `json:"total_stock_value_sell"`
	LowStockCount       int64           `json:"low_stock_count"`
	OutOfStockCount     int64           `json:"out_of_stock_count"`
}

// MovementTotals aggregates per-product movement over a period.
type MovementTotals struct {
	TotalIn      float64 `json:"total_in"`
	TotalOut     float64 `json:"total_out"`
	CurrentStock float64 `json:"current_stock"`
}

// ErrInvalidQuantity indicates a negative magnitude or target.
var ErrInvalidQuantity = errors.New("ledger: quantity must be non negative")

// ErrInvalidType indicates an adjustment type not allowed for the operation.
var ErrInvalidType = errors.New("ledger: adjustment type not allowed")

// ErrInsufficientStock is returned in strict mode when a reduction would
// drive the balance below zero.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")
