package sales

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/artha-pos/artha-pos/internal/ledger"
	"github.com/artha-pos/artha-pos/internal/shared"
)

type stockStore struct {
	products    map[int64]float64
	balances    map[int64]ledger.Balance
	adjustments []ledger.Adjustment
	nextID      int64
}

func (s *stockStore) GetProductForUpdate(ctx context.Context, productID int64) (ledger.ProductRef, error) {
	stock, ok := s.products[productID]
	if !ok {
		return ledger.ProductRef{}, shared.ErrNotFound
	}
	return ledger.ProductRef{ID: productID, Stock: stock}, nil
}

func (s *stockStore) GetBalance(ctx context.Context, productID int64) (ledger.Balance, error) {
	balance, ok := s.balances[productID]
	if !ok {
		return ledger.Balance{}, ledger.ErrBalanceNotFound
	}
	return balance, nil
}

func (s *stockStore) UpsertBalance(ctx context.Context, balance ledger.Balance) error {
	s.balances[balance.ProductID] = balance
	return nil
}

func (s *stockStore) InsertAdjustment(ctx context.Context, adj ledger.Adjustment) (ledger.Adjustment, error) {
	s.nextID++
	adj.ID = s.nextID
	s.adjustments = append(s.adjustments, adj)
	return adj, nil
}

func (s *stockStore) UpdateProductStock(ctx context.Context, productID int64, quantity float64) error {
	s.products[productID] = quantity
	return nil
}

type memoryStore struct {
	stock        *stockStore
	transactions map[int64]Transaction
	details      map[int64][]Detail
	nextID       int64
	insertErr    error
}

func newMemoryStore(products map[int64]float64) *memoryStore {
	return &memoryStore{
		stock:        &stockStore{products: products, balances: make(map[int64]ledger.Balance)},
		transactions: make(map[int64]Transaction),
		details:      make(map[int64][]Detail),
	}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := maps.Clone(m.stock.products)
	balances := maps.Clone(m.stock.balances)
	adjustments := append([]ledger.Adjustment(nil), m.stock.adjustments...)
	transactions := maps.Clone(m.transactions)
	details := make(map[int64][]Detail, len(m.details))
	for k, v := range m.details {
		details[k] = append([]Detail(nil), v...)
	}
	if err := fn(ctx, m); err != nil {
		m.stock.products = products
		m.stock.balances = balances
		m.stock.adjustments = adjustments
		m.transactions = transactions
		m.details = details
		return err
	}
	return nil
}

func (m *memoryStore) Ledger() ledger.TxRepository { return m.stock }

func (m *memoryStore) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	if m.insertErr != nil {
		return Transaction{}, m.insertErr
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.transactions[t.ID] = t
	return t, nil
}

func (m *memoryStore) InsertDetails(ctx context.Context, transactionID int64, details []Detail) error {
	m.details[transactionID] = append(m.details[transactionID], details...)
	return nil
}

func (m *memoryStore) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return Transaction{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) GetDetails(ctx context.Context, transactionID int64) ([]Detail, error) {
	return append([]Detail(nil), m.details[transactionID]...), nil
}

func (m *memoryStore) SetStatus(ctx context.Context, id int64, status string) error {
	t, ok := m.transactions[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.Status = status
	m.transactions[id] = t
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return Transaction{}, shared.ErrNotFound
	}
	t.Details = append([]Detail(nil), m.details[id]...)
	return t, nil
}

func (m *memoryStore) List(ctx context.Context, from, to time.Time, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, t := range m.transactions {
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryStore) NextInvoiceNumber(ctx context.Context, day time.Time) (string, error) {
	return fmt.Sprintf("INV-%s-%04d", day.Format("20060102"), m.nextID+1), nil
}

func newTestService(store *memoryStore, strict bool) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerSvc := ledger.NewService(nil, nil, nil, nil, ledger.ServiceConfig{StrictStock: strict})
	return NewService(logger, store, ledgerSvc, nil)
}

func checkoutInput() CheckoutInput {
	return CheckoutInput{
		CustomerName: "Walk-in",
		PaidAmount:   decimal.NewFromInt(100000),
		Details: []DetailInput{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(22000)},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(15000)},
		},
	}
}

func TestCheckoutDeductsStockAtomically(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 5})
	svc := newTestService(store, false)

	created, err := svc.Checkout(context.Background(), checkoutInput())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, created.Status)
	require.True(t, created.TotalAmount.Equal(decimal.NewFromInt(59000)))
	require.True(t, created.ChangeAmount.Equal(decimal.NewFromInt(41000)))
	require.NotEmpty(t, created.InvoiceNumber)

	require.Equal(t, float64(8), store.stock.balances[1].Quantity)
	require.Equal(t, float64(4), store.stock.balances[2].Quantity)

	require.Len(t, store.stock.adjustments, 2)
	sale := store.stock.adjustments[0]
	require.Equal(t, ledger.TypeSale, sale.Type)
	require.Equal(t, float64(-2), sale.QuantityChange)
	require.Equal(t, ledger.ReferenceTransaction, sale.ReferenceType)
	require.Equal(t, created.ID, sale.ReferenceID)
}

func TestCheckoutInsufficientPayment(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 5})
	svc := newTestService(store, false)

	input := checkoutInput()
	input.PaidAmount = decimal.NewFromInt(1000)
	_, err := svc.Checkout(context.Background(), input)
	require.ErrorIs(t, err, ErrInsufficientPayment)
	require.Empty(t, store.transactions)
}

func TestCheckoutDuplicateInvoiceRollsBack(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 5})
	store.insertErr = fmt.Errorf("invoice number INV-20250901-0001 taken, retry checkout: %w", shared.ErrDuplicate)
	svc := newTestService(store, false)

	_, err := svc.Checkout(context.Background(), checkoutInput())
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Empty(t, store.transactions, "losing checkout leaves nothing behind")
	require.Empty(t, store.stock.adjustments)
}

func TestCheckoutStrictStockRollsBackWholeSale(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 0})
	svc := newTestService(store, true)

	_, err := svc.Checkout(context.Background(), checkoutInput())
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	require.Empty(t, store.transactions, "transaction rolled back")
	require.Empty(t, store.stock.adjustments, "first line's deduction rolled back too")
	require.Equal(t, float64(10), store.stock.products[1])
}

func TestCheckoutClampsWhenNotStrict(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 1, 2: 5})
	svc := newTestService(store, false)

	created, err := svc.Checkout(context.Background(), checkoutInput())
	require.NoError(t, err)

	sale := store.stock.adjustments[0]
	require.Equal(t, float64(-2), sale.QuantityChange)
	require.Equal(t, float64(0), sale.QuantityAfter)
	require.Equal(t, float64(0), store.stock.balances[1].Quantity)
	require.Len(t, created.Details, 2)
}

func TestRefundRestoresStockAndFlagsTransaction(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 5})
	svc := newTestService(store, false)
	ctx := context.Background()

	created, err := svc.Checkout(ctx, checkoutInput())
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, refunded.Status)
	require.Equal(t, StatusRefunded, store.transactions[created.ID].Status)

	require.Equal(t, float64(10), store.stock.balances[1].Quantity)
	require.Equal(t, float64(5), store.stock.balances[2].Quantity)

	// 2 sales + 2 returns, sale entries untouched.
	require.Len(t, store.stock.adjustments, 4)
	ret := store.stock.adjustments[2]
	require.Equal(t, ledger.TypeReturn, ret.Type)
	require.Equal(t, float64(2), ret.QuantityChange)
	require.Equal(t, fmt.Sprintf("Return for invoice: %s", created.InvoiceNumber), ret.Reason)
}

func TestRefundTwiceRejected(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10, 2: 5})
	svc := newTestService(store, false)
	ctx := context.Background()

	created, err := svc.Checkout(ctx, checkoutInput())
	require.NoError(t, err)
	_, err = svc.Refund(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.Refund(ctx, created.ID)
	require.ErrorIs(t, err, ErrAlreadyRefunded)
	require.Len(t, store.stock.adjustments, 4, "no extra returns written")
}

func TestRefundUnknownTransaction(t *testing.T) {
	store := newMemoryStore(map[int64]float64{})
	svc := newTestService(store, false)

	_, err := svc.Refund(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
