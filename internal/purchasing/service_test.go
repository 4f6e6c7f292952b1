package purchasing

import (
	"context"
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

// stockStore is an in-memory ledger.TxRepository shared by the document fake.
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

// memoryStore is an in-memory Store with snapshot rollback.
type memoryStore struct {
	stock     *stockStore
	purchases map[int64]Purchase
	items     map[int64][]Item
	nextID    int64
}

func newMemoryStore(products map[int64]float64) *memoryStore {
	return &memoryStore{
		stock:     &stockStore{products: products, balances: make(map[int64]ledger.Balance)},
		purchases: make(map[int64]Purchase),
		items:     make(map[int64][]Item),
	}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := maps.Clone(m.stock.products)
	balances := maps.Clone(m.stock.balances)
	adjustments := append([]ledger.Adjustment(nil), m.stock.adjustments...)
	purchases := maps.Clone(m.purchases)
	items := make(map[int64][]Item, len(m.items))
	for k, v := range m.items {
		items[k] = append([]Item(nil), v...)
	}
	if err := fn(ctx, m); err != nil {
		m.stock.products = products
		m.stock.balances = balances
		m.stock.adjustments = adjustments
		m.purchases = purchases
		m.items = items
		return err
	}
	return nil
}

func (m *memoryStore) Ledger() ledger.TxRepository { return m.stock }

func (m *memoryStore) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.purchases[p.ID] = p
	return p, nil
}

func (m *memoryStore) UpdatePurchase(ctx context.Context, p Purchase) error {
	if _, ok := m.purchases[p.ID]; !ok {
		return shared.ErrNotFound
	}
	m.purchases[p.ID] = p
	return nil
}

func (m *memoryStore) DeletePurchase(ctx context.Context, id int64) error {
	if _, ok := m.purchases[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.purchases, id)
	return nil
}

func (m *memoryStore) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	p, ok := m.purchases[id]
	if !ok {
		return Purchase{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) GetItems(ctx context.Context, purchaseID int64) ([]Item, error) {
	return append([]Item(nil), m.items[purchaseID]...), nil
}

func (m *memoryStore) InsertItems(ctx context.Context, purchaseID int64, items []Item) error {
	m.items[purchaseID] = append(m.items[purchaseID], items...)
	return nil
}

func (m *memoryStore) DeleteItems(ctx context.Context, purchaseID int64) error {
	delete(m.items, purchaseID)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Purchase, error) {
	p, ok := m.purchases[id]
	if !ok {
		return Purchase{}, shared.ErrNotFound
	}
	p.Items = append([]Item(nil), m.items[id]...)
	return p, nil
}

func (m *memoryStore) List(ctx context.Context, from, to time.Time, limit int) ([]Purchase, error) {
	var out []Purchase
	for _, p := range m.purchases {
		out = append(out, p)
	}
	return out, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func newTestService(store *memoryStore, idem IdempotencyPort) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerSvc := ledger.NewService(nil, nil, nil, nil, ledger.ServiceConfig{})
	return NewService(logger, store, ledgerSvc, idem)
}

func purchaseInput() PurchaseInput {
	return PurchaseInput{
		SupplierName:  "PT Sumber Makmur",
		InvoiceNumber: "PB-001",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 50, UnitCost: decimal.NewFromInt(10000)},
			{ProductID: 2, Quantity: 20, UnitCost: decimal.NewFromInt(5000)},
		},
	}
}

func TestCreatePurchaseReceivesStockAtomically(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0, 2: 5})
	svc := newTestService(store, nil)

	created, err := svc.Create(context.Background(), purchaseInput())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.True(t, created.TotalAmount.Equal(decimal.NewFromInt(600000)))
	require.Len(t, created.Items, 2)

	require.Equal(t, float64(50), store.stock.balances[1].Quantity)
	require.Equal(t, float64(25), store.stock.balances[2].Quantity, "seeded from displayed stock")

	require.Len(t, store.stock.adjustments, 2)
	first := store.stock.adjustments[0]
	require.Equal(t, ledger.TypePurchase, first.Type)
	require.Equal(t, ledger.ReferencePurchase, first.ReferenceType)
	require.Equal(t, created.ID, first.ReferenceID)
	require.Equal(t, "Purchase from PT Sumber Makmur", first.Reason)
}

func TestCreatePurchaseUnknownProductRollsBackEverything(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0})
	idem := &memoryIdempotency{}
	svc := newTestService(store, idem)

	input := purchaseInput()
	input.IdempotencyKey = "req-1"
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, store.purchases, "document rolled back")
	require.Empty(t, store.stock.adjustments, "ledger rolled back")
	require.Empty(t, store.stock.balances)
	require.False(t, idem.keys["req-1"], "key released so the client can retry")
}

func TestCreatePurchaseDuplicateKeyRejected(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0, 2: 0})
	idem := &memoryIdempotency{}
	svc := newTestService(store, idem)

	input := purchaseInput()
	input.IdempotencyKey = "req-7"
	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, store.purchases, 1)
}

func TestUpdatePurchaseReversesThenReapplies(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0, 2: 0})
	svc := newTestService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, purchaseInput())
	require.NoError(t, err)

	update := PurchaseInput{
		SupplierName: "CV Karya Abadi",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 30, UnitCost: decimal.NewFromInt(9000)},
		},
	}
	updated, err := svc.Update(ctx, created.ID, update)
	require.NoError(t, err)
	require.Equal(t, "CV Karya Abadi", updated.SupplierName)
	require.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(270000)))

	require.Equal(t, float64(30), store.stock.balances[1].Quantity)
	require.Equal(t, float64(0), store.stock.balances[2].Quantity, "dropped line fully reversed")

	// 2 receipts + 2 reversal corrections + 1 new receipt; nothing deleted.
	require.Len(t, store.stock.adjustments, 5)
	reversal := store.stock.adjustments[2]
	require.Equal(t, ledger.TypeCorrection, reversal.Type)
	require.Equal(t, float64(-50), reversal.QuantityChange)
	require.Equal(t, "Reversed purchase from PT Sumber Makmur", reversal.Reason)
}

func TestDeletePurchaseReversesStockKeepsHistory(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0, 2: 0})
	svc := newTestService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, purchaseInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	require.Empty(t, store.purchases)
	require.Empty(t, store.items[created.ID])
	require.Equal(t, float64(0), store.stock.balances[1].Quantity)
	require.Equal(t, float64(0), store.stock.balances[2].Quantity)
	require.Len(t, store.stock.adjustments, 4, "reversal appends, never deletes")
}

func TestDeletePurchaseNotFound(t *testing.T) {
	store := newMemoryStore(map[int64]float64{})
	svc := newTestService(store, nil)

	err := svc.Delete(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
