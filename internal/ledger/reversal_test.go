package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReversePurchaseAppendsCompensatingCorrections(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0, 2: 0})
	svc := NewService(store, nil, nil, nil, ServiceConfig{})
	coord := NewCoordinator(svc)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, MutationInput{
		ProductID: 1, Type: TypePurchase, Quantity: 50,
		ReferenceType: ReferencePurchase, ReferenceID: 10,
	})
	require.NoError(t, err)
	_, err = svc.AddStock(ctx, MutationInput{
		ProductID: 2, Type: TypePurchase, Quantity: 20,
		ReferenceType: ReferencePurchase, ReferenceID: 10,
	})
	require.NoError(t, err)

	items := []LineItem{{ProductID: 1, Quantity: 50}, {ProductID: 2, Quantity: 20}}
	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return coord.ReversePurchase(ctx, tx, 10, "PT Sumber Makmur", items, 3)
	})
	require.NoError(t, err)

	require.Equal(t, float64(0), store.balances[1].Quantity)
	require.Equal(t, float64(0), store.balances[2].Quantity)

	// History grew; nothing was deleted or edited.
	require.Len(t, store.adjustments, 4)
	reversal := store.latest(1)
	require.Equal(t, TypeCorrection, reversal.Type)
	require.Equal(t, float64(50), reversal.QuantityBefore)
	require.Equal(t, float64(-50), reversal.QuantityChange)
	require.Equal(t, float64(0), reversal.QuantityAfter)
	require.Equal(t, ReferencePurchase, reversal.ReferenceType)
	require.Equal(t, int64(10), reversal.ReferenceID)
	require.Equal(t, "Reversed purchase from PT Sumber Makmur", reversal.Reason)
	require.Equal(t, int64(3), reversal.UserID)
}

func TestReverseSaleRestoresStockWithReturns(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 0})
	store.balances[1] = Balance{ProductID: 1, Quantity: 100}
	store.products[1] = 100
	svc := NewService(store, nil, nil, nil, ServiceConfig{})
	coord := NewCoordinator(svc)
	ctx := context.Background()

	_, err := svc.ReduceStock(ctx, MutationInput{
		ProductID: 1, Type: TypeSale, Quantity: 30,
		ReferenceType: ReferenceTransaction, ReferenceID: 77,
	})
	require.NoError(t, err)
	require.Equal(t, float64(70), store.balances[1].Quantity)

	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return coord.ReverseSale(ctx, tx, 77, "INV-2026-0042", []LineItem{{ProductID: 1, Quantity: 30}}, 5)
	})
	require.NoError(t, err)

	require.Equal(t, float64(100), store.balances[1].Quantity)
	ret := store.latest(1)
	require.Equal(t, TypeReturn, ret.Type)
	require.Equal(t, float64(30), ret.QuantityChange)
	require.Equal(t, "Return for invoice: INV-2026-0042", ret.Reason)
	require.Len(t, store.adjustments, 2)
}

func TestReverseReferenceRunsOwnTransaction(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 40})
	svc := NewService(store, nil, nil, nil, ServiceConfig{})
	coord := NewCoordinator(svc)
	ctx := context.Background()

	err := coord.ReverseReference(ctx, ReferencePurchase, 12, "CV Karya", []LineItem{{ProductID: 1, Quantity: 15}}, 2)
	require.NoError(t, err)
	require.Equal(t, float64(25), store.balances[1].Quantity)

	err = coord.ReverseReference(ctx, "voucher", 1, "x", nil, 2)
	require.Error(t, err)
}

func TestReversePurchaseSkipsEmptyLines(t *testing.T) {
	store := newMemoryStore(map[int64]float64{1: 10})
	svc := NewService(store, nil, nil, nil, ServiceConfig{})
	coord := NewCoordinator(svc)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return coord.ReversePurchase(ctx, tx, 9, "Toko", []LineItem{{ProductID: 0, Quantity: 5}}, 1)
	})
	require.NoError(t, err)
	require.Empty(t, store.adjustments)
}
