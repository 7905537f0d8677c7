package production

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obrador-ops/obrador-ops/internal/stock"
)

type stockStub struct {
	items map[int64]stock.StockItem
}

func (s *stockStub) GetItem(ctx context.Context, id int64) (stock.StockItem, error) {
	item, ok := s.items[id]
	if !ok {
		return stock.StockItem{}, stock.ErrItemNotFound
	}
	return item, nil
}

func TestValidateCollectsAllShortages(t *testing.T) {
	reader := &stockStub{items: map[int64]stock.StockItem{
		1: {ID: 1, Name: "harina", QuantityTotal: 100, QuantityProcessed: 95, Active: true},
		2: {ID: 2, Name: "azucar", QuantityTotal: 50, QuantityProcessed: 10, Active: true},
		3: {ID: 3, Name: "mantequilla", QuantityTotal: 5, QuantityProcessed: 5, Active: true},
	}}
	v := NewValidator(reader)
	ctx := context.Background()

	err := v.Validate(ctx, []Requirement{
		{ItemID: 1, Name: "harina", Quantity: 10},
		{ItemID: 2, Name: "azucar", Quantity: 20},
		{ItemID: 3, Name: "mantequilla", Quantity: 1},
	})
	var shortage *stock.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 2)
	require.Equal(t, int64(1), shortage.Shortages[0].ItemID)
	require.InDelta(t, 5.0, shortage.Shortages[0].Available, 0.0001)
	require.Equal(t, int64(3), shortage.Shortages[1].ItemID)
}

func TestValidatePassesWhenCovered(t *testing.T) {
	reader := &stockStub{items: map[int64]stock.StockItem{
		1: {ID: 1, QuantityTotal: 100, QuantityProcessed: 20, Active: true},
	}}
	v := NewValidator(reader)

	require.NoError(t, v.Validate(context.Background(), []Requirement{{ItemID: 1, Quantity: 80}}))
}

func TestValidateRejectsBadInput(t *testing.T) {
	v := NewValidator(&stockStub{items: map[int64]stock.StockItem{
		1: {ID: 1, QuantityTotal: 10, Active: true},
	}})
	ctx := context.Background()

	require.ErrorIs(t, v.Validate(ctx, nil), ErrNoFormula)
	require.ErrorIs(t, v.Validate(ctx, []Requirement{{ItemID: 1, Quantity: 0}}), stock.ErrInvalidQuantity)
	require.ErrorIs(t, v.Validate(ctx, []Requirement{{ItemID: 1, Quantity: -2}}), stock.ErrInvalidQuantity)
}

func TestValidateIsReadOnly(t *testing.T) {
	reader := &stockStub{items: map[int64]stock.StockItem{
		1: {ID: 1, QuantityTotal: 10, QuantityProcessed: 0, Active: true},
	}}
	v := NewValidator(reader)
	ctx := context.Background()

	require.NoError(t, v.Validate(ctx, []Requirement{{ItemID: 1, Quantity: 10}}))
	require.NoError(t, v.Validate(ctx, []Requirement{{ItemID: 1, Quantity: 10}}))
	require.InDelta(t, 0.0, reader.items[1].QuantityProcessed, 0.0001)
}
