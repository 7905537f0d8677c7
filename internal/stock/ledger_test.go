package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type ledgerStub struct {
	lastFilter MovementFilter
	movements  []Movement
	total      int
}

func (s *ledgerStub) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	s.lastFilter = filter
	return s.movements, s.total, nil
}

func TestLedgerDefaultsPageSize(t *testing.T) {
	stub := &ledgerStub{total: 45}
	ledger := NewLedger(stub)

	_, paging, err := ledger.Movements(context.Background(), MovementFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, stub.lastFilter.Page)
	require.Equal(t, 20, stub.lastFilter.PageSize)
	require.Equal(t, 45, paging.Total)
	require.Equal(t, 3, paging.TotalPages)
}

func TestLedgerCapsPageSize(t *testing.T) {
	stub := &ledgerStub{}
	ledger := NewLedger(stub)

	_, _, err := ledger.Movements(context.Background(), MovementFilter{Page: 2, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 100, stub.lastFilter.PageSize)
	require.Equal(t, 2, stub.lastFilter.Page)
}

func TestBatchMovements(t *testing.T) {
	now := time.Now().UTC()
	stub := &ledgerStub{movements: []Movement{
		{ID: 1, Kind: MovementConsumo, BatchID: "b-1", CreatedAt: now},
		{ID: 2, Kind: MovementProduccion, BatchID: "b-1", CreatedAt: now},
	}, total: 2}
	ledger := NewLedger(stub)

	movements, err := ledger.BatchMovements(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, "b-1", stub.lastFilter.BatchID)

	_, err = ledger.BatchMovements(context.Background(), "")
	require.Error(t, err)
}
