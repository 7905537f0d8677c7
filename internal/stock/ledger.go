package stock

import (
	"context"
	"fmt"

	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// LedgerReader exposes the ledger queries used by Ledger.
type LedgerReader interface {
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
}

// Ledger serves read access to the movement history. The history is
// append-only; this type exposes no mutation.
type Ledger struct {
	repo LedgerReader
}

// NewLedger constructs the ledger query service.
func NewLedger(repo LedgerReader) *Ledger {
	return &Ledger{repo: repo}
}

// Movements returns one page of history, newest first.
func (l *Ledger) Movements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if l == nil || l.repo == nil {
		return nil, shared.Pagination{}, fmt.Errorf("stock: ledger not configured")
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	movements, total, err := l.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}

// BatchMovements returns every movement recorded under one production batch.
func (l *Ledger) BatchMovements(ctx context.Context, batchID string) ([]Movement, error) {
	if batchID == "" {
		return nil, fmt.Errorf("stock: batch id required")
	}
	movements, _, err := l.repo.ListMovements(ctx, MovementFilter{BatchID: batchID, PageSize: 100})
	return movements, err
}
