package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (StockItem, error)
	SearchItems(ctx context.Context, filter SearchFilter) ([]StockItem, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after every committed mutation so cached
// availability reads are never served stale.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service performs the direct single-item adjustment operations. Every
// operation routes through ApplyDelta, appends exactly one movement, and
// holds the item lock across its validate-then-commit sequence.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	locks *shared.ItemLockSet
	inval InvalidatorPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, locks *shared.ItemLockSet, inval InvalidatorPort) *Service {
	if locks == nil {
		locks = shared.NewItemLockSet()
	}
	return &Service{repo: repo, audit: audit, locks: locks, inval: inval}
}

// AdjustmentInput is the common payload of the direct operations.
type AdjustmentInput struct {
	ItemID   int64
	Quantity float64
	Reason   string
	Actor    string
}

// AbsoluteInput sets the total counter to an absolute value.
type AbsoluteInput struct {
	ItemID   int64
	NewTotal float64
	Reason   string
	Actor    string
}

// RelativeInput shifts the total counter by a signed delta.
type RelativeInput struct {
	ItemID int64
	Delta  float64
	Reason string
	Actor  string
}

// AdjustmentResult reports one committed mutation. Before and After refer to
// the counter the movement kind affects.
type AdjustmentResult struct {
	Item       StockItem
	MovementID int64
	Kind       MovementKind
	Before     float64
	After      float64
}

// AddStock increments the total counter (kind entrada).
func (s *Service) AddStock(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.Quantity <= 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	return s.post(ctx, postParams{
		ItemID:     input.ItemID,
		Kind:       MovementEntrada,
		TotalDelta: input.Quantity,
		Quantity:   input.Quantity,
		Reason:     input.Reason,
		Actor:      input.Actor,
	})
}

// Consume increments the processed counter (kind consumo) after checking
// availability.
func (s *Service) Consume(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.Quantity <= 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	return s.post(ctx, postParams{
		ItemID:         input.ItemID,
		Kind:           MovementConsumo,
		ProcessedDelta: input.Quantity,
		Quantity:       input.Quantity,
		Reason:         input.Reason,
		Actor:          input.Actor,
	})
}

// Restore decrements the processed counter (kind restauracion). The bound is
// what was actually consumed, never less than zero.
func (s *Service) Restore(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.Quantity <= 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	return s.post(ctx, postParams{
		ItemID:         input.ItemID,
		Kind:           MovementRestauracion,
		ProcessedDelta: -input.Quantity,
		Quantity:       input.Quantity,
		Reason:         input.Reason,
		Actor:          input.Actor,
	})
}

// AdjustAbsolute sets the total counter directly; the movement records the
// signed correction as ajuste_positivo or ajuste_negativo.
func (s *Service) AdjustAbsolute(ctx context.Context, input AbsoluteInput) (AdjustmentResult, error) {
	if input.NewTotal < 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	return s.post(ctx, postParams{
		ItemID:   input.ItemID,
		Absolute: true,
		NewTotal: input.NewTotal,
		Reason:   input.Reason,
		Actor:    input.Actor,
	})
}

// AdjustRelative shifts the total counter by a signed delta. A negative delta
// larger than the current availability is rejected.
func (s *Service) AdjustRelative(ctx context.Context, input RelativeInput) (AdjustmentResult, error) {
	if input.Delta == 0 {
		return AdjustmentResult{}, ErrInvalidQuantity
	}
	kind := MovementAjustePositivo
	if input.Delta < 0 {
		kind = MovementAjusteNegativo
	}
	return s.post(ctx, postParams{
		ItemID:     input.ItemID,
		Kind:       kind,
		TotalDelta: input.Delta,
		Quantity:   abs(input.Delta),
		Reason:     input.Reason,
		Actor:      input.Actor,
	})
}

// Deactivate soft-deletes an item; history is retained.
func (s *Service) Deactivate(ctx context.Context, id int64, actor string) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, "STOCK_DEACTIVATE", id, actor, nil)
	return nil
}

// GetItem returns the current counters of one item.
func (s *Service) GetItem(ctx context.Context, id int64) (StockItem, error) {
	return s.repo.GetItem(ctx, id)
}

// Search lists items matching the filter; inactive items are excluded unless
// explicitly requested.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]StockItem, error) {
	return s.repo.SearchItems(ctx, filter)
}

type postParams struct {
	ItemID         int64
	Kind           MovementKind
	TotalDelta     float64
	ProcessedDelta float64
	Quantity       float64
	Absolute       bool
	NewTotal       float64
	Reason         string
	Actor          string
}

func (s *Service) post(ctx context.Context, params postParams) (AdjustmentResult, error) {
	if strings.TrimSpace(params.Reason) == "" {
		return AdjustmentResult{}, ErrReasonRequired
	}
	if params.ItemID == 0 {
		return AdjustmentResult{}, ErrItemNotFound
	}

	release := s.locks.Acquire(params.ItemID)
	defer release()

	var result AdjustmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, params.ItemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return ErrItemInactive
		}

		if params.Absolute {
			params.TotalDelta = params.NewTotal - item.QuantityTotal
			if params.TotalDelta == 0 {
				return ErrInvalidQuantity
			}
			params.Quantity = abs(params.TotalDelta)
			params.Kind = MovementAjustePositivo
			if params.TotalDelta < 0 {
				params.Kind = MovementAjusteNegativo
			}
		}

		switch {
		case params.ProcessedDelta > 0:
			if item.Available() < params.ProcessedDelta {
				return &InsufficientStockError{Shortages: []Shortage{{
					ItemID:    item.ID,
					Name:      item.Name,
					Required:  params.ProcessedDelta,
					Available: item.Available(),
				}}}
			}
		case params.ProcessedDelta < 0:
			if item.QuantityProcessed < -params.ProcessedDelta {
				return ErrRestoreExceedsProcessed
			}
		case params.TotalDelta < 0:
			if item.Available() < -params.TotalDelta {
				return &InsufficientStockError{Shortages: []Shortage{{
					ItemID:    item.ID,
					Name:      item.Name,
					Required:  -params.TotalDelta,
					Available: item.Available(),
				}}}
			}
		}

		before := item.QuantityTotal
		if params.Kind.AffectsProcessed() {
			before = item.QuantityProcessed
		}

		updated, err := tx.ApplyDelta(ctx, params.ItemID, params.TotalDelta, params.ProcessedDelta)
		if err != nil {
			return err
		}
		after := updated.QuantityTotal
		if params.Kind.AffectsProcessed() {
			after = updated.QuantityProcessed
		}

		movementID, err := tx.InsertMovement(ctx, Movement{
			ItemID:         updated.ID,
			ItemKind:       updated.Kind,
			Kind:           params.Kind,
			Quantity:       params.Quantity,
			QuantityBefore: before,
			QuantityAfter:  after,
			Reason:         params.Reason,
			Actor:          params.Actor,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		result = AdjustmentResult{Item: updated, MovementID: movementID, Kind: params.Kind, Before: before, After: after}
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, err
	}

	if s.inval != nil {
		// Stale cache entries expire on TTL anyway; the commit stands.
		_ = s.inval.Bump(ctx)
	}
	s.recordAudit(ctx, fmt.Sprintf("STOCK_%s", strings.ToUpper(string(result.Kind))), params.ItemID, params.Actor, map[string]any{
		"movement_id": result.MovementID,
		"quantity":    params.Quantity,
		"before":      result.Before,
		"after":       result.After,
		"reason":      params.Reason,
	})
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, itemID int64, actor string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["actor_name"] = actor
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "stock_item",
		EntityID: fmt.Sprintf("%d", itemID),
		Meta:     meta,
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
