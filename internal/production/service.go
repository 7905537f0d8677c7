package production

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obrador-ops/obrador-ops/internal/shared"
	"github.com/obrador-ops/obrador-ops/internal/stock"
)

// StockPort exposes the stock store operations the orchestrator needs. The
// same transaction covers every commit and ledger append of one batch, so a
// failure after validation rolls the whole request back.
type StockPort interface {
	WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error
	GetItem(ctx context.Context, id int64) (stock.StockItem, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after a committed batch.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service orchestrates batch production: resolve, scale, validate, commit,
// record.
type Service struct {
	stock       StockPort
	resolver    *Resolver
	validator   *Validator
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	locks       *shared.ItemLockSet
	inval       InvalidatorPort
}

// NewService constructs the production orchestrator.
func NewService(stockPort StockPort, resolver *Resolver, validator *Validator, audit AuditPort, idem *shared.IdempotencyStore, locks *shared.ItemLockSet, inval InvalidatorPort) *Service {
	if locks == nil {
		locks = shared.NewItemLockSet()
	}
	return &Service{
		stock:       stockPort,
		resolver:    resolver,
		validator:   validator,
		audit:       audit,
		idempotency: idem,
		locks:       locks,
		inval:       inval,
	}
}

// ProduceItem produces whole lots of a finished item, consuming the
// components of its standard formula.
func (s *Service) ProduceItem(ctx context.Context, input ProduceItemInput) (ProduceResult, error) {
	if input.Batches <= 0 {
		return ProduceResult{}, stock.ErrInvalidQuantity
	}
	if input.Batches != math.Trunc(input.Batches) {
		return ProduceResult{}, ErrBatchNotIntegral
	}
	if strings.TrimSpace(input.Reason) == "" {
		return ProduceResult{}, stock.ErrReasonRequired
	}

	var requirements []Requirement
	if input.ConsumeResources {
		formula, err := s.resolver.ResolveStandardFormula(ctx, input.ProductionItemID)
		if err != nil {
			return ProduceResult{}, err
		}
		requirements = Scale(formula, input.Batches)
	}

	return s.run(ctx, runParams{
		OutputID:       input.ProductionItemID,
		Produced:       input.Batches,
		Requirements:   requirements,
		Reason:         input.Reason,
		Actor:          input.Actor,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// ProduceRecipe produces batches of a recipe, consuming its own ingredient
// composition or an ad hoc component list supplied by the caller. Batches
// may be fractional; the recipe yield sizes the output.
func (s *Service) ProduceRecipe(ctx context.Context, input ProduceRecipeInput) (ProduceResult, error) {
	if input.Batches <= 0 {
		return ProduceResult{}, stock.ErrInvalidQuantity
	}
	if strings.TrimSpace(input.Reason) == "" {
		return ProduceResult{}, stock.ErrReasonRequired
	}

	recipe, err := s.resolver.Recipe(ctx, input.RecipeID)
	if err != nil {
		return ProduceResult{}, err
	}
	produced := recipe.YieldQuantity * input.Batches
	if produced <= 0 {
		produced = input.Batches
	}

	var requirements []Requirement
	if input.ConsumeResources {
		switch {
		case len(input.Components) > 0:
			requirements = ScaleAdHoc(input.Components, input.Batches)
		case len(recipe.Components) > 0:
			requirements = ScaleRecipe(recipe, input.Batches)
		default:
			return ProduceResult{}, ErrNoFormula
		}
	}

	return s.run(ctx, runParams{
		OutputID:       input.RecipeID,
		Produced:       roundHalfUp(produced),
		Requirements:   requirements,
		Reason:         input.Reason,
		Actor:          input.Actor,
		IdempotencyKey: input.IdempotencyKey,
	})
}

type runParams struct {
	OutputID       int64
	Produced       float64
	Requirements   []Requirement
	Reason         string
	Actor          string
	IdempotencyKey string
}

func (s *Service) run(ctx context.Context, params runParams) (ProduceResult, error) {
	consume := len(params.Requirements) > 0
	if consume {
		if err := s.validator.Validate(ctx, params.Requirements); err != nil {
			return ProduceResult{}, err
		}
	}

	ids := make([]int64, 0, len(params.Requirements)+1)
	for _, req := range params.Requirements {
		ids = append(ids, req.ItemID)
	}
	ids = append(ids, params.OutputID)
	release := s.locks.Acquire(ids...)
	defer release()

	insertedKey := false
	if s.idempotency != nil && params.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, "production"); err != nil {
			return ProduceResult{}, err
		}
		insertedKey = true
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	var result ProduceResult

	err := s.stock.WithTx(ctx, func(ctx context.Context, tx stock.TxRepository) error {
		var movements []stock.Movement
		var cost float64

		for _, req := range params.Requirements {
			item, err := tx.GetItemForUpdate(ctx, req.ItemID)
			if err != nil {
				return err
			}
			if item.Available() < req.Quantity {
				return &stock.InsufficientStockError{Shortages: []stock.Shortage{{
					ItemID:    item.ID,
					Name:      item.Name,
					Required:  req.Quantity,
					Available: item.Available(),
				}}}
			}
			updated, err := tx.ApplyDelta(ctx, req.ItemID, 0, req.Quantity)
			if err != nil {
				return err
			}
			movementID, err := tx.InsertMovement(ctx, stock.Movement{
				ItemID:         item.ID,
				ItemKind:       item.Kind,
				Kind:           stock.MovementConsumo,
				Quantity:       req.Quantity,
				QuantityBefore: item.QuantityProcessed,
				QuantityAfter:  updated.QuantityProcessed,
				Reason:         params.Reason,
				Actor:          params.Actor,
				BatchID:        batchID,
				CreatedAt:      now,
			})
			if err != nil {
				return err
			}
			cost += req.Quantity * item.UnitPrice
			movements = append(movements, stock.Movement{
				ID:             movementID,
				ItemID:         item.ID,
				ItemKind:       item.Kind,
				Kind:           stock.MovementConsumo,
				Quantity:       req.Quantity,
				QuantityBefore: item.QuantityProcessed,
				QuantityAfter:  updated.QuantityProcessed,
				Reason:         params.Reason,
				Actor:          params.Actor,
				BatchID:        batchID,
				CreatedAt:      now,
			})
		}

		output, err := tx.GetItemForUpdate(ctx, params.OutputID)
		if err != nil {
			return err
		}
		if !output.Active {
			return stock.ErrItemInactive
		}
		updated, err := tx.ApplyDelta(ctx, params.OutputID, params.Produced, 0)
		if err != nil {
			return err
		}
		movementID, err := tx.InsertMovement(ctx, stock.Movement{
			ItemID:         output.ID,
			ItemKind:       output.Kind,
			Kind:           stock.MovementProduccion,
			Quantity:       params.Produced,
			QuantityBefore: output.QuantityTotal,
			QuantityAfter:  updated.QuantityTotal,
			Reason:         params.Reason,
			Actor:          params.Actor,
			BatchID:        batchID,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		movements = append(movements, stock.Movement{
			ID:             movementID,
			ItemID:         output.ID,
			ItemKind:       output.Kind,
			Kind:           stock.MovementProduccion,
			Quantity:       params.Produced,
			QuantityBefore: output.QuantityTotal,
			QuantityAfter:  updated.QuantityTotal,
			Reason:         params.Reason,
			Actor:          params.Actor,
			BatchID:        batchID,
			CreatedAt:      now,
		})

		result = ProduceResult{
			BatchID:    batchID,
			Produced:   params.Produced,
			CostoTotal: roundHalfUp(cost),
			Movements:  movements,
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, params.IdempotencyKey)
		}
		return ProduceResult{}, classify(err)
	}

	if s.inval != nil {
		_ = s.inval.Bump(ctx)
	}
	s.recordAudit(ctx, params, result)
	return result, nil
}

// classify separates validation rejections, which surface verbatim, from
// systemic failures after validation passed, which are retryable.
func classify(err error) error {
	var shortage *stock.InsufficientStockError
	switch {
	case errors.As(err, &shortage),
		errors.Is(err, stock.ErrItemNotFound),
		errors.Is(err, stock.ErrItemInactive),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, stock.ErrDuplicateMovement),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return err
	}
	return fmt.Errorf("%w: %v", ErrCommitFailed, err)
}

func (s *Service) recordAudit(ctx context.Context, params runParams, result ProduceResult) {
	if s.audit == nil {
		return
	}
	components := make([]map[string]any, 0, len(params.Requirements))
	for _, req := range params.Requirements {
		components = append(components, map[string]any{"item_id": req.ItemID, "quantity": req.Quantity})
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   "PRODUCTION_BATCH",
		Entity:   "production",
		EntityID: result.BatchID,
		Meta: map[string]any{
			"output_item_id": params.OutputID,
			"produced":       result.Produced,
			"costo_total":    result.CostoTotal,
			"components":     components,
			"actor_name":     params.Actor,
			"reason":         params.Reason,
		},
	})
}
