package production

import (
	"errors"

	"github.com/obrador-ops/obrador-ops/internal/stock"
)

// FormulaComponent is one scaled line of a standard formula.
type FormulaComponent struct {
	RecipeID   int64
	Name       string
	QtyPerUnit float64
}

// StandardFormula is the administratively authored scaling table used when
// producing a finished item without manually specifying components. The
// engine only reads formulas; they are maintained elsewhere.
type StandardFormula struct {
	ID               int64
	ProductionItemID int64
	Active           bool
	Components       []FormulaComponent
}

// RecipeComponent is one ingredient line of a recipe.
type RecipeComponent struct {
	IngredientID int64
	Name         string
	QtyPerUnit   float64
}

// Recipe describes an intermediate product: its bill of ingredients and how
// much recipe-stock one batch yields. The yield never affects consumption.
type Recipe struct {
	ID            int64
	Name          string
	Components    []RecipeComponent
	YieldQuantity float64
	YieldUnit     string
}

// Requirement is one absolute scaled consumption requirement.
type Requirement struct {
	ItemID   int64
	Name     string
	Quantity float64
}

// ProduceItemInput requests a production run of a finished item using its
// standard formula. Batches must be a whole number of lots.
type ProduceItemInput struct {
	ProductionItemID int64
	Batches          float64
	Reason           string
	Actor            string
	ConsumeResources bool
	IdempotencyKey   string
}

// AdHocComponent lets the caller supply the component list directly instead
// of relying on a stored recipe composition.
type AdHocComponent struct {
	IngredientID int64
	QtyPerUnit   float64
}

// ProduceRecipeInput requests a production run of a recipe. Batches may be
// fractional; output is scaled by the recipe yield.
type ProduceRecipeInput struct {
	RecipeID         int64
	Batches          float64
	Components       []AdHocComponent
	Reason           string
	Actor            string
	ConsumeResources bool
	IdempotencyKey   string
}

// ProduceResult reports one committed production batch as a single economic
// event.
type ProduceResult struct {
	BatchID    string
	Produced   float64
	CostoTotal float64
	Movements  []stock.Movement
}

// ErrNoFormula indicates production with consumption enabled but no
// resolvable formula or component list.
var ErrNoFormula = errors.New("production: no formula or components to consume")

// ErrBatchNotIntegral indicates a fractional batch count where whole lots are
// required.
var ErrBatchNotIntegral = errors.New("production: batch count must be a whole number")

// ErrCommitFailed indicates a commit failed after validation passed. Already
// applied deltas in the same request are rolled back before this surfaces;
// the request may be retried.
var ErrCommitFailed = errors.New("production: commit failed after validation")
