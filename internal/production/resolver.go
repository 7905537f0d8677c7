package production

import (
	"context"
	"fmt"
	"math"
)

// FormulaPort abstracts the read-only formula/recipe catalog.
type FormulaPort interface {
	GetStandardFormula(ctx context.Context, productionItemID int64) (StandardFormula, error)
	GetRecipe(ctx context.Context, recipeID int64) (Recipe, error)
}

// Resolver loads formulas and scales per-unit compositions into absolute
// requirements.
type Resolver struct {
	repo FormulaPort
}

// NewResolver constructs Resolver.
func NewResolver(repo FormulaPort) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveStandardFormula returns the active standard formula for a finished
// item, or ErrNoFormula when none is configured.
func (r *Resolver) ResolveStandardFormula(ctx context.Context, productionItemID int64) (StandardFormula, error) {
	formula, err := r.repo.GetStandardFormula(ctx, productionItemID)
	if err != nil {
		return StandardFormula{}, err
	}
	if !formula.Active || len(formula.Components) == 0 {
		return StandardFormula{}, ErrNoFormula
	}
	return formula, nil
}

// Recipe loads one recipe composition.
func (r *Resolver) Recipe(ctx context.Context, recipeID int64) (Recipe, error) {
	return r.repo.GetRecipe(ctx, recipeID)
}

// Scale converts a standard formula into absolute requirements for the batch
// count. Requirements are rounded to 2 decimals, half up, so repeated
// productions do not accumulate floating drift. Components listed twice are
// summed into one requirement before any validation sees them.
func Scale(formula StandardFormula, batches float64) []Requirement {
	reqs := make([]Requirement, 0, len(formula.Components))
	index := make(map[int64]int, len(formula.Components))
	for _, c := range formula.Components {
		qty := roundHalfUp(c.QtyPerUnit * batches)
		if i, ok := index[c.RecipeID]; ok {
			reqs[i].Quantity = roundHalfUp(reqs[i].Quantity + qty)
			continue
		}
		index[c.RecipeID] = len(reqs)
		reqs = append(reqs, Requirement{ItemID: c.RecipeID, Name: c.Name, Quantity: qty})
	}
	return reqs
}

// ScaleRecipe converts a recipe composition into absolute ingredient
// requirements. The recipe yield plays no part here; it only sizes the
// output.
func ScaleRecipe(recipe Recipe, batches float64) []Requirement {
	reqs := make([]Requirement, 0, len(recipe.Components))
	index := make(map[int64]int, len(recipe.Components))
	for _, c := range recipe.Components {
		qty := roundHalfUp(c.QtyPerUnit * batches)
		if i, ok := index[c.IngredientID]; ok {
			reqs[i].Quantity = roundHalfUp(reqs[i].Quantity + qty)
			continue
		}
		index[c.IngredientID] = len(reqs)
		reqs = append(reqs, Requirement{ItemID: c.IngredientID, Name: c.Name, Quantity: qty})
	}
	return reqs
}

// ScaleAdHoc converts a caller-supplied component list the same way.
func ScaleAdHoc(components []AdHocComponent, batches float64) []Requirement {
	reqs := make([]Requirement, 0, len(components))
	index := make(map[int64]int, len(components))
	for _, c := range components {
		qty := roundHalfUp(c.QtyPerUnit * batches)
		if i, ok := index[c.IngredientID]; ok {
			reqs[i].Quantity = roundHalfUp(reqs[i].Quantity + qty)
			continue
		}
		index[c.IngredientID] = len(reqs)
		reqs = append(reqs, Requirement{ItemID: c.IngredientID, Name: fmt.Sprintf("item %d", c.IngredientID), Quantity: qty})
	}
	return reqs
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
