package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obrador-ops/obrador-ops/internal/stock"
)

// Repository reads the formula and recipe catalog from PostgreSQL. The
// engine never writes this catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStandardFormula loads the standard formula configured for a finished
// item together with its component lines.
func (r *Repository) GetStandardFormula(ctx context.Context, productionItemID int64) (StandardFormula, error) {
	const head = `SELECT id, production_item_id, active
                    FROM standard_formulas
                   WHERE production_item_id = $1`
	var formula StandardFormula
	err := r.pool.QueryRow(ctx, head, productionItemID).Scan(&formula.ID, &formula.ProductionItemID, &formula.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StandardFormula{}, ErrNoFormula
		}
		return StandardFormula{}, err
	}

	const lines = `SELECT fc.recipe_id, si.name, fc.qty_per_unit
                     FROM formula_components fc
                     JOIN stock_items si ON si.id = fc.recipe_id
                    WHERE fc.formula_id = $1
                    ORDER BY fc.id`
	rows, err := r.pool.Query(ctx, lines, formula.ID)
	if err != nil {
		return StandardFormula{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var c FormulaComponent
		if err := rows.Scan(&c.RecipeID, &c.Name, &c.QtyPerUnit); err != nil {
			return StandardFormula{}, err
		}
		formula.Components = append(formula.Components, c)
	}
	if err := rows.Err(); err != nil {
		return StandardFormula{}, err
	}
	return formula, nil
}

// GetRecipe loads one recipe with its ingredient composition and yield. A
// recipe row is the same stock item row that receives the produced quantity,
// so a missing recipe surfaces as a missing item.
func (r *Repository) GetRecipe(ctx context.Context, recipeID int64) (Recipe, error) {
	const head = `SELECT r.id, si.name, r.yield_quantity, r.yield_unit
                    FROM recipes r
                    JOIN stock_items si ON si.id = r.id
                   WHERE r.id = $1`
	var recipe Recipe
	err := r.pool.QueryRow(ctx, head, recipeID).Scan(&recipe.ID, &recipe.Name, &recipe.YieldQuantity, &recipe.YieldUnit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipe{}, stock.ErrItemNotFound
		}
		return Recipe{}, err
	}

	const lines = `SELECT rc.ingredient_id, si.name, rc.qty_per_unit
                     FROM recipe_components rc
                     JOIN stock_items si ON si.id = rc.ingredient_id
                    WHERE rc.recipe_id = $1
                    ORDER BY rc.id`
	rows, err := r.pool.Query(ctx, lines, recipeID)
	if err != nil {
		return Recipe{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var c RecipeComponent
		if err := rows.Scan(&c.IngredientID, &c.Name, &c.QtyPerUnit); err != nil {
			return Recipe{}, err
		}
		recipe.Components = append(recipe.Components, c)
	}
	if err := rows.Err(); err != nil {
		return Recipe{}, err
	}
	return recipe, nil
}
