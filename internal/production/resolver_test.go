package production

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type catalogStub struct {
	formulas map[int64]StandardFormula
	recipes  map[int64]Recipe
}

func (c *catalogStub) GetStandardFormula(ctx context.Context, productionItemID int64) (StandardFormula, error) {
	formula, ok := c.formulas[productionItemID]
	if !ok {
		return StandardFormula{}, ErrNoFormula
	}
	return formula, nil
}

func (c *catalogStub) GetRecipe(ctx context.Context, recipeID int64) (Recipe, error) {
	return c.recipes[recipeID], nil
}

func TestScaleMultipliesAndRounds(t *testing.T) {
	formula := StandardFormula{
		Active: true,
		Components: []FormulaComponent{
			{RecipeID: 1, Name: "masa madre", QtyPerUnit: 2.5},
			{RecipeID: 2, Name: "crema", QtyPerUnit: 0.333},
		},
	}

	reqs := Scale(formula, 4)
	require.Len(t, reqs, 2)
	require.InDelta(t, 10.0, reqs[0].Quantity, 0.0001)
	require.InDelta(t, 1.33, reqs[1].Quantity, 0.0001)
}

func TestScaleAggregatesDuplicates(t *testing.T) {
	formula := StandardFormula{
		Active: true,
		Components: []FormulaComponent{
			{RecipeID: 1, Name: "masa madre", QtyPerUnit: 1.2},
			{RecipeID: 1, Name: "masa madre", QtyPerUnit: 1.2},
		},
	}

	reqs := Scale(formula, 3)
	require.Len(t, reqs, 1)
	require.Equal(t, int64(1), reqs[0].ItemID)
	require.InDelta(t, 7.2, reqs[0].Quantity, 0.0001)
}

func TestScaleRoundsHalfUp(t *testing.T) {
	formula := StandardFormula{
		Active:     true,
		Components: []FormulaComponent{{RecipeID: 1, QtyPerUnit: 0.125}},
	}

	reqs := Scale(formula, 1)
	require.InDelta(t, 0.13, reqs[0].Quantity, 0.0001)
}

func TestResolveRejectsInactiveFormula(t *testing.T) {
	catalog := &catalogStub{formulas: map[int64]StandardFormula{
		7: {ID: 1, ProductionItemID: 7, Active: false, Components: []FormulaComponent{{RecipeID: 1, QtyPerUnit: 1}}},
		8: {ID: 2, ProductionItemID: 8, Active: true},
	}}
	resolver := NewResolver(catalog)
	ctx := context.Background()

	_, err := resolver.ResolveStandardFormula(ctx, 7)
	require.ErrorIs(t, err, ErrNoFormula)

	_, err = resolver.ResolveStandardFormula(ctx, 8)
	require.ErrorIs(t, err, ErrNoFormula)

	_, err = resolver.ResolveStandardFormula(ctx, 9)
	require.ErrorIs(t, err, ErrNoFormula)
}

func TestScaleRecipeUsesFractionalBatches(t *testing.T) {
	recipe := Recipe{
		ID:   3,
		Name: "bizcocho",
		Components: []RecipeComponent{
			{IngredientID: 10, Name: "harina", QtyPerUnit: 0.5},
			{IngredientID: 11, Name: "azucar", QtyPerUnit: 0.25},
		},
	}

	reqs := ScaleRecipe(recipe, 2.5)
	require.Len(t, reqs, 2)
	require.InDelta(t, 1.25, reqs[0].Quantity, 0.0001)
	require.InDelta(t, 0.63, reqs[1].Quantity, 0.0001)
}

func TestScaleAdHocAggregates(t *testing.T) {
	reqs := ScaleAdHoc([]AdHocComponent{
		{IngredientID: 10, QtyPerUnit: 1},
		{IngredientID: 11, QtyPerUnit: 2},
		{IngredientID: 10, QtyPerUnit: 0.5},
	}, 2)
	require.Len(t, reqs, 2)
	require.InDelta(t, 3.0, reqs[0].Quantity, 0.0001)
	require.InDelta(t, 4.0, reqs[1].Quantity, 0.0001)
}
