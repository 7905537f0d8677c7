package production

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obrador-ops/obrador-ops/internal/stock"
)

type memoryStock struct {
	items     map[int64]stock.StockItem
	movements []stock.Movement
	nextID    int64

	failMovementAfter int // when > 0, InsertMovement fails once this many inserts landed
}

func newMemoryStock(items ...stock.StockItem) *memoryStock {
	repo := &memoryStock{items: make(map[int64]stock.StockItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *memoryStock) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	snapshot := make(map[int64]stock.StockItem, len(r.items))
	for id, item := range r.items {
		snapshot[id] = item
	}
	movements := len(r.movements)
	if err := fn(ctx, r); err != nil {
		r.items = snapshot
		r.movements = r.movements[:movements]
		return err
	}
	return nil
}

func (r *memoryStock) GetItem(ctx context.Context, id int64) (stock.StockItem, error) {
	item, ok := r.items[id]
	if !ok {
		return stock.StockItem{}, stock.ErrItemNotFound
	}
	return item, nil
}

func (r *memoryStock) GetItemForUpdate(ctx context.Context, id int64) (stock.StockItem, error) {
	return r.GetItem(ctx, id)
}

func (r *memoryStock) ApplyDelta(ctx context.Context, id int64, totalDelta, processedDelta float64) (stock.StockItem, error) {
	item, ok := r.items[id]
	if !ok {
		return stock.StockItem{}, stock.ErrItemNotFound
	}
	item.QuantityTotal += totalDelta
	item.QuantityProcessed += processedDelta
	item.UpdatedAt = time.Now().UTC()
	r.items[id] = item
	return item, nil
}

func (r *memoryStock) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	if r.failMovementAfter > 0 && len(r.movements) >= r.failMovementAfter {
		return 0, errors.New("connection reset")
	}
	r.nextID++
	m.ID = r.nextID
	r.movements = append(r.movements, m)
	return m.ID, nil
}

func testCatalog() *catalogStub {
	return &catalogStub{
		formulas: map[int64]StandardFormula{
			5: {ID: 1, ProductionItemID: 5, Active: true, Components: []FormulaComponent{
				{RecipeID: 1, Name: "harina", QtyPerUnit: 5},
			}},
		},
		recipes: map[int64]Recipe{
			3: {ID: 3, Name: "bizcocho", YieldQuantity: 4, YieldUnit: "ud", Components: []RecipeComponent{
				{IngredientID: 1, Name: "harina", QtyPerUnit: 2},
			}},
		},
	}
}

func newTestService(repo *memoryStock) *Service {
	resolver := NewResolver(testCatalog())
	return NewService(repo, resolver, NewValidator(repo), nil, nil, nil, nil)
}

func harina(total, processed float64) stock.StockItem {
	return stock.StockItem{
		ID:                1,
		Kind:              stock.ItemKindIngrediente,
		Name:              "harina",
		Unit:              "kg",
		QuantityTotal:     total,
		QuantityProcessed: processed,
		UnitPrice:         0.8,
		Active:            true,
	}
}

func pan() stock.StockItem {
	return stock.StockItem{ID: 5, Kind: stock.ItemKindElaborado, Name: "pan de pueblo", Unit: "ud", Active: true}
}

func TestProduceItemCommitsBatch(t *testing.T) {
	repo := newMemoryStock(harina(100, 30), pan())
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.ProduceItem(ctx, ProduceItemInput{
		ProductionItemID: 5,
		Batches:          10,
		Reason:           "morning bake",
		Actor:            "ana",
		ConsumeResources: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.BatchID)
	require.InDelta(t, 10.0, result.Produced, 0.0001)
	require.InDelta(t, 40.0, result.CostoTotal, 0.0001)

	require.Len(t, result.Movements, 2)
	require.Equal(t, stock.MovementConsumo, result.Movements[0].Kind)
	require.Equal(t, stock.MovementProduccion, result.Movements[1].Kind)
	require.Equal(t, result.BatchID, result.Movements[0].BatchID)
	require.Equal(t, result.BatchID, result.Movements[1].BatchID)
	require.Equal(t, result.Movements[0].CreatedAt, result.Movements[1].CreatedAt)

	require.InDelta(t, 80.0, repo.items[1].QuantityProcessed, 0.0001)
	require.InDelta(t, 20.0, repo.items[1].Available(), 0.0001)
	require.InDelta(t, 10.0, repo.items[5].QuantityTotal, 0.0001)
}

func TestProduceItemRejectsShortageWithoutMovements(t *testing.T) {
	repo := newMemoryStock(harina(100, 30), pan())
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.ProduceItem(ctx, ProduceItemInput{
		ProductionItemID: 5,
		Batches:          20,
		Reason:           "morning bake",
		ConsumeResources: true,
	})
	var shortage *stock.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	require.InDelta(t, 100.0, shortage.Shortages[0].Required, 0.0001)
	require.InDelta(t, 70.0, shortage.Shortages[0].Available, 0.0001)

	require.Empty(t, repo.movements)
	require.InDelta(t, 30.0, repo.items[1].QuantityProcessed, 0.0001)
	require.InDelta(t, 0.0, repo.items[5].QuantityTotal, 0.0001)
}

func TestProduceItemWithoutConsumption(t *testing.T) {
	repo := newMemoryStock(harina(0, 0), pan())
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.ProduceItem(ctx, ProduceItemInput{
		ProductionItemID: 5,
		Batches:          3,
		Reason:           "bought finished units",
		ConsumeResources: false,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, result.CostoTotal, 0.0001)
	require.Len(t, result.Movements, 1)
	require.Equal(t, stock.MovementProduccion, result.Movements[0].Kind)
	require.InDelta(t, 0.0, repo.items[1].QuantityProcessed, 0.0001)
	require.InDelta(t, 3.0, repo.items[5].QuantityTotal, 0.0001)
}

func TestProduceItemRejectsFractionalBatches(t *testing.T) {
	repo := newMemoryStock(harina(100, 0), pan())
	svc := newTestService(repo)

	_, err := svc.ProduceItem(context.Background(), ProduceItemInput{
		ProductionItemID: 5,
		Batches:          2.5,
		Reason:           "morning bake",
		ConsumeResources: true,
	})
	require.ErrorIs(t, err, ErrBatchNotIntegral)
}

func TestProduceItemRollsBackOnCommitFailure(t *testing.T) {
	repo := newMemoryStock(harina(100, 30), pan())
	repo.failMovementAfter = 1
	svc := newTestService(repo)

	_, err := svc.ProduceItem(context.Background(), ProduceItemInput{
		ProductionItemID: 5,
		Batches:          10,
		Reason:           "morning bake",
		ConsumeResources: true,
	})
	require.ErrorIs(t, err, ErrCommitFailed)

	require.Empty(t, repo.movements)
	require.InDelta(t, 30.0, repo.items[1].QuantityProcessed, 0.0001)
	require.InDelta(t, 0.0, repo.items[5].QuantityTotal, 0.0001)
}

func TestProduceRecipeScalesYield(t *testing.T) {
	bizcocho := stock.StockItem{ID: 3, Kind: stock.ItemKindReceta, Name: "bizcocho", Unit: "ud", Active: true}
	repo := newMemoryStock(harina(100, 0), bizcocho)
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.ProduceRecipe(ctx, ProduceRecipeInput{
		RecipeID:         3,
		Batches:          2.5,
		Reason:           "afternoon batch",
		ConsumeResources: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 10.0, result.Produced, 0.0001)
	require.InDelta(t, 5.0, repo.items[1].QuantityProcessed, 0.0001)
	require.InDelta(t, 10.0, repo.items[3].QuantityTotal, 0.0001)
}

func TestProduceRecipePrefersAdHocComponents(t *testing.T) {
	bizcocho := stock.StockItem{ID: 3, Kind: stock.ItemKindReceta, Name: "bizcocho", Unit: "ud", Active: true}
	azucar := stock.StockItem{ID: 2, Kind: stock.ItemKindIngrediente, Name: "azucar", Unit: "kg", QuantityTotal: 10, Active: true}
	repo := newMemoryStock(harina(100, 0), azucar, bizcocho)
	svc := newTestService(repo)

	_, err := svc.ProduceRecipe(context.Background(), ProduceRecipeInput{
		RecipeID:         3,
		Batches:          2,
		Components:       []AdHocComponent{{IngredientID: 2, QtyPerUnit: 1.5}},
		Reason:           "custom run",
		ConsumeResources: true,
	})
	require.NoError(t, err)
	require.InDelta(t, 3.0, repo.items[2].QuantityProcessed, 0.0001)
	require.InDelta(t, 0.0, repo.items[1].QuantityProcessed, 0.0001)
}

func TestProduceRequiresReason(t *testing.T) {
	repo := newMemoryStock(harina(100, 0), pan())
	svc := newTestService(repo)

	_, err := svc.ProduceItem(context.Background(), ProduceItemInput{
		ProductionItemID: 5,
		Batches:          1,
		ConsumeResources: true,
	})
	require.ErrorIs(t, err, stock.ErrReasonRequired)
}
