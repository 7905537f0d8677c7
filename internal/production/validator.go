package production

import (
	"context"

	"github.com/obrador-ops/obrador-ops/internal/stock"
)

// StockReader exposes the read access the validator needs.
type StockReader interface {
	GetItem(ctx context.Context, id int64) (stock.StockItem, error)
}

// Validator checks scaled requirements against current availability before
// any mutation is attempted. It is read-only: calling it any number of times
// changes nothing.
type Validator struct {
	stock StockReader
}

// NewValidator constructs Validator.
func NewValidator(reader StockReader) *Validator {
	return &Validator{stock: reader}
}

// Validate applies the all-or-nothing policy: if any component is short the
// whole set is rejected, and every short component is reported together.
// Zero or negative requirements are input errors, not shortages.
func (v *Validator) Validate(ctx context.Context, requirements []Requirement) error {
	if len(requirements) == 0 {
		return ErrNoFormula
	}
	var shortages []stock.Shortage
	for _, req := range requirements {
		if req.Quantity <= 0 {
			return stock.ErrInvalidQuantity
		}
		item, err := v.stock.GetItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if item.Available() < req.Quantity {
			shortages = append(shortages, stock.Shortage{
				ItemID:    item.ID,
				Name:      item.Name,
				Required:  req.Quantity,
				Available: item.Available(),
			})
		}
	}
	if len(shortages) > 0 {
		return &stock.InsufficientStockError{Shortages: shortages}
	}
	return nil
}
