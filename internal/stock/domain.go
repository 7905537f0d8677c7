package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemKind enumerates the four tracked stock item variants.
type ItemKind string

const (
	// ItemKindIngrediente is a raw ingredient consumed by recipes.
	ItemKindIngrediente ItemKind = "ingrediente"
	// ItemKindMaterial is a raw material (packaging etc.).
	ItemKindMaterial ItemKind = "material"
	// ItemKindReceta is an intermediate/semi-finished recipe stock.
	ItemKindReceta ItemKind = "receta"
	// ItemKindElaborado is a finished production item.
	ItemKindElaborado ItemKind = "elaborado"
)

// MovementKind enumerates the ledger movement kinds.
type MovementKind string

const (
	MovementEntrada        MovementKind = "entrada"
	MovementSalida         MovementKind = "salida"
	MovementAjustePositivo MovementKind = "ajuste_positivo"
	MovementAjusteNegativo MovementKind = "ajuste_negativo"
	MovementConsumo        MovementKind = "consumo"
	MovementProduccion     MovementKind = "produccion"
	MovementRestauracion   MovementKind = "restauracion"
)

// AffectsProcessed reports whether the kind mutates the processed counter
// instead of the total counter.
func (k MovementKind) AffectsProcessed() bool {
	switch k {
	case MovementConsumo, MovementSalida, MovementRestauracion:
		return true
	}
	return false
}

// StockItem holds the cumulative counters for one tracked quantity entity.
// Available is derived and never stored.
type StockItem struct {
	ID                int64
	Kind              ItemKind
	Name              string
	Unit              string
	QuantityTotal     float64
	QuantityProcessed float64
	UnitPrice         float64
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available returns the usable remainder. Never negative after a committed
// operation.
func (i StockItem) Available() float64 {
	return i.QuantityTotal - i.QuantityProcessed
}

// Movement is one immutable ledger entry. QuantityBefore/QuantityAfter refer
// to whichever counter the kind affects. Movements are append-only; there is
// no update or delete path.
type Movement struct {
	ID             int64        `json:"id"`
	ItemID         int64        `json:"stockItemId"`
	ItemKind       ItemKind     `json:"stockItemKind"`
	Kind           MovementKind `json:"kind"`
	Quantity       float64      `json:"quantity"`
	QuantityBefore float64      `json:"quantityBefore"`
	QuantityAfter  float64      `json:"quantityAfter"`
	Reason         string       `json:"reason"`
	Actor          string       `json:"actor"`
	BatchID        string       `json:"batchId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// MovementFilter restricts ledger queries. Zero values are ignored.
type MovementFilter struct {
	ItemID   int64
	Actor    string
	Kind     MovementKind
	BatchID  string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// SearchFilter restricts item listings.
type SearchFilter struct {
	Query           string
	Kind            ItemKind
	IncludeInactive bool
	Limit           int
}

// Shortage describes one component with insufficient availability.
type Shortage struct {
	ItemID    int64   `json:"stockItemId"`
	Name      string  `json:"name,omitempty"`
	Required  float64 `json:"required"`
	Available float64 `json:"available"`
}

// InsufficientStockError carries every short component of a rejected
// operation so the caller can display all of them at once.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	if e == nil || len(e.Shortages) == 0 {
		return "stock: insufficient stock"
	}
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("item %d requires %.2f, available %.2f", s.ItemID, s.Required, s.Available))
	}
	return "stock: insufficient stock: " + strings.Join(parts, "; ")
}

// ErrItemNotFound indicates the referenced stock item does not exist.
var ErrItemNotFound = errors.New("stock: item not found")

// ErrItemInactive indicates the item has been deactivated.
var ErrItemInactive = errors.New("stock: item inactive")

// ErrInvalidQuantity indicates a zero or negative magnitude.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrReasonRequired indicates a missing adjustment reason.
var ErrReasonRequired = errors.New("stock: reason required")

// ErrRestoreExceedsProcessed indicates a restoration larger than what was consumed.
var ErrRestoreExceedsProcessed = errors.New("stock: cannot restore more than was consumed")

// ErrDuplicateMovement indicates the same batch already recorded a movement
// for this item and kind.
var ErrDuplicateMovement = errors.New("stock: duplicate movement for batch")
