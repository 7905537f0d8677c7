package production

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/obrador-ops/obrador-ops/internal/observability"
	"github.com/obrador-ops/obrador-ops/internal/platform/httpx"
	"github.com/obrador-ops/obrador-ops/internal/rbac"
	"github.com/obrador-ops/obrador-ops/internal/shared"
	"github.com/obrador-ops/obrador-ops/internal/stock"
)

// Handler wires HTTP endpoints for the production module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("production.run"))
		r.Post("/batches", h.handleProduceItem)
		r.Post("/recipe-batches", h.handleProduceRecipe)
	})
}

type produceItemRequest struct {
	ProductionItemID int64   `json:"productionItemId" validate:"required,gt=0"`
	Batches          float64 `json:"batches" validate:"required,gt=0"`
	Reason           string  `json:"reason" validate:"required"`
	ConsumeResources *bool   `json:"consumirRecursos"`
}

type adHocComponentRequest struct {
	IngredientID int64   `json:"ingredientId" validate:"required,gt=0"`
	QtyPerUnit   float64 `json:"qtyPerUnit" validate:"required,gt=0"`
}

type produceRecipeRequest struct {
	RecipeID         int64                   `json:"recipeId" validate:"required,gt=0"`
	Batches          float64                 `json:"batches" validate:"required,gt=0"`
	Reason           string                  `json:"reason" validate:"required"`
	Components       []adHocComponentRequest `json:"components" validate:"omitempty,dive"`
	ConsumeResources *bool                   `json:"consumirRecursos"`
}

type movementResponse struct {
	MovementID  int64   `json:"movementId"`
	StockItemID int64   `json:"stockItemId"`
	Kind        string  `json:"kind"`
	Quantity    float64 `json:"quantity"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
}

type produceResponse struct {
	BatchID    string             `json:"batchId"`
	Produced   float64            `json:"produced"`
	CostoTotal float64            `json:"costoTotal"`
	Movements  []movementResponse `json:"movements"`
}

func (h *Handler) handleProduceItem(w http.ResponseWriter, r *http.Request) {
	var req produceItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ProduceItem(r.Context(), ProduceItemInput{
		ProductionItemID: req.ProductionItemID,
		Batches:          req.Batches,
		Reason:           req.Reason,
		Actor:            actorName(r),
		ConsumeResources: consumeFlag(req.ConsumeResources),
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.metrics.RecordBatch("rejected")
		h.respondError(w, err)
		return
	}
	h.metrics.RecordBatch("committed")
	httpx.JSON(w, http.StatusCreated, toProduceResponse(result))
}

func (h *Handler) handleProduceRecipe(w http.ResponseWriter, r *http.Request) {
	var req produceRecipeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	components := make([]AdHocComponent, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, AdHocComponent{IngredientID: c.IngredientID, QtyPerUnit: c.QtyPerUnit})
	}
	result, err := h.service.ProduceRecipe(r.Context(), ProduceRecipeInput{
		RecipeID:         req.RecipeID,
		Batches:          req.Batches,
		Components:       components,
		Reason:           req.Reason,
		Actor:            actorName(r),
		ConsumeResources: consumeFlag(req.ConsumeResources),
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.metrics.RecordBatch("rejected")
		h.respondError(w, err)
		return
	}
	h.metrics.RecordBatch("committed")
	httpx.JSON(w, http.StatusCreated, toProduceResponse(result))
}

func toProduceResponse(result ProduceResult) produceResponse {
	movements := make([]movementResponse, 0, len(result.Movements))
	for _, m := range result.Movements {
		movements = append(movements, movementResponse{
			MovementID:  m.ID,
			StockItemID: m.ItemID,
			Kind:        string(m.Kind),
			Quantity:    m.Quantity,
			Before:      m.QuantityBefore,
			After:       m.QuantityAfter,
		})
	}
	return produceResponse{
		BatchID:    result.BatchID,
		Produced:   result.Produced,
		CostoTotal: result.CostoTotal,
		Movements:  movements,
	}
}

// consumeFlag defaults to consuming; callers opt out explicitly.
func consumeFlag(v *bool) bool {
	return v == nil || *v
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var shortage *stock.InsufficientStockError
	switch {
	case errors.Is(err, stock.ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &shortage):
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Stock", shortage.Error(), map[string]any{"shortages": shortage.Shortages})
	case errors.Is(err, ErrNoFormula):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Formula", err.Error())
	case errors.Is(err, ErrBatchNotIntegral), errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, stock.ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrItemInactive):
		httpx.Problem(w, http.StatusConflict, "Item Inactive", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, stock.ErrDuplicateMovement):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrCommitFailed):
		httpx.Problem(w, http.StatusServiceUnavailable, "Commit Failed", "the batch was rolled back and may be retried")
	default:
		h.logger.Error("production request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorName(r *http.Request) string {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.Name
	}
	return ""
}
