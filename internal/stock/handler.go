package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/obrador-ops/obrador-ops/internal/observability"
	"github.com/obrador-ops/obrador-ops/internal/platform/httpx"
	"github.com/obrador-ops/obrador-ops/internal/rbac"
	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	ledger    *Ledger
	cache     *AvailabilityCache
	metrics   *observability.Metrics
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, ledger *Ledger, cache *AvailabilityCache, metrics *observability.Metrics, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		ledger:    ledger,
		cache:     cache,
		metrics:   metrics,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("stock.view", "stock.adjust", "stock.correct"))
		r.Get("/", h.handleSearch)
		r.Get("/{id}", h.handleGetItem)
		r.Get("/{id}/availability", h.handleAvailability)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("stock.adjust"))
		r.Post("/{id}/add", h.handleAdd)
		r.Post("/{id}/consume", h.handleConsume)
		r.Post("/{id}/restore", h.handleRestore)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("stock.correct"))
		r.Post("/{id}/adjust-absolute", h.handleAdjustAbsolute)
		r.Post("/{id}/adjust-relative", h.handleAdjustRelative)
		r.Post("/{id}/deactivate", h.handleDeactivate)
	})
}

// MountLedgerRoutes registers the movement history endpoint.
func (h *Handler) MountLedgerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("stock.view", "stock.adjust", "stock.correct"))
		r.Get("/", h.handleMovements)
	})
}

type adjustmentRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required"`
}

type absoluteRequest struct {
	NewTotal float64 `json:"newTotal" validate:"gte=0"`
	Reason   string  `json:"reason" validate:"required"`
}

type relativeRequest struct {
	Delta  float64 `json:"delta" validate:"required"`
	Reason string  `json:"reason" validate:"required"`
}

type adjustmentResponse struct {
	StockItemID int64   `json:"stockItemId"`
	Kind        string  `json:"kind"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Available   float64 `json:"available"`
	MovementID  int64   `json:"movementId"`
}

type itemResponse struct {
	ID                int64   `json:"id"`
	Kind              string  `json:"kind"`
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	QuantityTotal     float64 `json:"quantityTotal"`
	QuantityProcessed float64 `json:"quantityProcessed"`
	Available         float64 `json:"available"`
	UnitPrice         float64 `json:"unitPrice"`
	Active            bool    `json:"active"`
}

func toItemResponse(item StockItem) itemResponse {
	return itemResponse{
		ID:                item.ID,
		Kind:              string(item.Kind),
		Name:              item.Name,
		Unit:              item.Unit,
		QuantityTotal:     item.QuantityTotal,
		QuantityProcessed: item.QuantityProcessed,
		Available:         item.Available(),
		UnitPrice:         item.UnitPrice,
		Active:            item.Active,
	}
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	av, err := h.cache.GetOrFill(r.Context(), id, func(ctx context.Context) (Availability, error) {
		item, err := h.service.GetItem(ctx, id)
		if err != nil {
			return Availability{}, err
		}
		return Availability{
			ItemID:    item.ID,
			Total:     item.QuantityTotal,
			Processed: item.QuantityProcessed,
			Available: item.Available(),
			Unit:      item.Unit,
		}, nil
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, av)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{
		Query: q.Get("query"),
		Kind:  ItemKind(q.Get("kind")),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	items, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	h.handleAdjustment(w, r, func(input AdjustmentInput) (AdjustmentResult, error) {
		return h.service.AddStock(r.Context(), input)
	})
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	h.handleAdjustment(w, r, func(input AdjustmentInput) (AdjustmentResult, error) {
		return h.service.Consume(r.Context(), input)
	})
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	h.handleAdjustment(w, r, func(input AdjustmentInput) (AdjustmentResult, error) {
		return h.service.Restore(r.Context(), input)
	})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request, run func(AdjustmentInput) (AdjustmentResult, error)) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := run(AdjustmentInput{
		ItemID:   id,
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Actor:    actorName(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeAdjustment(w, result)
}

func (h *Handler) handleAdjustAbsolute(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req absoluteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.AdjustAbsolute(r.Context(), AbsoluteInput{
		ItemID:   id,
		NewTotal: req.NewTotal,
		Reason:   req.Reason,
		Actor:    actorName(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeAdjustment(w, result)
}

func (h *Handler) handleAdjustRelative(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req relativeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.AdjustRelative(r.Context(), RelativeInput{
		ItemID: id,
		Delta:  req.Delta,
		Reason: req.Reason,
		Actor:  actorName(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeAdjustment(w, result)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id, actorName(r)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stockItemId": id, "active": false})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		Actor:   q.Get("actor"),
		Kind:    MovementKind(q.Get("kind")),
		BatchID: q.Get("batchId"),
	}
	if itemStr := q.Get("itemId"); itemStr != "" {
		id, err := strconv.ParseInt(itemStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "itemId must be numeric")
			return
		}
		filter.ItemID = id
	}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be YYYY-MM-DD")
				return
			}
			if name == "to" {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			*dst = t
		}
	}
	if pageStr := q.Get("page"); pageStr != "" {
		filter.Page, _ = strconv.Atoi(pageStr)
	}
	if sizeStr := q.Get("pageSize"); sizeStr != "" {
		filter.PageSize, _ = strconv.Atoi(sizeStr)
	}

	movements, paging, err := h.ledger.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements": movements,
		"page":      paging.Page,
		"pageSize":  paging.PerPage,
		"total":     paging.Total,
		"pages":     paging.TotalPages,
	})
}

func (h *Handler) writeAdjustment(w http.ResponseWriter, result AdjustmentResult) {
	h.metrics.RecordMovement(string(result.Kind))
	httpx.JSON(w, http.StatusOK, adjustmentResponse{
		StockItemID: result.Item.ID,
		Kind:        string(result.Kind),
		Before:      result.Before,
		After:       result.After,
		Available:   result.Item.Available(),
		MovementID:  result.MovementID,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var shortage *InsufficientStockError
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &shortage):
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Stock", shortage.Error(), map[string]any{"shortages": shortage.Shortages})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrReasonRequired), errors.Is(err, ErrRestoreExceedsProcessed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrItemInactive):
		httpx.Problem(w, http.StatusConflict, "Item Inactive", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be a positive integer")
		return 0, false
	}
	return id, true
}

func actorName(r *http.Request) string {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.Name
	}
	return ""
}
