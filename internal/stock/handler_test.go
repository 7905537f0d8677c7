package stock

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/obrador-ops/obrador-ops/internal/observability"
	"github.com/obrador-ops/obrador-ops/internal/rbac"
	"github.com/obrador-ops/obrador-ops/internal/shared"
)

type allowAll struct{}

func (allowAll) EffectivePermissions(ctx context.Context, operatorID int64) ([]string, error) {
	return []string{"stock.view", "stock.adjust", "stock.correct"}, nil
}

func newTestRouter(t *testing.T, repo *memoryRepo) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, nil, nil)
	ledger := NewLedger(repo)
	handler := NewHandler(logger, svc, ledger, nil, observability.NewMetrics(), rbac.Middleware{Source: allowAll{}})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Name: "Ana"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/stock", handler.MountRoutes)
	r.Route("/movements", handler.MountLedgerRoutes)
	return r
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	out := make([]Movement, len(r.movements))
	copy(out, r.movements)
	return out, len(out), nil
}

func TestHandlerAddStock(t *testing.T) {
	repo := newMemoryRepo(ingredient(1, 10, 2))
	router := newTestRouter(t, repo)

	body := strings.NewReader(`{"quantity": 5, "reason": "delivery"}`)
	req := httptest.NewRequest(http.MethodPost, "/stock/1/add", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		StockItemID int64   `json:"stockItemId"`
		Kind        string  `json:"kind"`
		After       float64 `json:"after"`
		Available   float64 `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.StockItemID)
	require.Equal(t, "entrada", resp.Kind)
	require.InDelta(t, 15.0, resp.After, 0.0001)
	require.InDelta(t, 13.0, resp.Available, 0.0001)
	require.Equal(t, "Ana", repo.movements[0].Actor)
}

func TestHandlerConsumeShortage(t *testing.T) {
	repo := newMemoryRepo(ingredient(1, 10, 8))
	router := newTestRouter(t, repo)

	body := strings.NewReader(`{"quantity": 5, "reason": "prep"}`)
	req := httptest.NewRequest(http.MethodPost, "/stock/1/consume", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	var problem struct {
		Title string `json:"title"`
		Extra struct {
			Shortages []Shortage `json:"shortages"`
		} `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.Len(t, problem.Extra.Shortages, 1)
	require.InDelta(t, 2.0, problem.Extra.Shortages[0].Available, 0.0001)
}

func TestHandlerValidation(t *testing.T) {
	repo := newMemoryRepo(ingredient(1, 10, 0))
	router := newTestRouter(t, repo)

	body := strings.NewReader(`{"quantity": 5}`)
	req := httptest.NewRequest(http.MethodPost, "/stock/1/consume", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body = strings.NewReader(`{"quantity": -1, "reason": "x"}`)
	req = httptest.NewRequest(http.MethodPost, "/stock/1/add", body)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUnknownItem(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/stock/9", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerMovements(t *testing.T) {
	repo := newMemoryRepo(ingredient(1, 10, 0))
	router := newTestRouter(t, repo)

	body := strings.NewReader(`{"quantity": 4, "reason": "delivery"}`)
	req := httptest.NewRequest(http.MethodPost, "/stock/1/add", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/movements", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Movements []Movement `json:"movements"`
		Total     int        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.Len(t, resp.Movements, 1)
}
