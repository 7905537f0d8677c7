package auth

import (
	"net/http"
	"strings"

	"github.com/obrador-ops/obrador-ops/internal/platform/httpx"
	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// RequireToken resolves the Authorization bearer token and binds the operator
// to the request context. Requests without a live token are rejected.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		op, err := h.service.ResolveToken(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: op.ID, Name: op.Name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(prefix):])
}
