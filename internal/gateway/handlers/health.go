package handlers

import (
	"context"
	"net/http"
	"time"

	"parley/internal/provider"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string              `json:"status"`
	Uptime int64               `json:"uptime"`
	Model  *provider.ModelInfo `json:"model,omitempty"`
}

// HealthHandler reports whether the wrapped provider answers Info within
// timeout. Uptime counts from started.
func HealthHandler(p provider.Provider, started time.Time, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		info, err := p.Info(ctx)
		if err != nil {
			SendProviderError(w, err)
			return
		}

		SendJSON(w, http.StatusOK, HealthResponse{
			Status: "ok",
			Uptime: int64(time.Since(started).Seconds()),
			Model:  &info,
		})
	}
}

// NotFound answers unknown routes with a JSON error.
func NotFound(w http.ResponseWriter, r *http.Request) {
	SendError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
}
