package api

import (
	"context"
	"net/http"
	"time"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/health"
	"github.com/personahub/agent-service/internal/store"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	isHealthy func() bool
	st        store.Store
}

// NewHealthHandler creates a health handler backed by the given probe. A nil
// probe reports healthy; process liveness is all it can attest then.
func NewHealthHandler(isHealthy func() bool, st store.Store) *HealthHandler {
	if isHealthy == nil {
		isHealthy = func() bool { return true }
	}
	return &HealthHandler{isHealthy: isHealthy, st: st}
}

// CheckHealth handles GET /v0/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.isHealthy() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// CheckStorageHealth handles GET /v0/health/db with a live store ping.
func (h *HealthHandler) CheckStorageHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if pinger, ok := h.st.(health.HealthPinger); ok {
		if err := pinger.HealthPing(ctx); err != nil {
			respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	} else if _, err := h.st.Personas().List(ctx); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
