package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/workflow-builder/engine/internal/api/types"
	"github.com/workflow-builder/engine/pkg/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthHandler builds probes from named checks; readiness fails when
// any of them fails.
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			ready = false
			results[name] = "down"
			logger.Ctx(ctx).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "up"
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, types.APIResponse{
			Success: false,
			Data:    map[string]any{"status": "unavailable", "checks": results},
			Error:   &types.APIError{Code: "unavailable", Message: "dependency check failed"},
		})
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]any{"status": "ready", "checks": results}})
}
