package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	dryRun bool
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(dryRun bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{dryRun: dryRun, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mode := "live"
	if h.dryRun {
		mode = "dry_run"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
