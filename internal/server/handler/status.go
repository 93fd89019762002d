package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves runtime status for operators.
type StatusHandler struct {
	dryRun        bool
	defaultSymbol string
	startedAt     time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(dryRun bool, defaultSymbol string) *StatusHandler {
	return &StatusHandler{
		dryRun:        dryRun,
		defaultSymbol: defaultSymbol,
		startedAt:     time.Now().UTC(),
	}
}

// GetStatus responds with the running mode and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	mode := "live"
	if h.dryRun {
		mode = "dry_run"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           mode,
		"default_symbol": h.defaultSymbol,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"uptime":         time.Since(h.startedAt).Round(time.Second).String(),
	})
}
