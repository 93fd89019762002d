package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

// PositionHandler serves position and trade-log read endpoints.
type PositionHandler struct {
	positions domain.PositionStore
	trades    domain.TradeStore
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler over the given stores.
func NewPositionHandler(positions domain.PositionStore, trades domain.TradeStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		trades:    trades,
		logger:    logHandler(logger, "positions"),
	}
}

// positionView is the JSON shape of one position.
type positionView struct {
	Symbol     string   `json:"symbol"`
	EntryPrice float64  `json:"entry_price"`
	Quantity   float64  `json:"qty"`
	OpenedAt   string   `json:"opened_at"`
	ClosedAt   string   `json:"closed_at,omitempty"`
	ExitPrice  *float64 `json:"exit_price,omitempty"`
	Status     string   `json:"status"`
}

// ListOpen returns every open position.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, toView(pos))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}

// tradeView is the JSON shape of one trade-log entry.
type tradeView struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"qty"`
	Price      float64 `json:"price"`
	DryRun     bool    `json:"dry_run"`
	Trigger    string  `json:"trigger"`
	ExecutedAt string  `json:"executed_at"`
}

// ListTrades returns the most recent trades, newest first.
// GET /api/trades?limit=50
func (h *PositionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	trades, err := h.trades.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, tradeView{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Quantity:   t.Quantity,
			Price:      t.Price,
			DryRun:     t.DryRun,
			Trigger:    t.Trigger,
			ExecutedAt: t.ExecutedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": views})
}

func toView(pos domain.Position) positionView {
	v := positionView{
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		OpenedAt:   pos.OpenedAt.UTC().Format(time.RFC3339),
		ExitPrice:  pos.ExitPrice,
		Status:     string(pos.Status),
	}
	if pos.ClosedAt != nil {
		v.ClosedAt = pos.ClosedAt.UTC().Format(time.RFC3339)
	}
	return v
}
