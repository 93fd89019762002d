package domain

import (
	"context"
	"time"
)

// PositionStore is the single point of truth for a symbol's open/closed
// state. Implementations must serialize writes; callers never mutate a
// Position directly.
type PositionStore interface {
	// Create opens a position. It returns ErrPositionOpen when the symbol
	// already has an open position.
	Create(ctx context.Context, pos Position) error
	// Get returns the current position for a symbol, open or closed.
	// It returns ErrNotFound when the symbol has never traded.
	Get(ctx context.Context, symbol string) (Position, error)
	// Close marks the symbol's open position as flattened. It is idempotent:
	// closing an already-closed position returns the closed record unchanged.
	Close(ctx context.Context, symbol string, exitPrice float64) (Position, error)
	// ListOpen returns every open position, used to resume monitors at start.
	ListOpen(ctx context.Context) ([]Position, error)
}

// Trade is one executed (or simulated) order, kept for audit.
type Trade struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Price      float64
	DryRun     bool
	Trigger    string // "signal", "hard_stop", "trailing_stop", "force_close"
	ExecutedAt time.Time
}

// TradeStore persists the trade log.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
}
