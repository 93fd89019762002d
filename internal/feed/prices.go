// Package feed keeps a live price board fed by the exchange WebSocket, with
// REST ticker fallback for symbols the feed does not cover.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

// maxAge is how long a pushed price stays trusted before the board falls back
// to the REST ticker.
const maxAge = 30 * time.Second

// PriceBoard serves the most recent price per symbol. WebSocket updates land
// via Update; Price reads them and falls back to the REST ticker when the
// board entry is missing or stale.
type PriceBoard struct {
	exchange domain.Exchange
	now      func() time.Time

	mu     sync.RWMutex
	quotes map[string]domain.Ticker
}

var _ domain.PriceSource = (*PriceBoard)(nil)

// NewPriceBoard creates a board backed by the given exchange for fallback.
func NewPriceBoard(exchange domain.Exchange) *PriceBoard {
	return &PriceBoard{
		exchange: exchange,
		now:      time.Now,
		quotes:   make(map[string]domain.Ticker),
	}
}

// Update records a pushed ticker.
func (b *PriceBoard) Update(t domain.Ticker) {
	if t.Time.IsZero() {
		t.Time = b.now()
	}
	b.mu.Lock()
	b.quotes[t.Symbol] = t
	b.mu.Unlock()
}

// Price returns the exit-side price for a symbol, preferring the pushed feed
// entry and falling back to a REST ticker call when it is missing or stale.
func (b *PriceBoard) Price(ctx context.Context, symbol string) (float64, error) {
	b.mu.RLock()
	t, ok := b.quotes[symbol]
	b.mu.RUnlock()

	if ok && b.now().Sub(t.Time) < maxAge {
		if p := t.PriceFor(domain.OrderSideSell); p > 0 {
			return p, nil
		}
	}

	ticker, err := b.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("feed: price %s: %w", symbol, err)
	}
	p := ticker.PriceFor(domain.OrderSideSell)
	if p <= 0 {
		return 0, fmt.Errorf("feed: price %s: no usable quote", symbol)
	}
	b.Update(ticker)
	return p, nil
}
