// Package market caches the per-symbol trading constraints reported by the
// exchange so sizing never re-fetches them on the hot path.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Catalog loads market metadata once per process and serves it from memory.
// A failed load is retried on the next request; a successful load is never
// repeated unless Invalidate is called.
type Catalog struct {
	exchange domain.Exchange
	logger   *slog.Logger

	mu      sync.Mutex
	loaded  bool
	markets map[string]domain.Market
}

// NewCatalog returns an empty Catalog backed by the given exchange.
func NewCatalog(exchange domain.Exchange, logger *slog.Logger) *Catalog {
	return &Catalog{
		exchange: exchange,
		logger:   logger.With(slog.String("component", "market_catalog")),
		markets:  make(map[string]domain.Market),
	}
}

// Get returns the constraints for a canonical symbol, loading the catalog on
// first use. It returns ErrMetadataUnavailable (wrapped) when the load fails,
// and ErrNotFound when the symbol is not listed.
func (c *Catalog) Get(ctx context.Context, symbol string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.loadLocked(ctx); err != nil {
			return domain.Market{}, fmt.Errorf("market: load %s: %w", symbol, err)
		}
	}

	m, ok := c.markets[symbol]
	if !ok {
		return domain.Market{}, fmt.Errorf("market: %s: %w", symbol, domain.ErrNotFound)
	}
	return m, nil
}

// Warm eagerly loads the catalog. Startup calls it so the first signal does
// not pay the load latency; a failure here is not fatal because Get retries.
func (c *Catalog) Warm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// Invalidate drops the cached catalog so the next Get reloads it. Call it
// when the exchange rejects an order for stale constraints.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.markets = make(map[string]domain.Market)
}

func (c *Catalog) loadLocked(ctx context.Context) error {
	markets, err := c.exchange.LoadMarkets(ctx)
	if err != nil {
		c.logger.Warn("market metadata load failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}
	for _, m := range markets {
		c.markets[m.Symbol] = m
	}
	c.loaded = true
	c.logger.Info("market metadata loaded", slog.Int("markets", len(c.markets)))
	return nil
}

// EffectiveMinAmount returns the minimum order quantity to honor for a market
// at the given price. Exchange-reported minimums whose notional exceeds
// ceiling quote units are treated as implausible feed glitches and replaced
// by the amount step.
func EffectiveMinAmount(m domain.Market, price, ceiling float64) float64 {
	min := m.MinAmount
	if min <= 0 {
		return m.AmountStep
	}
	if ceiling > 0 && price > 0 && min*price > ceiling {
		if m.AmountStep > 0 {
			return m.AmountStep
		}
		return 0
	}
	return min
}
