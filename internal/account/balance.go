// Package account caches exchange balances behind a short TTL so a burst of
// signals does not hammer the private balance endpoint.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tradewire/signalbridge/internal/domain"
)

// BalanceCache serves free balances from memory for up to a TTL. Concurrent
// refreshes are collapsed into a single exchange call; invalidation after an
// order forces the next read to refresh.
type BalanceCache struct {
	exchange domain.Exchange
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	balances  map[string]float64
	fetchedAt time.Time
}

// NewBalanceCache returns a cold cache; the first Free call fetches.
func NewBalanceCache(exchange domain.Exchange, ttl time.Duration, logger *slog.Logger) *BalanceCache {
	return &BalanceCache{
		exchange: exchange,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "balance_cache")),
		now:      time.Now,
	}
}

// Free returns the available amount of one asset, refreshing the cache when
// stale. A missing asset reads as zero.
func (b *BalanceCache) Free(ctx context.Context, asset string) (float64, error) {
	balances, err := b.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return balances[asset], nil
}

// snapshot returns the cached balance map, refreshing it when older than the
// TTL. The singleflight group serializes refreshes so concurrent callers
// share one exchange round trip.
func (b *BalanceCache) snapshot(ctx context.Context) (map[string]float64, error) {
	b.mu.RLock()
	fresh := b.balances != nil && b.now().Sub(b.fetchedAt) < b.ttl
	balances := b.balances
	b.mu.RUnlock()
	if fresh {
		return balances, nil
	}

	v, err, _ := b.group.Do("balances", func() (any, error) {
		// Another waiter may have refreshed while we queued.
		b.mu.RLock()
		if b.balances != nil && b.now().Sub(b.fetchedAt) < b.ttl {
			cached := b.balances
			b.mu.RUnlock()
			return cached, nil
		}
		b.mu.RUnlock()

		fetched, err := b.exchange.FetchBalances(ctx)
		if err != nil {
			return nil, fmt.Errorf("account: fetch balances: %w", err)
		}
		b.mu.Lock()
		b.balances = fetched
		b.fetchedAt = b.now()
		b.mu.Unlock()
		b.logger.Debug("balances refreshed", slog.Int("assets", len(fetched)))
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]float64), nil
}

// Invalidate drops the cached balances. Call it right after any order fill so
// the next sizing pass sees post-trade funds.
func (b *BalanceCache) Invalidate() {
	b.mu.Lock()
	b.balances = nil
	b.fetchedAt = time.Time{}
	b.mu.Unlock()
}
