package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Verdict is the guard's decision for one signal. Wait is the remaining
// cooldown when the verdict is a cooldown skip.
type Verdict struct {
	Allowed bool
	Reason  domain.SkipReason
	Detail  string
	Wait    time.Duration
}

// Guard enforces the per-(side, symbol) cooldown and the exact-duplicate
// window. State is held in memory only: a restart clears it, which at worst
// lets one extra trade through.
type Guard struct {
	buyCooldown  time.Duration
	sellCooldown time.Duration
	dedupWindow  time.Duration

	mu    sync.Mutex
	fired map[string]time.Time // side|symbol -> last accepted
	seen  map[string]time.Time // dedup key -> first seen
}

// NewGuard creates a Guard with the given policy windows.
func NewGuard(buyCooldown, sellCooldown, dedupWindow time.Duration) *Guard {
	return &Guard{
		buyCooldown:  buyCooldown,
		sellCooldown: sellCooldown,
		dedupWindow:  dedupWindow,
		fired:        make(map[string]time.Time),
		seen:         make(map[string]time.Time),
	}
}

// Check evaluates a signal against the dedup window and cooldown. A blocked
// signal is NOT recorded; only MarkFired starts a cooldown, so a skipped or
// failed signal never delays the next one.
func (g *Guard) Check(sig domain.Signal, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dedupWindow > 0 && sig.ID != "" {
		key := sig.DedupKey()
		if first, ok := g.seen[key]; ok && now.Sub(first) < g.dedupWindow {
			return Verdict{
				Reason: domain.SkipDuplicateSignal,
				Detail: fmt.Sprintf("duplicate of signal seen %s ago", now.Sub(first).Round(time.Millisecond)),
			}
		}
		g.seen[key] = now
	}

	cooldown := g.buyCooldown
	reason := domain.SkipBuyCooldown
	if sig.Kind == domain.SignalSell {
		cooldown = g.sellCooldown
		reason = domain.SkipSellCooldown
	}
	if cooldown > 0 {
		if last, ok := g.fired[sig.Key()]; ok {
			if elapsed := now.Sub(last); elapsed < cooldown {
				wait := cooldown - elapsed
				return Verdict{
					Reason: reason,
					Detail: fmt.Sprintf("retry in %s", wait.Round(time.Second)),
					Wait:   wait,
				}
			}
		}
	}

	return Verdict{Allowed: true}
}

// MarkFired records that a signal resulted in a submitted order, starting its
// cooldown from now.
func (g *Guard) MarkFired(sig domain.Signal, now time.Time) {
	g.mu.Lock()
	g.fired[sig.Key()] = now
	g.mu.Unlock()
}

// Cleanup evicts expired entries. Call it periodically from the run loop.
func (g *Guard) Cleanup(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	maxCooldown := g.buyCooldown
	if g.sellCooldown > maxCooldown {
		maxCooldown = g.sellCooldown
	}
	for key, ts := range g.fired {
		if now.Sub(ts) >= maxCooldown {
			delete(g.fired, key)
		}
	}
	for key, ts := range g.seen {
		if now.Sub(ts) >= g.dedupWindow {
			delete(g.seen, key)
		}
	}
}
