// Package executor owns order submission: the retrying gateway that talks to
// the exchange and the guard that enforces cooldown and dedup policy.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Gateway submits sized order intents to the exchange with a bounded retry
// loop. Only transient failures are retried; auth errors, invalid orders, and
// insufficient funds fail immediately.
type Gateway struct {
	exchange domain.Exchange
	attempts int
	backoff  time.Duration
	dryRun   bool
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a Gateway. attempts is the total number of submissions
// tried (minimum 1); backoff is the base delay, doubled per retry with
// jitter.
func NewGateway(exchange domain.Exchange, attempts int, backoff time.Duration, dryRun bool, logger *slog.Logger) *Gateway {
	if attempts < 1 {
		attempts = 1
	}
	return &Gateway{
		exchange: exchange,
		attempts: attempts,
		backoff:  backoff,
		dryRun:   dryRun,
		logger:   logger.With(slog.String("component", "gateway")),
		sleep:    sleepCtx,
	}
}

// DryRun reports whether the gateway simulates fills instead of trading.
func (g *Gateway) DryRun() bool {
	return g.dryRun
}

// Submit places the intent as a market order. In dry-run mode it returns a
// synthetic fill at the estimated price without touching the exchange.
func (g *Gateway) Submit(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	log := g.logger.With(
		slog.String("symbol", intent.Symbol),
		slog.String("side", string(intent.Side)),
		slog.Float64("qty", intent.Quantity),
	)

	if g.dryRun {
		res := domain.OrderResult{
			OrderID:    "dry-" + uuid.New().String(),
			Symbol:     intent.Symbol,
			Side:       intent.Side,
			Quantity:   intent.Quantity,
			Price:      intent.EstimatedPrice,
			Cost:       intent.Notional(),
			DryRun:     true,
			ExecutedAt: time.Now().UTC(),
		}
		log.Info("dry-run fill", slog.String("order_id", res.OrderID), slog.Float64("price", res.Price))
		return res, nil
	}

	var lastErr error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			delay := jitteredBackoff(g.backoff, attempt)
			log.Warn("retrying order submission",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr))
			if err := g.sleep(ctx, delay); err != nil {
				return domain.OrderResult{}, err
			}
		}

		res, err := g.exchange.CreateMarketOrder(ctx, intent.Symbol, intent.Side, intent.Quantity)
		if err == nil {
			if res.Price <= 0 {
				// Market fills are often reported as txid only; fall back
				// to the sizing price for bookkeeping.
				res.Price = intent.EstimatedPrice
				res.Cost = res.Quantity * res.Price
			}
			log.Info("order filled",
				slog.String("order_id", res.OrderID),
				slog.Float64("price", res.Price),
				slog.Float64("cost", res.Cost))
			return res, nil
		}

		lastErr = err
		if !domain.Retryable(err) {
			return domain.OrderResult{}, fmt.Errorf("executor: submit %s %s: %w", intent.Side, intent.Symbol, err)
		}
	}
	return domain.OrderResult{}, fmt.Errorf("executor: submit %s %s after %d attempts: %w",
		intent.Side, intent.Symbol, g.attempts, lastErr)
}

// jitteredBackoff returns base<<attempt plus up to 25% random jitter.
func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
