// Package monitor runs one trailing-stop watcher per open position. A watcher
// polls the price, tightens its stop as the price advances, and asks the
// trade service to flatten the position when a stop is crossed.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Closer flattens a position. Implemented by the trade service so monitor
// exits go through the same sizing, execution, and bookkeeping as signals.
type Closer interface {
	ClosePosition(ctx context.Context, symbol, trigger string) (domain.Outcome, error)
}

// Tier holds the trailing parameters for one confidence tier, in percent.
type Tier struct {
	ActivationPct float64
	GapPct        float64
}

// Config holds the monitor parameters, in percent of price.
type Config struct {
	StopPct             float64
	HardCapPct          float64
	PollInterval        time.Duration
	ConfidenceThreshold int
	Standard            Tier
	High                Tier
}

// TierFor selects the trailing tier for a signal confidence.
func (c Config) TierFor(confidence int) Tier {
	if confidence >= c.ConfidenceThreshold {
		return c.High
	}
	return c.Standard
}

// phase is the watcher state machine: armed until the activation threshold is
// reached, then trailing until a stop fires or the position disappears.
type phase int

const (
	phaseArmed phase = iota
	phaseTrailing
)

// Monitor owns the shared collaborators; one Watch call tracks one position.
type Monitor struct {
	cfg    Config
	store  domain.PositionStore
	prices domain.PriceSource
	closer Closer
	logger *slog.Logger
}

// NewMonitor wires a Monitor from its collaborators.
func NewMonitor(cfg Config, store domain.PositionStore, prices domain.PriceSource, closer Closer, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		store:  store,
		prices: prices,
		closer: closer,
		logger: logger.With(slog.String("component", "monitor")),
	}
}

// state is the per-watch mutable tracking data.
type state struct {
	pos      domain.Position
	tier     Tier
	hardStop float64
	phase    phase
	high     float64
}

// newState computes the initial stop levels for a position.
func (m *Monitor) newState(pos domain.Position, confidence int) *state {
	stopPct := m.cfg.StopPct
	if m.cfg.HardCapPct > 0 && stopPct > m.cfg.HardCapPct {
		stopPct = m.cfg.HardCapPct
	}
	return &state{
		pos:      pos,
		tier:     m.cfg.TierFor(confidence),
		hardStop: pos.EntryPrice * (1 - stopPct/100),
		phase:    phaseArmed,
	}
}

// Watch tracks one position until it closes, blocking until then or until the
// context is cancelled. Transient errors are logged and the loop keeps going;
// only a confirmed close (ours or external) ends the watch.
func (m *Monitor) Watch(ctx context.Context, pos domain.Position, confidence int) {
	st := m.newState(pos, confidence)
	log := m.logger.With(
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
	)
	log.Info("watch started",
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("hard_stop", st.hardStop),
		slog.Float64("activation_pct", st.tier.ActivationPct),
		slog.Float64("gap_pct", st.tier.GapPct))

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped", slog.String("cause", "shutdown"))
			return
		case <-ticker.C:
			if done := m.evaluate(ctx, st, log); done {
				return
			}
		}
	}
}

// evaluate runs one poll cycle. It returns true when the watch should end.
func (m *Monitor) evaluate(ctx context.Context, st *state, log *slog.Logger) bool {
	// Re-read the store first: a webhook SELL or a manual close may have
	// flattened the position since the last cycle.
	cur, err := m.store.Get(ctx, st.pos.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info("watch stopped", slog.String("cause", "position gone"))
			return true
		}
		log.Warn("position read failed, keeping watch", slog.Any("error", err))
		return false
	}
	if !cur.Open() || cur.ID != st.pos.ID {
		log.Info("watch stopped", slog.String("cause", "closed externally"))
		return true
	}

	price, err := m.prices.Price(ctx, st.pos.Symbol)
	if err != nil || price <= 0 {
		log.Warn("price unavailable, keeping watch", slog.Any("error", err))
		return false
	}

	switch st.phase {
	case phaseArmed:
		if price <= st.hardStop {
			return m.close(ctx, st, log, "hard_stop", price)
		}
		activation := st.pos.EntryPrice * (1 + st.tier.ActivationPct/100)
		if price >= activation {
			st.phase = phaseTrailing
			st.high = price
			log.Info("trailing activated",
				slog.Float64("price", price),
				slog.Float64("stop", st.stop()))
		}
	case phaseTrailing:
		if price > st.high {
			st.high = price
		}
		if price <= st.stop() {
			return m.close(ctx, st, log, "trailing_stop", price)
		}
	}
	return false
}

// stop returns the current stop level: the high-water trail, never below the
// hard stop.
func (st *state) stop() float64 {
	trail := st.high * (1 - st.tier.GapPct/100)
	if trail < st.hardStop {
		return st.hardStop
	}
	return trail
}

// close asks the trade service to flatten the position. A failed close keeps
// the watch alive so the next cycle retries.
func (m *Monitor) close(ctx context.Context, st *state, log *slog.Logger, trigger string, price float64) bool {
	outcome, err := m.closer.ClosePosition(ctx, st.pos.Symbol, trigger)
	if err != nil {
		log.Error("close failed, keeping watch",
			slog.String("trigger", trigger),
			slog.Any("error", err))
		return false
	}
	switch outcome.Status {
	case domain.OutcomeExecuted:
		log.Info("position closed",
			slog.String("trigger", trigger),
			slog.Float64("price", price),
			slog.String("order_id", outcome.Order.OrderID))
		return true
	case domain.OutcomeSkipped:
		switch outcome.Reason {
		case domain.SkipNoPosition, domain.SkipDust:
			// Nothing left for this watch to guard.
			log.Info("watch stopped",
				slog.String("cause", "close skipped"),
				slog.String("reason", string(outcome.Reason)))
			return true
		default:
			// Transient refusals (exhausted retries, stale metadata) leave the
			// position open; the next cycle tries the close again.
			log.Warn("close skipped, keeping watch",
				slog.String("trigger", trigger),
				slog.String("reason", string(outcome.Reason)),
				slog.String("detail", outcome.Detail))
			return false
		}
	default:
		log.Error("close failed, keeping watch",
			slog.String("trigger", trigger),
			slog.Any("error", outcome.Err))
		return false
	}
}
