// Package service orchestrates the signal-to-order pipeline: policy checks,
// sizing, execution, position bookkeeping, and monitor hand-off.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/executor"
	"github.com/tradewire/signalbridge/internal/notify"
	"github.com/tradewire/signalbridge/internal/sizing"
)

// MonitorStarter launches a trailing-stop watcher for a freshly opened
// position. Implemented by the monitor manager.
type MonitorStarter interface {
	StartFor(pos domain.Position, confidence int)
}

// TradeService is the single writer for trading state. All order flow,
// whether from webhooks or monitors, goes through it; a per-symbol critical
// section keeps concurrent signals for the same symbol strictly ordered.
type TradeService struct {
	sizer     *sizing.Sizer
	gateway   *executor.Gateway
	guard     *executor.Guard
	positions domain.PositionStore
	trades    domain.TradeStore
	monitors  MonitorStarter
	notifier  *notify.Notifier
	balances  interface{ Invalidate() }
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTradeService wires the pipeline. monitors may be nil when trailing stops
// are disabled.
func NewTradeService(
	sizer *sizing.Sizer,
	gateway *executor.Gateway,
	guard *executor.Guard,
	positions domain.PositionStore,
	trades domain.TradeStore,
	monitors MonitorStarter,
	notifier *notify.Notifier,
	balances interface{ Invalidate() },
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		sizer:     sizer,
		gateway:   gateway,
		guard:     guard,
		positions: positions,
		trades:    trades,
		monitors:  monitors,
		notifier:  notifier,
		balances:  balances,
		logger:    logger.With(slog.String("component", "trade_service")),
		locks:     make(map[string]*sync.Mutex),
	}
}

// symbolLock returns the mutex guarding one symbol's trading state.
func (s *TradeService) symbolLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	return l
}

// HandleSignal runs one authenticated, symbol-normalized signal through the
// pipeline and reports the outcome. Policy refusals come back as skips, never
// as errors.
func (s *TradeService) HandleSignal(ctx context.Context, sig domain.Signal) domain.Outcome {
	log := s.logger.With(
		slog.String("signal", string(sig.Kind)),
		slog.String("symbol", sig.Symbol),
		slog.String("id", sig.ID),
	)

	l := s.symbolLock(sig.Symbol)
	l.Lock()
	defer l.Unlock()

	now := sig.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if verdict := s.guard.Check(sig, now); !verdict.Allowed {
		log.Info("signal skipped",
			slog.String("reason", string(verdict.Reason)),
			slog.Duration("wait", verdict.Wait))
		return domain.Skipped(verdict.Reason, verdict.Detail)
	}

	var outcome domain.Outcome
	switch sig.Kind {
	case domain.SignalBuy:
		outcome = s.handleBuy(ctx, sig, now, log)
	case domain.SignalSell:
		outcome = s.handleSell(ctx, sig, now, log)
	default:
		outcome = domain.Skipped(domain.SkipUnknownSignal, string(sig.Kind))
	}

	if outcome.Status == domain.OutcomeFailed {
		log.Error("signal failed", slog.Any("error", outcome.Err))
		s.notifier.Error(ctx, "signal "+sig.Symbol, outcome.Err)
	}
	return outcome
}

func (s *TradeService) handleBuy(ctx context.Context, sig domain.Signal, now time.Time, log *slog.Logger) domain.Outcome {
	if pos, err := s.positions.Get(ctx, sig.Symbol); err == nil && pos.Open() {
		return domain.Skipped(domain.SkipPositionOpen,
			fmt.Sprintf("opened %s", pos.OpenedAt.Format(time.RFC3339)))
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Failed(err)
	}

	intent, err := s.sizer.SizeBuy(ctx, sig.Symbol, sig.Quote)
	if err != nil {
		return s.classify(err)
	}

	res, err := s.gateway.Submit(ctx, intent)
	if err != nil {
		return s.classify(err)
	}
	s.balances.Invalidate()

	pos := domain.Position{
		ID:         uuid.New().String(),
		Symbol:     sig.Symbol,
		Side:       domain.PositionSideLong,
		EntryPrice: res.Price,
		Quantity:   res.Quantity,
		Status:     domain.PositionStatusOpen,
		OpenedAt:   res.ExecutedAt,
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		// The order is live but the position could not be recorded; surface
		// loudly rather than pretend nothing happened.
		log.Error("position record failed after fill",
			slog.String("order_id", res.OrderID),
			slog.Any("error", err))
		s.notifier.Error(ctx, "record position "+sig.Symbol, err)
		return domain.Failed(fmt.Errorf("service: record position after fill %s: %w", res.OrderID, err))
	}

	s.recordTrade(ctx, res, "signal", log)
	s.guard.MarkFired(sig, now)
	if s.monitors != nil {
		s.monitors.StartFor(pos, sig.Confidence)
	}
	s.notifier.OrderFilled(ctx, res)

	log.Info("buy executed",
		slog.String("order_id", res.OrderID),
		slog.Float64("qty", res.Quantity),
		slog.Float64("price", res.Price),
		slog.Bool("dry_run", res.DryRun))
	return domain.Executed(res)
}

func (s *TradeService) handleSell(ctx context.Context, sig domain.Signal, now time.Time, log *slog.Logger) domain.Outcome {
	pos, err := s.positions.Get(ctx, sig.Symbol)
	switch {
	case errors.Is(err, domain.ErrNotFound), err == nil && !pos.Open():
		if !sig.ForceClose {
			return domain.Skipped(domain.SkipNoPosition, "")
		}
		// force_close flattens whatever the account holds, tracked or not.
		pos = domain.Position{Symbol: sig.Symbol}
	case err != nil:
		return domain.Failed(err)
	}

	outcome := s.flatten(ctx, pos, "signal", sig.ForceClose, log)
	if outcome.Status == domain.OutcomeExecuted {
		s.guard.MarkFired(sig, now)
	}
	return outcome
}

// ClosePosition flattens a tracked position on behalf of a trailing-stop
// monitor. Trigger names the stop that fired and lands in the trade log.
func (s *TradeService) ClosePosition(ctx context.Context, symbol, trigger string) (domain.Outcome, error) {
	l := s.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	pos, err := s.positions.Get(ctx, symbol)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Skipped(domain.SkipNoPosition, ""), nil
	}
	if err != nil {
		return domain.Outcome{}, err
	}
	if !pos.Open() {
		return domain.Skipped(domain.SkipNoPosition, "already closed"), nil
	}

	log := s.logger.With(slog.String("symbol", symbol), slog.String("trigger", trigger))
	outcome := s.flatten(ctx, pos, trigger, true, log)
	if outcome.Status == domain.OutcomeFailed {
		return outcome, outcome.Err
	}
	return outcome, nil
}

// flatten sells the position's quantity (or the whole balance when quantity
// is unknown) and closes the stored record. Caller holds the symbol lock.
func (s *TradeService) flatten(ctx context.Context, pos domain.Position, trigger string, forceClose bool, log *slog.Logger) domain.Outcome {
	intent, err := s.sizer.SizeSell(ctx, pos.Symbol, pos.Quantity, forceClose)
	if err != nil {
		outcome := s.classify(err)
		if forceClose && outcome.Reason == domain.SkipDust && pos.Open() {
			// Nothing sellable remains, so the record is retired anyway;
			// otherwise the phantom position blocks every future buy.
			if _, cerr := s.positions.Close(ctx, pos.Symbol, 0); cerr != nil && !errors.Is(cerr, domain.ErrNotFound) {
				log.Error("dust position close record failed", slog.Any("error", cerr))
				s.notifier.Error(ctx, "record close "+pos.Symbol, cerr)
				return domain.Failed(fmt.Errorf("service: record dust close %s: %w", pos.Symbol, cerr))
			}
			log.Info("dust position marked closed", slog.String("detail", outcome.Detail))
		}
		return outcome
	}

	res, err := s.gateway.Submit(ctx, intent)
	if err != nil {
		return s.classify(err)
	}
	s.balances.Invalidate()

	if _, err := s.positions.Close(ctx, pos.Symbol, res.Price); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("position close record failed",
			slog.String("order_id", res.OrderID),
			slog.Any("error", err))
		s.notifier.Error(ctx, "record close "+pos.Symbol, err)
		return domain.Failed(fmt.Errorf("service: record close after fill %s: %w", res.OrderID, err))
	}

	s.recordTrade(ctx, res, trigger, log)
	s.notifier.PositionClosed(ctx, pos, trigger, res)

	log.Info("position flattened",
		slog.String("order_id", res.OrderID),
		slog.Float64("qty", res.Quantity),
		slog.Float64("price", res.Price),
		slog.Bool("dry_run", res.DryRun))
	return domain.Executed(res)
}

// recordTrade appends to the trade log. Audit failures are logged, not fatal.
func (s *TradeService) recordTrade(ctx context.Context, res domain.OrderResult, trigger string, log *slog.Logger) {
	trade := domain.Trade{
		ID:         res.OrderID,
		Symbol:     res.Symbol,
		Side:       res.Side,
		Quantity:   res.Quantity,
		Price:      res.Price,
		DryRun:     res.DryRun,
		Trigger:    trigger,
		ExecutedAt: res.ExecutedAt,
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		log.Warn("trade log insert failed", slog.Any("error", err))
	}
}

// classify maps pipeline errors to outcomes: sizing refusals and transient
// exchange conditions are policy skips, everything else is a failure.
func (s *TradeService) classify(err error) domain.Outcome {
	var sizeErr *sizing.Error
	if errors.As(err, &sizeErr) {
		detail := sizeErr.Detail
		if sizeErr.MinNotional > 0 {
			detail = fmt.Sprintf("minimum notional %.2f", sizeErr.MinNotional)
			if sizeErr.Detail != "" {
				detail = sizeErr.Detail + ", " + detail
			}
		}
		switch sizeErr.Kind {
		case sizing.KindInsufficientFunds:
			return domain.Skipped(domain.SkipInsufficientFunds, detail)
		case sizing.KindDust:
			return domain.Skipped(domain.SkipDust, detail)
		default:
			return domain.Skipped(domain.SkipBelowMinNotional, detail)
		}
	}
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return domain.Skipped(domain.SkipInsufficientFunds, err.Error())
	}
	if domain.Retryable(err) || errors.Is(err, domain.ErrMetadataUnavailable) {
		return domain.Skipped(domain.SkipNetworkError, err.Error())
	}
	return domain.Failed(err)
}

// Positions returns the position store for read-only API handlers.
func (s *TradeService) Positions() domain.PositionStore {
	return s.positions
}

// Trades returns the trade store for read-only API handlers.
func (s *TradeService) Trades() domain.TradeStore {
	return s.trades
}
