package service

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tradewire/signalbridge/internal/account"
	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/executor"
	"github.com/tradewire/signalbridge/internal/market"
	"github.com/tradewire/signalbridge/internal/notify"
	"github.com/tradewire/signalbridge/internal/sizing"
	"github.com/tradewire/signalbridge/internal/store/file"
)

type fakeExchange struct {
	mu       sync.Mutex
	balances map[string]float64
	ticker   domain.Ticker
	orders   []domain.OrderIntent
	orderErr error
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	return []domain.Market{{
		Symbol: "BTC/EUR", Base: "BTC", Quote: "EUR",
		MinAmount: 0.0001, MinCost: 0.5, AmountStep: 0.00000001,
	}}, nil
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return f.ticker, nil
}

func (f *fakeExchange) FetchBalances(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount float64) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return domain.OrderResult{}, f.orderErr
	}
	f.orders = append(f.orders, domain.OrderIntent{Symbol: symbol, Side: side, Quantity: amount})
	return domain.OrderResult{
		OrderID:    "oid-1",
		Symbol:     symbol,
		Side:       side,
		Quantity:   amount,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeMonitors struct {
	mu      sync.Mutex
	started []domain.Position
}

func (f *fakeMonitors) StartFor(pos domain.Position, confidence int) {
	f.mu.Lock()
	f.started = append(f.started, pos)
	f.mu.Unlock()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc      *TradeService
	exchange *fakeExchange
	monitors *fakeMonitors
	store    *file.Store
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()
	log := discard()

	ex := &fakeExchange{
		balances: map[string]float64{"EUR": 1000, "BTC": 0.01},
		ticker:   domain.Ticker{Symbol: "BTC/EUR", Last: 50000, Bid: 49990, Ask: 50010},
	}
	catalog := market.NewCatalog(ex, log)
	balances := account.NewBalanceCache(ex, time.Minute, log)
	sizer := sizing.NewSizer(catalog, balances, ex, sizing.Params{
		QuotePerTrade:    25,
		MinNotional:      10,
		FeeBufferPct:     0.5,
		MinAmountCeiling: 500,
	}, log)
	gateway := executor.NewGateway(ex, 3, time.Millisecond, dryRun, log)
	// Cooldowns stay off here; the guard package covers them on its own.
	guard := executor.NewGuard(0, 0, 5*time.Second)

	st, err := file.NewStore(filepath.Join(t.TempDir(), "state.json"), true, log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	monitors := &fakeMonitors{}
	notifier := notify.NewNotifier(nil, nil, log)

	svc := NewTradeService(sizer, gateway, guard, st, st, monitors, notifier, balances, log)
	return &fixture{svc: svc, exchange: ex, monitors: monitors, store: st}
}

func buySignal(id string) domain.Signal {
	return domain.Signal{
		Kind:       domain.SignalBuy,
		Symbol:     "BTC/EUR",
		Quote:      25,
		Confidence: 1,
		ID:         id,
		ReceivedAt: time.Now().UTC(),
	}
}

func sellSignal(id string, force bool) domain.Signal {
	return domain.Signal{
		Kind:       domain.SignalSell,
		Symbol:     "BTC/EUR",
		ForceClose: force,
		ID:         id,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestBuyOpensPositionAndStartsMonitor(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	out := f.svc.HandleSignal(ctx, buySignal("evt-1"))
	if out.Status != domain.OutcomeExecuted {
		t.Fatalf("outcome = %+v, want executed", out)
	}
	if f.exchange.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", f.exchange.orderCount())
	}

	pos, err := f.store.Get(ctx, "BTC/EUR")
	if err != nil || !pos.Open() {
		t.Fatalf("position after buy: %+v, %v", pos, err)
	}
	if pos.EntryPrice != 50010 {
		t.Errorf("EntryPrice = %v, want backfilled ask 50010", pos.EntryPrice)
	}

	if len(f.monitors.started) != 1 {
		t.Errorf("monitors started = %d, want 1", len(f.monitors.started))
	}

	trades, _ := f.store.ListRecent(ctx, 10)
	if len(trades) != 1 || trades[0].Trigger != "signal" {
		t.Errorf("trades = %+v, want one signal trade", trades)
	}
}

func TestSecondBuySkipsOnOpenPosition(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if out := f.svc.HandleSignal(ctx, buySignal("evt-1")); out.Status != domain.OutcomeExecuted {
		t.Fatalf("first buy: %+v", out)
	}
	out := f.svc.HandleSignal(ctx, buySignal("evt-2"))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipPositionOpen {
		t.Errorf("second buy = %+v, want position_open skip", out)
	}
	if f.exchange.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", f.exchange.orderCount())
	}
}

func TestDuplicateSignalSubmitsOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first := f.svc.HandleSignal(ctx, buySignal("evt-1"))
	second := f.svc.HandleSignal(ctx, buySignal("evt-1"))

	if first.Status != domain.OutcomeExecuted {
		t.Fatalf("first = %+v", first)
	}
	if second.Status != domain.OutcomeSkipped || second.Reason != domain.SkipDuplicateSignal {
		t.Errorf("second = %+v, want duplicate_signal skip", second)
	}
	if f.exchange.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", f.exchange.orderCount())
	}
}

func TestSellWithoutPositionSkips(t *testing.T) {
	f := newFixture(t, false)

	out := f.svc.HandleSignal(context.Background(), sellSignal("evt-1", false))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipNoPosition {
		t.Errorf("outcome = %+v, want no_position skip", out)
	}
	if f.exchange.orderCount() != 0 {
		t.Errorf("orders = %d, want 0", f.exchange.orderCount())
	}
}

func TestForceCloseSellsUntrackedBalance(t *testing.T) {
	f := newFixture(t, false)

	out := f.svc.HandleSignal(context.Background(), sellSignal("evt-1", true))
	if out.Status != domain.OutcomeExecuted {
		t.Fatalf("outcome = %+v, want executed", out)
	}
	if f.exchange.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", f.exchange.orderCount())
	}
	if got := f.exchange.orders[0]; got.Side != domain.OrderSideSell || math.Abs(got.Quantity-0.01) > 1e-9 {
		t.Errorf("order = %+v, want sell of full 0.01 BTC balance", got)
	}
}

func TestForceCloseDustStillClosesPosition(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if out := f.svc.HandleSignal(ctx, buySignal("evt-1")); out.Status != domain.OutcomeExecuted {
		t.Fatalf("buy: %+v", out)
	}

	// The base balance evaporates (withdrawal, fees); nothing is sellable.
	f.exchange.mu.Lock()
	f.exchange.balances["BTC"] = 0
	f.exchange.mu.Unlock()

	out := f.svc.HandleSignal(ctx, sellSignal("evt-2", true))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipDust {
		t.Fatalf("outcome = %+v, want dust skip", out)
	}
	if f.exchange.orderCount() != 1 {
		t.Errorf("orders = %d, want 1 (no sell for dust)", f.exchange.orderCount())
	}

	// The record is retired so the symbol is not blocked by a phantom position.
	pos, err := f.store.Get(ctx, "BTC/EUR")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pos.Open() {
		t.Fatal("position still open after force-close dust skip")
	}

	f.exchange.mu.Lock()
	f.exchange.balances["BTC"] = 0.01
	f.exchange.mu.Unlock()
	if out := f.svc.HandleSignal(ctx, buySignal("evt-3")); out.Status != domain.OutcomeExecuted {
		t.Errorf("buy after dust close = %+v, want executed", out)
	}
}

func TestPlainSellDustKeepsPosition(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if out := f.svc.HandleSignal(ctx, buySignal("evt-1")); out.Status != domain.OutcomeExecuted {
		t.Fatalf("buy: %+v", out)
	}
	f.exchange.mu.Lock()
	f.exchange.balances["BTC"] = 0
	f.exchange.mu.Unlock()

	out := f.svc.HandleSignal(ctx, sellSignal("evt-2", false))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipDust {
		t.Fatalf("outcome = %+v, want dust skip", out)
	}
	pos, err := f.store.Get(ctx, "BTC/EUR")
	if err != nil || !pos.Open() {
		t.Errorf("position = %+v, %v; a plain sell must not retire the record", pos, err)
	}
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if out := f.svc.HandleSignal(ctx, buySignal("evt-1")); out.Status != domain.OutcomeExecuted {
		t.Fatalf("buy: %+v", out)
	}
	out := f.svc.HandleSignal(ctx, sellSignal("evt-2", false))
	if out.Status != domain.OutcomeExecuted {
		t.Fatalf("sell: %+v", out)
	}

	pos, err := f.store.Get(ctx, "BTC/EUR")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pos.Open() {
		t.Error("position still open after sell")
	}

	trades, _ := f.store.ListRecent(ctx, 10)
	if len(trades) != 2 {
		t.Errorf("trades = %d, want 2", len(trades))
	}
}

func TestClosePositionByTrigger(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if out := f.svc.HandleSignal(ctx, buySignal("evt-1")); out.Status != domain.OutcomeExecuted {
		t.Fatalf("buy: %+v", out)
	}
	out, err := f.svc.ClosePosition(ctx, "BTC/EUR", "hard_stop")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if out.Status != domain.OutcomeExecuted {
		t.Fatalf("outcome = %+v, want executed", out)
	}

	trades, _ := f.store.ListRecent(ctx, 1)
	if len(trades) != 1 || trades[0].Trigger != "hard_stop" {
		t.Errorf("latest trade = %+v, want hard_stop trigger", trades)
	}

	// A second close is a clean no-position skip.
	again, err := f.svc.ClosePosition(ctx, "BTC/EUR", "hard_stop")
	if err != nil || again.Status != domain.OutcomeSkipped {
		t.Errorf("second close = %+v, %v; want skip", again, err)
	}
}

func TestDryRunNeverTouchesExchangeOrders(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	out := f.svc.HandleSignal(ctx, buySignal("evt-1"))
	if out.Status != domain.OutcomeExecuted {
		t.Fatalf("outcome = %+v, want executed", out)
	}
	if f.exchange.orderCount() != 0 {
		t.Errorf("orders = %d, want 0 in dry run", f.exchange.orderCount())
	}
	if out.Order == nil || !out.Order.DryRun {
		t.Errorf("order = %+v, want dry-run fill", out.Order)
	}

	// Dry-run fills still open tracked positions.
	pos, err := f.store.Get(ctx, "BTC/EUR")
	if err != nil || !pos.Open() {
		t.Errorf("position after dry-run buy: %+v, %v", pos, err)
	}
}

func TestTransientExchangeErrorIsSkip(t *testing.T) {
	f := newFixture(t, false)
	f.exchange.orderErr = domain.ErrExchangeUnavailable

	out := f.svc.HandleSignal(context.Background(), buySignal("evt-1"))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipNetworkError {
		t.Errorf("outcome = %+v, want network_error skip", out)
	}
}

func TestExchangeInsufficientFundsIsSkip(t *testing.T) {
	f := newFixture(t, false)
	f.exchange.orderErr = domain.ErrInsufficientFunds

	out := f.svc.HandleSignal(context.Background(), buySignal("evt-1"))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipInsufficientFunds {
		t.Errorf("outcome = %+v, want insufficient_funds skip", out)
	}
}

func TestLowBalanceIsSkipWithMinNotional(t *testing.T) {
	f := newFixture(t, false)
	f.exchange.mu.Lock()
	f.exchange.balances["EUR"] = 2
	f.exchange.mu.Unlock()

	out := f.svc.HandleSignal(context.Background(), buySignal("evt-1"))
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipInsufficientFunds {
		t.Fatalf("outcome = %+v, want insufficient_funds skip", out)
	}
	if out.Detail == "" {
		t.Error("skip detail should name the minimum notional")
	}
}

func TestUnknownSignalKindSkips(t *testing.T) {
	f := newFixture(t, false)

	sig := domain.Signal{Kind: "HOLD", Symbol: "BTC/EUR", ID: "evt-1", ReceivedAt: time.Now()}
	out := f.svc.HandleSignal(context.Background(), sig)
	if out.Status != domain.OutcomeSkipped || out.Reason != domain.SkipUnknownSignal {
		t.Errorf("outcome = %+v, want unknown_signal skip", out)
	}
}
