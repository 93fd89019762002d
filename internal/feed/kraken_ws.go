package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/platform/kraken"
	"github.com/tradewire/signalbridge/internal/symbol"
)

// KrakenWSFeed subscribes to the Kraken public ticker stream for a set of
// symbols and pushes updates into a PriceBoard. It reconnects on disconnect.
type KrakenWSFeed struct {
	wsURL   string
	board   *PriceBoard
	logger  *slog.Logger
	symbols map[string]struct{} // canonical symbols, keyed for dedup
	pairs   map[string]string   // ws pair name -> canonical symbol
	mu      sync.Mutex
}

// NewKrakenWSFeed creates a feed for the given canonical symbols.
func NewKrakenWSFeed(wsURL string, symbols []string, board *PriceBoard, logger *slog.Logger) *KrakenWSFeed {
	f := &KrakenWSFeed{
		wsURL:   wsURL,
		board:   board,
		logger:  logger.With(slog.String("component", "kraken_ws_feed")),
		symbols: make(map[string]struct{}),
		pairs:   make(map[string]string),
	}
	for _, sym := range symbols {
		f.addLocked(sym)
	}
	return f
}

// AddSymbol registers another symbol for the next (re)connection. The current
// connection keeps its existing subscriptions; the reconnect loop picks up
// additions.
func (f *KrakenWSFeed) AddSymbol(sym string) {
	f.mu.Lock()
	f.addLocked(sym)
	f.mu.Unlock()
}

func (f *KrakenWSFeed) addLocked(sym string) {
	f.symbols[sym] = struct{}{}
	f.pairs[kraken.WSPairName(sym)] = sym
}

// Run connects, subscribes, and consumes ticker updates until ctx is
// cancelled, reconnecting with a flat backoff on any disconnect.
func (f *KrakenWSFeed) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.runConnection(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("ticker feed disconnected, reconnecting", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *KrakenWSFeed) runConnection(ctx context.Context) error {
	f.mu.Lock()
	syms := make([]string, 0, len(f.symbols))
	for sym := range f.symbols {
		syms = append(syms, sym)
	}
	f.mu.Unlock()

	client := kraken.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnTicker(func(t domain.Ticker) {
		f.board.Update(t)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(syms); err != nil {
		return err
	}
	f.logger.Info("ticker feed subscribed", slog.Int("symbols", len(syms)))

	return client.Listen(ctx, f.symbolFor)
}

// symbolFor maps a ws pair name back to the canonical symbol.
func (f *KrakenWSFeed) symbolFor(wsPair string) string {
	f.mu.Lock()
	sym, ok := f.pairs[wsPair]
	f.mu.Unlock()
	if ok {
		return sym
	}
	// Unknown pair: normalize the ws name directly (XBT/EUR -> BTC/EUR).
	return symbol.NewNormalizer(wsPair).Normalize(wsPair)
}
