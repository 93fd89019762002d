package domain

import "context"

// Exchange is the opaque trading capability consumed by the bridge. The
// concrete implementation lives under internal/platform.
type Exchange interface {
	// LoadMarkets fetches the trading constraints for every listed symbol.
	LoadMarkets(ctx context.Context) ([]Market, error)
	// FetchTicker returns the current price snapshot for one symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	// FetchBalances returns the free (available) amount per asset code.
	FetchBalances(ctx context.Context) (map[string]float64, error)
	// CreateMarketOrder submits a market order and returns the fill.
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, amount float64) (OrderResult, error)
}
