// Package sizing turns a target notional into an exchange-legal order
// quantity, honoring minimum cost, minimum amount, and the amount step.
package sizing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/tradewire/signalbridge/internal/account"
	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/market"
)

// stepEpsilon absorbs float64 representation error when flooring a quantity
// to a step multiple, so 0.30000000000000004 counts as three steps of 0.1.
const stepEpsilon = 1e-9

// ErrorKind classifies why sizing could not produce a legal order.
type ErrorKind string

const (
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindBelowMinimum      ErrorKind = "below_minimum"
	KindDust              ErrorKind = "dust"
)

// Error is returned when no legal order exists for the request. MinNotional
// carries the smallest notional that would have succeeded, so callers can
// report it back to the operator.
type Error struct {
	Kind        ErrorKind
	Symbol      string
	MinNotional float64
	Detail      string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sizing: %s: %s", e.Symbol, e.Kind)
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	if e.MinNotional > 0 {
		fmt.Fprintf(&b, ", minimum notional %.2f", e.MinNotional)
	}
	return b.String()
}

// Params holds the sizing knobs taken from configuration.
type Params struct {
	QuotePerTrade    float64 // default notional per buy
	MinNotional      float64 // bridge-level floor, applied before exchange minimums
	FeeBufferPct     float64 // percent shaved off the buy quantity for fees
	ReserveQuote     float64 // quote units never spent
	ReserveBase      float64 // base units never sold
	MinAmountCeiling float64 // sanity ceiling for reported minimum amounts, in quote units
}

// Sizer computes exchange-legal order intents from cached market metadata,
// live ticker prices, and cached balances.
type Sizer struct {
	catalog  *market.Catalog
	balances *account.BalanceCache
	exchange domain.Exchange
	params   Params
	logger   *slog.Logger
}

// NewSizer wires a Sizer from its collaborators.
func NewSizer(catalog *market.Catalog, balances *account.BalanceCache, exchange domain.Exchange, params Params, logger *slog.Logger) *Sizer {
	return &Sizer{
		catalog:  catalog,
		balances: balances,
		exchange: exchange,
		params:   params,
		logger:   logger.With(slog.String("component", "sizer")),
	}
}

// SizeBuy produces a buy intent targeting the given notional in quote
// currency. A non-positive target falls back to the configured default.
func (s *Sizer) SizeBuy(ctx context.Context, symbol string, targetQuote float64) (domain.OrderIntent, error) {
	m, err := s.catalog.Get(ctx, symbol)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	ticker, err := s.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.OrderIntent{}, fmt.Errorf("sizing: ticker %s: %w", symbol, err)
	}
	price := ticker.PriceFor(domain.OrderSideBuy)
	if price <= 0 {
		return domain.OrderIntent{}, fmt.Errorf("sizing: %s: no usable price: %w", symbol, domain.ErrMetadataUnavailable)
	}

	notional := targetQuote
	if notional <= 0 {
		notional = s.params.QuotePerTrade
	}
	if notional < s.params.MinNotional {
		notional = s.params.MinNotional
	}

	floor := s.minNotionalFor(m, price)

	free, err := s.balances.Free(ctx, m.Quote)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	available := free - s.params.ReserveQuote
	if available < floor {
		return domain.OrderIntent{}, &Error{
			Kind:        KindInsufficientFunds,
			Symbol:      symbol,
			MinNotional: floor,
			Detail:      fmt.Sprintf("available %.2f %s", math.Max(available, 0), m.Quote),
		}
	}
	if notional > available {
		notional = available
	}

	// Convert to base units, shaving the fee buffer so the order cannot
	// overdraw once fees are added.
	qty := notional / price * (1 - s.params.FeeBufferPct/100)

	// Raise to the exchange minimums before flooring to the step, then bump
	// whole steps until both minimums hold again.
	minAmount := market.EffectiveMinAmount(m, price, s.params.MinAmountCeiling)
	if m.MinCost > 0 && qty*price < m.MinCost {
		qty = m.MinCost / price
	}
	if qty < minAmount {
		qty = minAmount
	}
	qty = s.snapToStep(m, price, minAmount, qty)

	if qty <= 0 {
		return domain.OrderIntent{}, &Error{Kind: KindBelowMinimum, Symbol: symbol, MinNotional: floor}
	}
	if qty*price > available+stepEpsilon {
		return domain.OrderIntent{}, &Error{
			Kind:        KindInsufficientFunds,
			Symbol:      symbol,
			MinNotional: qty * price,
			Detail:      fmt.Sprintf("need %.2f, available %.2f %s", qty*price, available, m.Quote),
		}
	}

	s.logger.Debug("sized buy",
		slog.String("symbol", symbol),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Float64("notional", qty*price))

	return domain.OrderIntent{Symbol: symbol, Side: domain.OrderSideBuy, Quantity: qty, EstimatedPrice: price}, nil
}

// SizeSell produces a sell intent for up to quantity base units. When
// forceClose is set, dust-level remainders are still attempted as long as the
// exchange can accept them at all.
func (s *Sizer) SizeSell(ctx context.Context, symbol string, quantity float64, forceClose bool) (domain.OrderIntent, error) {
	m, err := s.catalog.Get(ctx, symbol)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	ticker, err := s.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.OrderIntent{}, fmt.Errorf("sizing: ticker %s: %w", symbol, err)
	}
	price := ticker.PriceFor(domain.OrderSideSell)
	if price <= 0 {
		return domain.OrderIntent{}, fmt.Errorf("sizing: %s: no usable price: %w", symbol, domain.ErrMetadataUnavailable)
	}

	free, err := s.balances.Free(ctx, m.Base)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	available := free - s.params.ReserveBase
	if forceClose {
		// A forced close may dip into the reserve to flatten completely.
		available = free
	}

	qty := quantity
	if qty <= 0 || qty > available {
		qty = available
	}
	qty = floorToStep(qty, m.AmountStep)

	if qty <= 0 {
		return domain.OrderIntent{}, &Error{Kind: KindDust, Symbol: symbol, Detail: "nothing to sell"}
	}

	minAmount := market.EffectiveMinAmount(m, price, s.params.MinAmountCeiling)
	belowMin := qty < minAmount || (m.MinCost > 0 && qty*price < m.MinCost)
	if belowMin && !forceClose {
		return domain.OrderIntent{}, &Error{
			Kind:        KindDust,
			Symbol:      symbol,
			MinNotional: s.minNotionalFor(m, price),
			Detail:      fmt.Sprintf("%.8f %s below exchange minimum", qty, m.Base),
		}
	}

	s.logger.Debug("sized sell",
		slog.String("symbol", symbol),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Bool("force_close", forceClose))

	return domain.OrderIntent{Symbol: symbol, Side: domain.OrderSideSell, Quantity: qty, EstimatedPrice: price}, nil
}

// snapToStep floors qty to a step multiple and bumps it back up by whole
// steps while flooring pushed it below either minimum.
func (s *Sizer) snapToStep(m domain.Market, price, minAmount, qty float64) float64 {
	if m.AmountStep <= 0 {
		return qty
	}
	qty = floorToStep(qty, m.AmountStep)
	for qty < minAmount || (m.MinCost > 0 && qty*price < m.MinCost) {
		qty += m.AmountStep
	}
	return qty
}

// minNotionalFor returns the smallest notional that can clear every floor for
// this market at the given price.
func (s *Sizer) minNotionalFor(m domain.Market, price float64) float64 {
	floor := s.params.MinNotional
	if m.MinCost > floor {
		floor = m.MinCost
	}
	minAmount := market.EffectiveMinAmount(m, price, s.params.MinAmountCeiling)
	if n := minAmount * price; n > floor {
		floor = n
	}
	return floor
}

func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := math.Floor(qty/step + stepEpsilon)
	return steps * step
}
