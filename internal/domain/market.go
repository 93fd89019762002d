package domain

import "time"

// Market holds the per-symbol trading constraints reported by the exchange.
// A Market value is immutable between catalog refreshes.
type Market struct {
	Symbol        string // canonical BASE/QUOTE
	Base          string
	Quote         string
	MinAmount     float64 // minimum order quantity in base units
	MinCost       float64 // minimum order notional in quote units
	AmountStep    float64 // smallest legal quantity increment
	PriceDecimals int
}

// Ticker is a point-in-time price snapshot for one symbol.
type Ticker struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Time   time.Time
}

// PriceFor returns the sizing price for the given side: ask for buys, bid for
// sells, falling back to the last trade price when the book side is empty.
func (t Ticker) PriceFor(side OrderSide) float64 {
	var p float64
	switch side {
	case OrderSideBuy:
		p = t.Ask
	case OrderSideSell:
		p = t.Bid
	}
	if p <= 0 {
		p = t.Last
	}
	if p <= 0 {
		// Last resort: the other side of the book.
		if side == OrderSideBuy {
			p = t.Bid
		} else {
			p = t.Ask
		}
	}
	return p
}
