package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderIntent is a fully sized, exchange-legal order produced by the sizer.
// It is never partially constructed: sizing either yields a valid intent or
// a SizingError.
type OrderIntent struct {
	Symbol         string
	Side           OrderSide
	Quantity       float64 // base quantity, an exact multiple of the amount step
	EstimatedPrice float64 // price used for sizing; buys use ask, sells use bid
}

// Notional returns the estimated cost of the intent in quote currency.
func (i OrderIntent) Notional() float64 {
	return i.Quantity * i.EstimatedPrice
}

// OrderResult describes a submitted (or, in dry-run mode, simulated) order.
type OrderResult struct {
	OrderID    string
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Price      float64 // fill price; estimated price for dry runs
	Cost       float64 // quantity * price
	DryRun     bool
	ExecutedAt time.Time
}
