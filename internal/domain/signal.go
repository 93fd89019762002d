package domain

import "time"

// SignalKind identifies the action requested by the alerting source.
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalPing SignalKind = "PING"
)

// Signal is a single trade instruction received over the webhook, after
// authentication and symbol normalization.
type Signal struct {
	Kind       SignalKind
	Symbol     string  // canonical BASE/QUOTE
	Quote      float64 // target notional in quote currency; 0 means use config default
	Confidence int     // indicator quality hint; selects the trailing tier
	ForceClose bool    // SELL only: flatten even if the remainder is dust
	ID         string  // source-supplied id or timestamp, used for dedup
	ReceivedAt time.Time
}

// Key returns the cooldown key for this signal, one state machine per
// (side, symbol) pair.
func (s Signal) Key() string {
	return string(s.Kind) + "|" + s.Symbol
}

// DedupKey identifies an exact replay of the same event.
func (s Signal) DedupKey() string {
	return string(s.Kind) + "|" + s.Symbol + "|" + s.ID
}
