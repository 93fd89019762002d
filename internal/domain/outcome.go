package domain

// SkipReason is a machine-readable explanation for an intentionally skipped
// signal. Skips are policy decisions, not errors: they are reported to the
// alerting source as successful responses.
type SkipReason string

const (
	SkipBuyCooldown       SkipReason = "buy_cooldown"
	SkipSellCooldown      SkipReason = "sell_cooldown"
	SkipDuplicateSignal   SkipReason = "duplicate_signal"
	SkipPositionOpen      SkipReason = "position_open"
	SkipNoPosition        SkipReason = "no_position"
	SkipDust              SkipReason = "dust"
	SkipBelowMinNotional  SkipReason = "below_min_notional"
	SkipInsufficientFunds SkipReason = "insufficient_funds"
	SkipNetworkError      SkipReason = "network_error"
	SkipUnknownSignal     SkipReason = "unknown_signal"
)

// OutcomeStatus tags the three possible results of handling a signal.
type OutcomeStatus string

const (
	OutcomeExecuted OutcomeStatus = "executed"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Outcome is the tagged result of handling one signal. Exactly one of Order
// (executed), Reason (skipped), or Err (failed) is meaningful.
type Outcome struct {
	Status OutcomeStatus
	Order  *OrderResult
	Reason SkipReason
	Detail string // human-readable context for skips
	Err    error
}

// Executed wraps a successful order submission.
func Executed(res OrderResult) Outcome {
	return Outcome{Status: OutcomeExecuted, Order: &res}
}

// Skipped records a policy decision not to trade.
func Skipped(reason SkipReason, detail string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason, Detail: detail}
}

// Failed records an unexpected internal failure.
func Failed(err error) Outcome {
	return Outcome{Status: OutcomeFailed, Err: err}
}
