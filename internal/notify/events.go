package notify

import (
	"context"
	"fmt"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Event types used by the trading pipeline. These are the values accepted in
// the notify.events configuration list.
const (
	EventOrderFilled    = "order_filled"
	EventPositionClosed = "position_closed"
	EventError          = "error"
)

// OrderFilled reports a filled (or simulated) order.
func (n *Notifier) OrderFilled(ctx context.Context, res domain.OrderResult) {
	title := fmt.Sprintf("%s %s", titleCase(string(res.Side)), res.Symbol)
	if res.DryRun {
		title += " (dry run)"
	}
	msg := fmt.Sprintf("qty %.8f @ %.2f, cost %.2f\norder %s",
		res.Quantity, res.Price, res.Cost, res.OrderID)
	_ = n.Notify(ctx, EventOrderFilled, title, msg)
}

// PositionClosed reports a flattened position with its realized result.
func (n *Notifier) PositionClosed(ctx context.Context, pos domain.Position, trigger string, res domain.OrderResult) {
	pnlPct := 0.0
	if pos.EntryPrice > 0 && res.Price > 0 {
		pnlPct = (res.Price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	title := fmt.Sprintf("Closed %s (%s)", pos.Symbol, trigger)
	msg := fmt.Sprintf("entry %.2f, exit %.2f, pnl %+.2f%%\nqty %.8f, order %s",
		pos.EntryPrice, res.Price, pnlPct, res.Quantity, res.OrderID)
	_ = n.Notify(ctx, EventPositionClosed, title, msg)
}

// Error reports an operational failure worth waking someone for.
func (n *Notifier) Error(ctx context.Context, where string, err error) {
	_ = n.Notify(ctx, EventError, "Error: "+where, err.Error())
}

// titleCase upper-cases the first ASCII letter of an order side.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]&^0x20) + s[1:]
}
