package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionSide is the direction held. Shorting is not supported, so the only
// sides are "long" and "none".
type PositionSide string

const (
	PositionSideLong PositionSide = "long"
	PositionSideNone PositionSide = "none"
)

// Position is the unit of trading state: at most one open Position exists per
// symbol at any time. Version is bumped by the store on every mutation so a
// trailing monitor can detect an external close between polls.
type Position struct {
	ID         string
	Symbol     string
	Side       PositionSide
	EntryPrice float64 // volume-weighted when filled in chunks
	Quantity   float64
	Status     PositionStatus
	OpenedAt   time.Time
	ClosedAt   *time.Time
	ExitPrice  *float64
	Version    uint64
}

// Open reports whether the position currently holds inventory.
func (p Position) Open() bool {
	return p.Status == PositionStatusOpen && p.Side == PositionSideLong && p.Quantity > 0
}
