package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/market"
)

type Type string

const (
	StopLoss     Type = "stop_loss"
	TakeProfit   Type = "take_profit"
	TrailingStop Type = "trailing_stop"
)

// StopKind reports whether the order is loss-limiting. When a gapped price
// would fire both legs of a pair in one scan, the stop kind wins.
func (t Type) StopKind() bool {
	return t == StopLoss || t == TrailingStop
}

func (t Type) Valid() bool {
	return t == StopLoss || t == TakeProfit || t == TrailingStop
}

type Status string

const (
	// Active orders are watched by the price monitor.
	Active Status = "active"
	// Triggered is terminal: the threshold was crossed and execution was
	// requested. Never reverted, even if execution fails.
	Triggered Status = "triggered"
	// Cancelled is terminal: superseded by the sibling leg or cancelled
	// by the caller.
	Cancelled Status = "cancelled"
)

var (
	ErrNotFound  = errors.New("conditional order not found")
	ErrNotActive = errors.New("conditional order is not active")
	// ErrDuplicate rejects a second active order of the same kind on one
	// position.
	ErrDuplicate = errors.New("position already has an active order of this kind")
)

// Order is one conditional order tied to a position. Side is the exit side:
// sell closes a long, buy closes a short.
type Order struct {
	ID          string
	AccountID   string
	PositionKey string
	Symbol      string
	Side        market.Side
	Quantity    decimal.Decimal

	Type         Type
	EntryPrice   decimal.Decimal
	TriggerPrice decimal.Decimal

	// Trailing only. HighWaterMark is the best favorable price seen; the
	// trigger trails it by TrailPct and only ever tightens.
	TrailPct      decimal.Decimal
	HighWaterMark decimal.Decimal

	Status         Status
	CreatedAt      time.Time
	TriggeredAt    time.Time
	TriggeredPrice decimal.Decimal

	// LastError records an execution failure after triggering, for manual
	// reconciliation.
	LastError string
}

// PositionDirection derives the guarded position's direction from the exit
// side.
func (o *Order) PositionDirection() market.Direction {
	if o.Side == market.Sell {
		return market.Long
	}
	return market.Short
}

// crossed evaluates the trigger condition against price. Stops fire when
// price moves against the position through the trigger; take-profits fire
// when it moves in favor. Comparisons are inclusive.
func (o *Order) crossed(price decimal.Decimal) bool {
	long := o.PositionDirection() == market.Long
	if o.Type == TakeProfit {
		if long {
			return price.GreaterThanOrEqual(o.TriggerPrice)
		}
		return price.LessThanOrEqual(o.TriggerPrice)
	}
	if long {
		return price.LessThanOrEqual(o.TriggerPrice)
	}
	return price.GreaterThanOrEqual(o.TriggerPrice)
}
