// Package market holds the shared domain vocabulary: trade sides, order
// types, and price ticks. Everything money-valued is a shopspring decimal;
// float64 price math drifts and this engine signs off on real funds.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Direction is the side of an open position. A position opened with a buy
// is long; one opened with a sell is short.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func DirectionFor(s Side) Direction {
	if s == Buy {
		return Long
	}
	return Short
}

// OpeningSide returns the fill side that grows a position in direction d.
func (d Direction) OpeningSide() Side {
	if d == Long {
		return Buy
	}
	return Sell
}

type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
)

// Tick is a single observed price for a symbol.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// Snapshot maps symbols to the price used for one monitor scan. A scan
// evaluates every order against the same snapshot so a batch sees a
// consistent view.
type Snapshot map[string]decimal.Decimal

var Hundred = decimal.NewFromInt(100)
