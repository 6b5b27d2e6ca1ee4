// Package trade defines the records that cross component boundaries: the
// intent a caller proposes, and the immutable fill written after execution.
package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/market"
)

// Intent is a proposed trade, evaluated by the safety gate before any order
// leaves the process. Price is the price the caller expects to execute at.
// ReferencePrice, when set on a market order, is the quote the caller sized
// the trade against and is used for the slippage check.
type Intent struct {
	AccountID string
	Symbol    string
	Side      market.Side
	Type      market.OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal

	ReferencePrice decimal.Decimal // zero when no quote was taken
}

// Notional is quantity * price in quote currency.
func (i Intent) Notional() decimal.Decimal {
	return i.Quantity.Mul(i.Price)
}

// Validate rejects malformed intents before any state is touched.
func (i Intent) Validate() error {
	switch {
	case i.AccountID == "":
		return Errorf(ErrValidation, "account id required")
	case i.Symbol == "":
		return Errorf(ErrValidation, "symbol required")
	case !i.Side.Valid():
		return Errorf(ErrValidation, "side %q invalid", i.Side)
	case !i.Quantity.IsPositive():
		return Errorf(ErrValidation, "quantity must be positive, got %s", i.Quantity)
	case !i.Price.IsPositive():
		return Errorf(ErrValidation, "price must be positive, got %s", i.Price)
	}
	return nil
}

// Fill is one executed fill. Immutable once written. RealizedPnL is nil for
// an opening fill and set for a closing fill from FIFO-matched lots.
type Fill struct {
	ID        string
	AccountID string
	Symbol    string
	Side      market.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Time      time.Time

	RealizedPnL    *decimal.Decimal
	RealizedPnLPct *decimal.Decimal
}

// Closed reports whether this fill closed position quantity.
func (f Fill) Closed() bool { return f.RealizedPnL != nil }

func (f Fill) Validate() error {
	switch {
	case f.AccountID == "":
		return Errorf(ErrValidation, "account id required")
	case f.Symbol == "":
		return Errorf(ErrValidation, "symbol required")
	case !f.Side.Valid():
		return Errorf(ErrValidation, "side %q invalid", f.Side)
	case !f.Quantity.IsPositive():
		return Errorf(ErrValidation, "quantity must be positive, got %s", f.Quantity)
	case !f.Price.IsPositive():
		return Errorf(ErrValidation, "price must be positive, got %s", f.Price)
	case f.Fee.IsNegative():
		return Errorf(ErrValidation, "fee must not be negative, got %s", f.Fee)
	}
	return nil
}
