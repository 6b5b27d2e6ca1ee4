// Package broker declares the external capabilities the engine consumes.
// Exchange and DEX adapters implement these elsewhere; the engine only
// decides whether and when to call them.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/market"
)

// OrderRequest is a submission to the external execution capability.
type OrderRequest struct {
	Symbol   string
	Side     market.Side
	Quantity decimal.Decimal
	Type     market.OrderType
}

// Fill is the execution result. FilledQuantity may be below the requested
// quantity on venues that allow partial fills.
type Fill struct {
	FilledPrice    decimal.Decimal
	FilledQuantity decimal.Decimal
	Fee            decimal.Decimal
}

// ExecutionClient submits orders. Implementations must be safe to call
// exactly once per trigger; the engine never retries a submission on its
// own.
type ExecutionClient interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
}

// PriceFeed returns the current price for a symbol. Transient
// unavailability should be reported as an error wrapping
// trade.ErrPriceUnavailable so the monitor skips the symbol for the tick
// instead of treating it as a fault.
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
