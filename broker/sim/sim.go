// Package sim is an in-memory execution client and price feed used by the
// replay harness and tests. Orders fill immediately at the stored price
// with a flat fee rate.
package sim

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/broker"
	"github.com/rustyeddy/tradeguard/trade"
)

type Sim struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	feeRate decimal.Decimal

	fills []broker.OrderRequest
}

// New creates a sim venue charging feeRate of notional per fill
// (0.001 = 10 bps).
func New(feeRate decimal.Decimal) *Sim {
	return &Sim{
		prices:  make(map[string]decimal.Decimal),
		feeRate: feeRate,
	}
}

// SetPrice updates the venue price for a symbol.
func (s *Sim) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Price implements broker.PriceFeed. Unknown symbols report
// trade.ErrPriceUnavailable.
func (s *Sim) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, trade.Errorf(trade.ErrPriceUnavailable, "no sim price for %s", symbol)
	}
	return p, nil
}

// SubmitOrder implements broker.ExecutionClient, filling at the current
// stored price.
func (s *Sim) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[req.Symbol]
	if !ok {
		return broker.Fill{}, trade.Errorf(trade.ErrExecutionFailed, "no sim price for %s", req.Symbol)
	}
	s.fills = append(s.fills, req)

	return broker.Fill{
		FilledPrice:    price,
		FilledQuantity: req.Quantity,
		Fee:            req.Quantity.Mul(price).Mul(s.feeRate),
	}, nil
}

// Submissions returns every order submitted so far, in order.
func (s *Sim) Submissions() []broker.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broker.OrderRequest, len(s.fills))
	copy(out, s.fills)
	return out
}
