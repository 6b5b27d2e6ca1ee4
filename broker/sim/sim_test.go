package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/broker"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/trade"
)

func TestPrice(t *testing.T) {
	t.Parallel()

	s := New(decimal.Zero)
	_, err := s.Price(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, trade.ErrPriceUnavailable)

	s.SetPrice("BTC/USD", decimal.NewFromInt(50000))
	p, err := s.Price(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "50000", p.String())
}

func TestSubmitOrder(t *testing.T) {
	t.Parallel()

	s := New(decimal.NewFromFloat(0.001))
	req := broker.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.Buy,
		Quantity: decimal.NewFromFloat(0.02),
		Type:     market.MarketOrder,
	}

	_, err := s.SubmitOrder(context.Background(), req)
	assert.ErrorIs(t, err, trade.ErrExecutionFailed)
	assert.Empty(t, s.Submissions())

	s.SetPrice("BTC/USD", decimal.NewFromInt(50000))
	fill, err := s.SubmitOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "50000", fill.FilledPrice.String())
	assert.Equal(t, "0.02", fill.FilledQuantity.String())
	assert.Equal(t, "1", fill.Fee.String())
	require.Len(t, s.Submissions(), 1)
	assert.Equal(t, market.Buy, s.Submissions()[0].Side)
}
