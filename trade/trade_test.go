package trade

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/tradeguard/market"
)

func validIntent() Intent {
	return Intent{
		AccountID: "acct",
		Symbol:    "BTC/USD",
		Side:      market.Buy,
		Type:      market.MarketOrder,
		Quantity:  decimal.NewFromFloat(0.5),
		Price:     decimal.NewFromInt(50000),
	}
}

func TestIntentValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validIntent().Validate())

	tests := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"missing_account", func(i *Intent) { i.AccountID = "" }},
		{"missing_symbol", func(i *Intent) { i.Symbol = "" }},
		{"bad_side", func(i *Intent) { i.Side = "hold" }},
		{"zero_quantity", func(i *Intent) { i.Quantity = decimal.Zero }},
		{"negative_price", func(i *Intent) { i.Price = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validIntent()
			tt.mutate(&in)
			assert.ErrorIs(t, in.Validate(), ErrValidation)
		})
	}
}

func TestIntentNotional(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "25000", validIntent().Notional().String())
}

func TestFillClosed(t *testing.T) {
	t.Parallel()

	f := Fill{}
	assert.False(t, f.Closed())
	pnl := decimal.NewFromInt(10)
	f.RealizedPnL = &pnl
	assert.True(t, f.Closed())
}

func TestFillValidateRejectsNegativeFee(t *testing.T) {
	t.Parallel()

	f := Fill{
		AccountID: "acct", Symbol: "BTC/USD", Side: market.Sell,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
		Fee: decimal.NewFromInt(-1),
	}
	assert.ErrorIs(t, f.Validate(), ErrValidation)
	f.Fee = decimal.Zero
	assert.NoError(t, f.Validate())
}

func TestErrorfKeepsSentinel(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrRiskRejected, "heat %d too high", 42)
	assert.ErrorIs(t, err, ErrRiskRejected)
	assert.Equal(t, "trade rejected by risk checks: heat 42 too high", err.Error())
}

func TestTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, Transient(Errorf(ErrPriceUnavailable, "feed dark")))
	assert.False(t, Transient(ErrExecutionFailed))
	assert.False(t, Transient(nil))
}
