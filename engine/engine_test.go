package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/broker"
	brokersim "github.com/rustyeddy/tradeguard/broker/sim"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/orders"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/trade"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testPolicy() risk.Policy {
	return risk.Policy{
		MinBalance:           d("100"),
		MaxPositionPct:       d("0.10"),
		MaxPortfolioHeatPct:  d("0.50"),
		MaxSlippagePct:       d("0.01"),
		DailyLossLimit:       d("500"),
		MaxConsecutiveLosses: 3,
	}
}

func testProtection() config.ProtectionConfig {
	return config.ProtectionConfig{
		Enabled:       true,
		StopLossPct:   0.02,
		TakeProfitPct: 0.05,
	}
}

// newTestEngine builds an in-memory engine with one funded account on a sim
// venue with no fees.
func newTestEngine(t *testing.T, protection config.ProtectionConfig) (*Engine, *brokersim.Sim) {
	t.Helper()
	venue := brokersim.New(decimal.Zero)
	eng := New(Options{
		Policy:     testPolicy(),
		Protection: protection,
		Exec:       venue,
	})
	require.NoError(t, eng.AddAccount("acct", d("10000")))
	return eng, venue
}

func buyIntent(qty, price string) trade.Intent {
	return trade.Intent{
		AccountID: "acct",
		Symbol:    "BTC/USD",
		Side:      market.Buy,
		Type:      market.MarketOrder,
		Quantity:  d(qty),
		Price:     d(price),
	}
}

func buyFill(qty, price string) trade.Fill {
	return trade.Fill{
		AccountID: "acct",
		Symbol:    "BTC/USD",
		Side:      market.Buy,
		Quantity:  d(qty),
		Price:     d(price),
		Time:      time.Now().UTC(),
	}
}

func TestAddAccount(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, testProtection())
	assert.ErrorIs(t, eng.AddAccount("acct", d("1")), trade.ErrValidation)
	assert.ErrorIs(t, eng.AddAccount("", d("1")), trade.ErrValidation)
}

func TestEvaluateTrade_DownsizesAgainstLiveEquity(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, config.ProtectionConfig{})
	dec, err := eng.EvaluateTrade(context.Background(), buyIntent("0.5", "50000"))
	require.NoError(t, err)

	require.True(t, dec.Approved)
	assert.True(t, dec.Downsized)
	assert.Equal(t, "0.02", dec.AdjustedQuantity.String())
}

func TestEvaluateTrade_UnknownAccount(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, config.ProtectionConfig{})
	in := buyIntent("0.01", "50000")
	in.AccountID = "nobody"
	_, err := eng.EvaluateTrade(context.Background(), in)
	assert.ErrorIs(t, err, trade.ErrValidation)
}

func TestRecordFill_OpeningFillPlacesProtection(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, testProtection())
	res, err := eng.RecordFill(context.Background(), buyFill("0.02", "50000"))
	require.NoError(t, err)

	assert.Equal(t, market.Long, res.PositionSide)
	assert.Equal(t, "0.02", res.OpenQuantity.String())

	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	require.Len(t, active, 2)

	byType := map[orders.Type]orders.Order{}
	for _, o := range active {
		byType[o.Type] = o
	}
	require.Contains(t, byType, orders.StopLoss)
	require.Contains(t, byType, orders.TakeProfit)
	assert.Equal(t, "49000", byType[orders.StopLoss].TriggerPrice.String())
	assert.Equal(t, "52500", byType[orders.TakeProfit].TriggerPrice.String())
}

func TestRecordFill_TrailingProtection(t *testing.T) {
	t.Parallel()

	prot := testProtection()
	prot.Trailing = true
	prot.TrailingPct = 0.03
	eng, _ := newTestEngine(t, prot)

	_, err := eng.RecordFill(context.Background(), buyFill("0.02", "50000"))
	require.NoError(t, err)

	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	require.Len(t, active, 2)
	var trailing *orders.Order
	for i := range active {
		if active[i].Type == orders.TrailingStop {
			trailing = &active[i]
		}
	}
	require.NotNil(t, trailing)
	assert.Equal(t, "48500", trailing.TriggerPrice.String())
	assert.Equal(t, "50000", trailing.HighWaterMark.String())
}

func TestRecordFill_AddOnKeepsExistingProtection(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, testProtection())
	_, err := eng.RecordFill(context.Background(), buyFill("0.01", "50000"))
	require.NoError(t, err)
	first, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Add-on fill must not replace or loosen the existing orders.
	_, err = eng.RecordFill(context.Background(), buyFill("0.01", "51000"))
	require.NoError(t, err)
	second, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
}

func TestRecordFill_ManualCloseCancelsProtection(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, testProtection())
	_, err := eng.RecordFill(context.Background(), buyFill("0.02", "50000"))
	require.NoError(t, err)

	cls := buyFill("0.02", "51000")
	cls.Side = market.Sell
	res, err := eng.RecordFill(context.Background(), cls)
	require.NoError(t, err)

	require.NotNil(t, res.Fill.RealizedPnL)
	assert.Equal(t, "20", res.Fill.RealizedPnL.String())
	assert.True(t, res.OpenQuantity.IsZero())

	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTriggerPath_StopLossClosesPosition(t *testing.T) {
	t.Parallel()

	eng, venue := newTestEngine(t, testProtection())
	ctx := context.Background()

	_, err := eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD"}, eng.ActiveSymbols())

	// Price crashes through the stop at 49000.
	venue.SetPrice("BTC/USD", d("48500"))
	eng.ProcessTick(ctx, market.Snapshot{"BTC/USD": d("48500")})

	subs := venue.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, market.Sell, subs[0].Side)
	assert.Equal(t, "0.02", subs[0].Quantity.String())

	// Position closed, both protection legs terminal, loss recorded.
	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, eng.ActiveSymbols())

	st, err := eng.AccountRiskStatus("acct")
	require.NoError(t, err)
	assert.Equal(t, "-30", st.DailyRealizedPnL.String())
	assert.Equal(t, 1, st.ConsecutiveLosses)
	// The opening fill counted too.
	assert.Equal(t, 2, st.TradesToday)
}

func TestTriggerPath_RepeatedTickDoesNotResubmit(t *testing.T) {
	t.Parallel()

	eng, venue := newTestEngine(t, testProtection())
	ctx := context.Background()

	_, err := eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)

	venue.SetPrice("BTC/USD", d("48500"))
	snapshot := market.Snapshot{"BTC/USD": d("48500")}
	eng.ProcessTick(ctx, snapshot)
	eng.ProcessTick(ctx, snapshot)

	assert.Len(t, venue.Submissions(), 1)
}

func TestTriggerPath_ConcurrentTicksSubmitOnce(t *testing.T) {
	t.Parallel()

	eng, venue := newTestEngine(t, testProtection())
	ctx := context.Background()

	_, err := eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)
	venue.SetPrice("BTC/USD", d("48500"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.ProcessTick(ctx, market.Snapshot{"BTC/USD": d("48500")})
		}()
	}
	wg.Wait()

	assert.Len(t, venue.Submissions(), 1)
}

// failingExec rejects every submission.
type failingExec struct{}

func (failingExec) SubmitOrder(context.Context, broker.OrderRequest) (broker.Fill, error) {
	return broker.Fill{}, trade.Errorf(trade.ErrExecutionFailed, "venue down")
}

func TestTriggerPath_ExecutionFailureLeavesOrderTriggered(t *testing.T) {
	t.Parallel()

	eng := New(Options{
		Policy:     testPolicy(),
		Protection: testProtection(),
		Exec:       failingExec{},
	})
	ctx := context.Background()
	require.NoError(t, eng.AddAccount("acct", d("10000")))

	_, err := eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)

	eng.ProcessTick(ctx, market.Snapshot{"BTC/USD": d("48500")})

	// The stop stays triggered with the failure recorded; the position is
	// still open and needs manual attention.
	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	assert.Empty(t, active)

	st, err := eng.AccountRiskStatus("acct")
	require.NoError(t, err)
	// No fill happened, so only the opening trade counted.
	assert.Equal(t, 1, st.TradesToday)
	assert.True(t, st.DailyRealizedPnL.IsZero())
}

func TestCreateConditionalOrder_Validation(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, config.ProtectionConfig{})
	ctx := context.Background()

	spec := orders.Spec{
		AccountID:    "acct",
		Symbol:       "BTC/USD",
		PositionSide: market.Long,
		Quantity:     d("0.02"),
		EntryPrice:   d("50000"),
		Type:         orders.StopLoss,
		Percent:      d("0.02"),
	}

	// No open position yet.
	_, err := eng.CreateConditionalOrder(ctx, spec)
	assert.ErrorIs(t, err, trade.ErrValidation)

	_, err = eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)

	// Quantity above the open position.
	over := spec
	over.Quantity = d("0.05")
	_, err = eng.CreateConditionalOrder(ctx, over)
	assert.ErrorIs(t, err, trade.ErrValidation)

	// Wrong side.
	wrong := spec
	wrong.PositionSide = market.Short
	_, err = eng.CreateConditionalOrder(ctx, wrong)
	assert.ErrorIs(t, err, trade.ErrValidation)

	o, err := eng.CreateConditionalOrder(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, orders.Active, o.Status)
}

func TestCancelConditionalOrder(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, testProtection())
	ctx := context.Background()

	_, err := eng.RecordFill(ctx, buyFill("0.02", "50000"))
	require.NoError(t, err)
	active, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	require.Len(t, active, 2)

	require.NoError(t, eng.CancelConditionalOrder(ctx, "acct", active[0].ID))
	remaining, err := eng.ListActiveOrders("acct")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	assert.ErrorIs(t, eng.CancelConditionalOrder(ctx, "acct", "missing"), orders.ErrNotFound)
}

func TestKillSwitchLifecycle(t *testing.T) {
	t.Parallel()

	eng, venue := newTestEngine(t, config.ProtectionConfig{})
	ctx := context.Background()
	venue.SetPrice("BTC/USD", d("50000"))

	// Three losing round trips latch the switch.
	for i := 0; i < 3; i++ {
		_, err := eng.RecordFill(ctx, buyFill("0.01", "50000"))
		require.NoError(t, err)
		cls := buyFill("0.01", "49000")
		cls.Side = market.Sell
		_, err = eng.RecordFill(ctx, cls)
		require.NoError(t, err)
	}

	st, err := eng.AccountRiskStatus("acct")
	require.NoError(t, err)
	require.True(t, st.KillSwitchActive)

	dec, err := eng.EvaluateTrade(ctx, buyIntent("0.01", "50000"))
	require.NoError(t, err)
	require.False(t, dec.Approved)
	assert.Equal(t, risk.CodeKillSwitch, dec.Rejection.Code)

	// Three losses still stand in this window, so a plain reset is refused.
	ok, err := eng.ResetKillSwitch("acct", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eng.ResetKillSwitch("acct", true)
	require.NoError(t, err)
	assert.True(t, ok)

	dec, err = eng.EvaluateTrade(ctx, buyIntent("0.01", "50000"))
	require.NoError(t, err)
	assert.True(t, dec.Approved)
}

func TestBalanceTracksCashFlow(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, config.ProtectionConfig{})
	ctx := context.Background()

	// Spend the whole 10,000 in 1,000 chunks; heat allows 5,000 total and
	// the balance floor stops the rest.
	var approved int
	for i := 0; i < 10; i++ {
		dec, err := eng.EvaluateTrade(ctx, buyIntent("0.02", "50000"))
		require.NoError(t, err)
		if dec.Rejection != nil {
			break
		}
		_, err = eng.RecordFill(ctx, buyFill(dec.AdjustedQuantity.String(), "50000"))
		require.NoError(t, err)
		approved++
	}

	assert.Equal(t, 5, approved)
	dec, err := eng.EvaluateTrade(ctx, buyIntent("0.02", "50000"))
	require.NoError(t, err)
	require.NotNil(t, dec.Rejection)
	assert.Equal(t, risk.CodePortfolioHeat, dec.Rejection.Code)
}
