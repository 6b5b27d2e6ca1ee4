// Package risk implements the safety gate that validates every proposed
// trade before an order leaves the process. Checks run in a fixed order and
// short-circuit on the first failure; an oversized trade is down-sized
// rather than rejected. The gate also tracks per-account outcome state
// (daily P&L, consecutive losses) and latches the kill switch when a
// circuit breaker fires.
//
// A Gate is not safe for concurrent use on its own: the engine serializes
// all calls for one account behind the account scope lock, which is what
// makes kill-switch flips and daily resets atomic relative to concurrent
// outcome recording.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/trade"
)

// quantityPlaces is the precision a down-sized quantity is truncated to.
// Truncation (never rounding up) keeps the adjusted notional at or under
// the limit, boundary inclusive.
const quantityPlaces = 8

// Input carries the account snapshot the gate evaluates an intent against.
// Equity and OpenHeat come from the position ledger; the gate itself holds
// no position state.
type Input struct {
	Intent  trade.Intent
	Equity  decimal.Decimal
	Balance decimal.Decimal

	// OpenHeat is the at-risk notional already committed to open
	// positions, valued at entry cost.
	OpenHeat decimal.Decimal
}

// Gate evaluates trades against a Policy and records their outcomes.
type Gate struct {
	policy Policy
	state  AccountState
	logger *zap.Logger
	now    func() time.Time
}

func NewGate(accountID string, policy Policy, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		policy: policy,
		state:  AccountState{AccountID: accountID},
		logger: logger,
		now:    time.Now,
	}
}

// Restore replaces the gate's state, used when rebuilding from the store.
func (g *Gate) Restore(state AccountState) {
	g.state = state
}

// State returns a copy of the current account risk state, after applying
// any pending daily reset.
func (g *Gate) State() AccountState {
	g.state.maybeReset(g.now())
	return g.state
}

// Evaluate runs the safety checks in order, short-circuiting on the first
// failure. It has no side effects beyond the scheduled daily reset; outcome
// state only changes through RecordOutcome.
func (g *Gate) Evaluate(in Input) Decision {
	g.state.maybeReset(g.now())
	intent := in.Intent

	// 1. Kill switch blocks everything until explicitly cleared.
	if g.state.KillSwitchActive {
		return reject(CodeKillSwitch,
			fmt.Sprintf("kill switch active: %s", g.state.KillSwitchReason))
	}

	// 2. Balance floor. Buys consume cash; projected balance after the
	// trade must stay above the floor. Sells raise cash and are exempt, so
	// a depleted account can still exit positions.
	if intent.Side == market.Buy {
		projected := in.Balance.Sub(intent.Notional())
		if projected.LessThan(g.policy.MinBalance) {
			return reject(CodeBalanceFloor,
				fmt.Sprintf("projected balance %s below floor %s",
					projected.StringFixed(2), g.policy.MinBalance.StringFixed(2)))
		}
	}

	// 3. Position size: down-size, don't reject.
	quantity := intent.Quantity
	downsized := false
	maxNotional := in.Equity.Mul(g.policy.MaxPositionPct)
	if intent.Notional().GreaterThan(maxNotional) {
		quantity = maxNotional.Div(intent.Price).Truncate(quantityPlaces)
		downsized = true
		if !quantity.IsPositive() {
			return reject(CodePositionSize,
				fmt.Sprintf("max position %s notional leaves no tradable quantity at %s",
					maxNotional.StringFixed(2), intent.Price))
		}
		g.logger.Info("trade down-sized to position limit",
			zap.String("account", g.state.AccountID),
			zap.String("symbol", intent.Symbol),
			zap.String("requested", intent.Quantity.String()),
			zap.String("adjusted", quantity.String()),
		)
	}

	// 4. Portfolio heat, including this trade.
	notional := quantity.Mul(intent.Price)
	maxHeat := in.Equity.Mul(g.policy.MaxPortfolioHeatPct)
	if in.OpenHeat.Add(notional).GreaterThan(maxHeat) {
		return reject(CodePortfolioHeat,
			fmt.Sprintf("portfolio heat %s would exceed limit %s",
				in.OpenHeat.Add(notional).StringFixed(2), maxHeat.StringFixed(2)))
	}

	// 5. Slippage, only for market orders taken against a quote.
	if intent.Type == market.MarketOrder && intent.ReferencePrice.IsPositive() {
		deviation := intent.Price.Sub(intent.ReferencePrice).Abs().Div(intent.ReferencePrice)
		if deviation.GreaterThan(g.policy.MaxSlippagePct) {
			return reject(CodeSlippage,
				fmt.Sprintf("price %s deviates %s%% from quote %s",
					intent.Price, deviation.Mul(market.Hundred).StringFixed(2), intent.ReferencePrice))
		}
	}

	return Decision{Approved: true, AdjustedQuantity: quantity, Downsized: downsized}
}

// RecordOutcome updates the account state after a fill's outcome is known:
// daily realized P&L, the consecutive-loss streak (a winning close resets
// it, a losing one extends it), and the kill-switch predicate. Returns the
// state after the update.
func (g *Gate) RecordOutcome(f trade.Fill) AccountState {
	g.state.maybeReset(g.now())
	g.state.TradesToday++

	if f.RealizedPnL != nil {
		pnl := *f.RealizedPnL
		g.state.DailyRealizedPnL = g.state.DailyRealizedPnL.Add(pnl)
		switch {
		case pnl.IsNegative():
			g.state.ConsecutiveLosses++
		case pnl.IsPositive():
			g.state.ConsecutiveLosses = 0
		}
	}

	g.latchKillSwitch()
	return g.state
}

// latchKillSwitch flips the switch the instant a breaker threshold is
// crossed. Once active it stays active until an explicit reset.
func (g *Gate) latchKillSwitch() {
	if g.state.KillSwitchActive {
		return
	}
	switch {
	case g.state.DailyRealizedPnL.LessThanOrEqual(g.policy.DailyLossLimit.Neg()):
		g.state.KillSwitchActive = true
		g.state.KillSwitchReason = fmt.Sprintf("daily loss %s reached limit %s",
			g.state.DailyRealizedPnL.StringFixed(2), g.policy.DailyLossLimit.StringFixed(2))
	case g.state.ConsecutiveLosses >= g.policy.MaxConsecutiveLosses:
		g.state.KillSwitchActive = true
		g.state.KillSwitchReason = fmt.Sprintf("%d consecutive losses reached limit %d",
			g.state.ConsecutiveLosses, g.policy.MaxConsecutiveLosses)
	default:
		return
	}
	g.logger.Warn("kill switch activated",
		zap.String("account", g.state.AccountID),
		zap.String("reason", g.state.KillSwitchReason),
	)
}

// ResetKillSwitch clears the switch. Without adminOverride the clear is
// refused while a breaker threshold is still breached in the current
// window; with it the switch clears unconditionally.
func (g *Gate) ResetKillSwitch(adminOverride bool) bool {
	g.state.maybeReset(g.now())
	if !g.state.KillSwitchActive {
		return true
	}
	if !adminOverride {
		if g.state.DailyRealizedPnL.LessThanOrEqual(g.policy.DailyLossLimit.Neg()) ||
			g.state.ConsecutiveLosses >= g.policy.MaxConsecutiveLosses {
			return false
		}
	}
	g.state.KillSwitchActive = false
	g.state.KillSwitchReason = ""
	g.logger.Info("kill switch reset",
		zap.String("account", g.state.AccountID),
		zap.Bool("admin_override", adminOverride),
	)
	return true
}
