package risk

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/config"
)

// Policy holds the account risk limits the gate enforces. Percentages are
// fractions of equity (0.10 = 10%).
type Policy struct {
	MinBalance          decimal.Decimal
	MaxPositionPct      decimal.Decimal
	MaxPortfolioHeatPct decimal.Decimal
	MaxSlippagePct      decimal.Decimal

	// Circuit breakers
	DailyLossLimit       decimal.Decimal
	MaxConsecutiveLosses int
}

// PolicyFromConfig converts the float config knobs into decimal limits.
func PolicyFromConfig(cfg config.RiskConfig) Policy {
	return Policy{
		MinBalance:           decimal.NewFromFloat(cfg.MinBalance),
		MaxPositionPct:       decimal.NewFromFloat(cfg.MaxPositionPct),
		MaxPortfolioHeatPct:  decimal.NewFromFloat(cfg.MaxPortfolioHeatPct),
		MaxSlippagePct:       decimal.NewFromFloat(cfg.MaxSlippagePct),
		DailyLossLimit:       decimal.NewFromFloat(cfg.DailyLossLimit),
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
	}
}

// Violation is a single failed check.
type Violation struct {
	Code string
	Msg  string
}

// Rejection codes, stable across the API surface.
const (
	CodeKillSwitch    = "kill_switch"
	CodeBalanceFloor  = "balance_floor"
	CodePositionSize  = "position_size"
	CodePortfolioHeat = "portfolio_heat"
	CodeSlippage      = "slippage"
)

// Decision is the gate's verdict on a proposed trade. When Approved,
// AdjustedQuantity is the quantity to submit; it equals the requested
// quantity unless the position-size check down-sized it.
type Decision struct {
	Approved         bool
	AdjustedQuantity decimal.Decimal
	Downsized        bool
	Rejection        *Violation
}

func reject(code, msg string) Decision {
	return Decision{Rejection: &Violation{Code: code, Msg: msg}}
}
