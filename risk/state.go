package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// resetWindow is the rolling window after which daily counters zero.
const resetWindow = 24 * time.Hour

// AccountState is the per-account risk ledger the gate maintains. One exists
// per account/mode pair (paper and live never share a kill switch).
//
// Daily counters reset exactly once per rolling 24h window. The kill switch
// is latched: the scheduled reset never clears it, only ResetKillSwitch.
type AccountState struct {
	AccountID         string
	KillSwitchActive  bool
	KillSwitchReason  string
	DailyRealizedPnL  decimal.Decimal
	TradesToday       int
	ConsecutiveLosses int
	LastResetAt       time.Time
}

// maybeReset zeroes the daily counters when the rolling window has elapsed.
// KillSwitchActive is deliberately left alone.
func (s *AccountState) maybeReset(now time.Time) bool {
	if s.LastResetAt.IsZero() {
		s.LastResetAt = now
		return false
	}
	if now.Sub(s.LastResetAt) < resetWindow {
		return false
	}
	s.DailyRealizedPnL = decimal.Zero
	s.TradesToday = 0
	s.ConsecutiveLosses = 0
	s.LastResetAt = now
	return true
}
