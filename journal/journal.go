// Package journal is the append-only history of what the engine did:
// fills with their realized P&L, risk-state snapshots after each outcome,
// and execution failures awaiting manual reconciliation. The store holds
// current state; the journal holds the record.
package journal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/market"
)

type TradeRecord struct {
	FillID    string
	AccountID string
	Symbol    string
	Side      market.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Time      time.Time

	RealizedPnL *decimal.Decimal

	// Source is "manual" for caller-submitted fills or the conditional
	// order type that produced a trigger close.
	Source string
}

type RiskSnapshot struct {
	Time              time.Time
	AccountID         string
	DailyRealizedPnL  decimal.Decimal
	TradesToday       int
	ConsecutiveLosses int
	KillSwitchActive  bool
}

// FailureRecord is an execution failure after a trigger. The order stays
// triggered; this record is the reconciliation trail.
type FailureRecord struct {
	Time      time.Time
	AccountID string
	OrderID   string
	Symbol    string
	Detail    string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordRisk(RiskSnapshot) error
	RecordFailure(FailureRecord) error
	Close() error
}

// Nop discards everything, for tests and the replay dry-run path.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordRisk(RiskSnapshot) error     { return nil }
func (Nop) RecordFailure(FailureRecord) error { return nil }
func (Nop) Close() error                      { return nil }
