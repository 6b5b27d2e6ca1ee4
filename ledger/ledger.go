// Package ledger is the position ledger: FIFO cost-basis accounting over
// open lots, producing realized P&L on closing fills and unrealized P&L on
// demand. It owns Position state; the safety gate consults it for equity
// and portfolio heat.
//
// Like the gate, a Ledger relies on the engine's per-account lock for
// serialization; it does no locking of its own.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/trade"
)

// Position is the open FIFO lot queue for one (account, symbol).
type Position struct {
	AccountID string
	Symbol    string
	Side      market.Direction

	queue lotQueue
}

// Key identifies a position within an account's ledger.
func Key(accountID, symbol string) string {
	return accountID + "|" + symbol
}

func (p *Position) Key() string {
	return Key(p.AccountID, p.Symbol)
}

// OpenQuantity is the summed quantity of all open lots. Never negative.
func (p *Position) OpenQuantity() decimal.Decimal {
	return p.queue.totalQuantity()
}

// Lots returns a copy of the open lots, oldest first.
func (p *Position) Lots() []Lot {
	open := p.queue.open()
	out := make([]Lot, len(open))
	copy(out, open)
	return out
}

// EntryNotional is the fee-inclusive cost of all open lots. The gate uses
// it as the position's contribution to portfolio heat.
func (p *Position) EntryNotional() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.queue.open() {
		total = total.Add(l.Quantity.Mul(l.UnitCost))
	}
	return total
}

// AvgEntryPrice is EntryNotional divided by OpenQuantity. Zero when flat.
func (p *Position) AvgEntryPrice() decimal.Decimal {
	qty := p.OpenQuantity()
	if qty.IsZero() {
		return decimal.Zero
	}
	return p.EntryNotional().Div(qty)
}

// UnrealizedPnL values the open lots against price. Recomputed on demand,
// never stored.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.queue.open() {
		diff := price.Sub(l.UnitCost)
		if p.Side == market.Short {
			diff = diff.Neg()
		}
		total = total.Add(l.Quantity.Mul(diff))
	}
	return total
}

// Ledger tracks positions for all accounts and applies fills to them.
type Ledger struct {
	positions map[string]*Position
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		positions: make(map[string]*Position),
		logger:    logger,
	}
}

// Position looks up the open position for (account, symbol).
func (l *Ledger) Position(accountID, symbol string) (*Position, bool) {
	p, ok := l.positions[Key(accountID, symbol)]
	return p, ok
}

// Positions returns all open positions for an account.
func (l *Ledger) Positions(accountID string) []*Position {
	var out []*Position
	for _, p := range l.positions {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out
}

// OpenHeat sums the entry notional across an account's open positions.
func (l *Ledger) OpenHeat(accountID string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		if p.AccountID == accountID {
			total = total.Add(p.EntryNotional())
		}
	}
	return total
}

// ApplyFill records a fill against the ledger. A fill in the position's
// opening direction pushes a lot; a fill in the opposite direction consumes
// lots front-first and populates the fill's realized P&L fields. A closing
// quantity exceeding the open quantity is rejected with no effect: sign
// flips must be an explicit close then open.
func (l *Ledger) ApplyFill(f *trade.Fill) (*Position, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	key := Key(f.AccountID, f.Symbol)
	pos, ok := l.positions[key]
	if !ok {
		pos = &Position{
			AccountID: f.AccountID,
			Symbol:    f.Symbol,
			Side:      market.DirectionFor(f.Side),
		}
		l.positions[key] = pos
	}

	if f.Side == pos.Side.OpeningSide() {
		l.open(pos, f)
		return pos, nil
	}
	if err := l.close(pos, f); err != nil {
		return nil, err
	}
	if pos.OpenQuantity().IsZero() {
		delete(l.positions, key)
	}
	return pos, nil
}

func (l *Ledger) open(pos *Position, f *trade.Fill) {
	// Fold the entry fee into the unit cost. For shorts the fee reduces
	// the effective entry proceeds instead.
	feePerUnit := f.Fee.Div(f.Quantity)
	unitCost := f.Price.Add(feePerUnit)
	if pos.Side == market.Short {
		unitCost = f.Price.Sub(feePerUnit)
	}
	pos.queue.push(Lot{
		Quantity: f.Quantity,
		UnitCost: unitCost,
		OpenedAt: f.Time,
	})

	l.logger.Debug("lot opened",
		zap.String("position", pos.Key()),
		zap.String("quantity", f.Quantity.String()),
		zap.String("unit_cost", unitCost.String()),
	)
}

func (l *Ledger) close(pos *Position, f *trade.Fill) error {
	open := pos.OpenQuantity()
	if f.Quantity.GreaterThan(open) {
		return trade.Errorf(trade.ErrInsufficientPosition,
			"close %s %s exceeds open %s", f.Quantity, f.Symbol, open)
	}

	basis := pos.queue.consume(f.Quantity)
	proceeds := f.Quantity.Mul(f.Price)

	// Long: sold above cost is profit. Short: bought back below the entry
	// proceeds is profit.
	var pnl decimal.Decimal
	if pos.Side == market.Long {
		pnl = proceeds.Sub(basis).Sub(f.Fee)
	} else {
		pnl = basis.Sub(proceeds).Sub(f.Fee)
	}

	f.RealizedPnL = &pnl
	if basis.IsPositive() {
		pct := pnl.Div(basis).Mul(market.Hundred)
		f.RealizedPnLPct = &pct
	}

	l.logger.Info("position quantity closed",
		zap.String("position", pos.Key()),
		zap.String("quantity", f.Quantity.String()),
		zap.String("realized_pnl", pnl.StringFixed(2)),
	)
	return nil
}

// Restore replaces a position wholesale, used when rebuilding from the
// store. Lots must be supplied oldest first.
func (l *Ledger) Restore(accountID, symbol string, side market.Direction, lots []Lot) error {
	for _, lot := range lots {
		if !lot.Quantity.IsPositive() {
			return fmt.Errorf("ledger restore %s/%s: non-positive lot quantity %s",
				accountID, symbol, lot.Quantity)
		}
	}
	pos := &Position{AccountID: accountID, Symbol: symbol, Side: side}
	for _, lot := range lots {
		pos.queue.push(lot)
	}
	l.positions[Key(accountID, symbol)] = pos
	return nil
}
