// Package engine composes the safety gate, position ledger, and conditional
// order book behind the operations the API layer consumes. Every account
// gets a scope whose lock serializes the trade-submission path and the
// monitor's trigger path, so a manual trade and a trigger-driven close can
// never race on the same FIFO queue.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/broker"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/id"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/ledger"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/orders"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/store"
	"github.com/rustyeddy/tradeguard/trade"
)

// Options wires the engine's collaborators. Store may be nil for a purely
// in-memory engine (tests, replay dry runs); Journal nil means discard.
type Options struct {
	Policy     risk.Policy
	Protection config.ProtectionConfig
	Exec       broker.ExecutionClient
	Store      *store.Store
	Journal    journal.Journal
	Logger     *zap.Logger
}

type Engine struct {
	policy     risk.Policy
	protection config.ProtectionConfig
	exec       broker.ExecutionClient
	store      *store.Store
	jrnl       journal.Journal
	logger     *zap.Logger

	mu     sync.Mutex
	scopes map[string]*scope
}

// scope is the unit of serialization: everything owned by one account.
type scope struct {
	mu sync.Mutex

	accountID string
	gate      *risk.Gate
	ledger    *ledger.Ledger
	book      *orders.Book
	balance   decimal.Decimal
}

// equityLocked values the account as cash plus open positions at entry
// cost. Mark-to-market equity would need a price snapshot the gate does not
// require.
func (sc *scope) equityLocked() decimal.Decimal {
	return sc.balance.Add(sc.ledger.OpenHeat(sc.accountID))
}

func New(opts Options) *Engine {
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		policy:     opts.Policy,
		protection: opts.Protection,
		exec:       opts.Exec,
		store:      opts.Store,
		jrnl:       opts.Journal,
		logger:     opts.Logger,
		scopes:     make(map[string]*scope),
	}
}

// AddAccount registers an account with its starting cash balance and, when
// a store is attached, rebuilds the account's risk state, open lots, and
// conditional orders from it.
func (e *Engine) AddAccount(accountID string, balance decimal.Decimal) error {
	if accountID == "" {
		return trade.Errorf(trade.ErrValidation, "account id required")
	}

	sc := &scope{
		accountID: accountID,
		gate:      risk.NewGate(accountID, e.policy, e.logger),
		ledger:    ledger.New(e.logger),
		book:      orders.NewBook(e.logger),
		balance:   balance,
	}

	if e.store != nil {
		if err := e.rebuild(sc); err != nil {
			return fmt.Errorf("rebuild account %s: %w", accountID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.scopes[accountID]; exists {
		return trade.Errorf(trade.ErrValidation, "account %s already registered", accountID)
	}
	e.scopes[accountID] = sc

	e.logger.Info("account registered",
		zap.String("account", accountID),
		zap.String("balance", balance.String()),
	)
	return nil
}

func (e *Engine) rebuild(sc *scope) error {
	state, ok, err := e.store.LoadRiskState(sc.accountID)
	if err != nil {
		return err
	}
	if ok {
		sc.gate.Restore(state)
	}

	positions, err := e.store.LoadPositions(sc.accountID)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if err := sc.ledger.Restore(p.AccountID, p.Symbol, p.Side, p.Lots); err != nil {
			return err
		}
	}

	persisted, err := e.store.LoadOrders(sc.accountID)
	if err != nil {
		return err
	}
	sc.book.Restore(persisted)

	e.logger.Info("account state rebuilt from store",
		zap.String("account", sc.accountID),
		zap.Int("positions", len(positions)),
		zap.Int("orders", len(persisted)),
	)
	return nil
}

func (e *Engine) scope(accountID string) (*scope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sc, ok := e.scopes[accountID]
	if !ok {
		return nil, trade.Errorf(trade.ErrValidation, "unknown account %q", accountID)
	}
	return sc, nil
}

func (e *Engine) allScopes() []*scope {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*scope, 0, len(e.scopes))
	for _, sc := range e.scopes {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].accountID < out[j].accountID })
	return out
}

// EvaluateTrade runs the safety gate over a proposed trade. The decision
// carries the verdict; an error means the input never reached the checks.
func (e *Engine) EvaluateTrade(ctx context.Context, intent trade.Intent) (risk.Decision, error) {
	if err := intent.Validate(); err != nil {
		return risk.Decision{}, err
	}
	sc, err := e.scope(intent.AccountID)
	if err != nil {
		return risk.Decision{}, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	decision := sc.gate.Evaluate(risk.Input{
		Intent:   intent,
		Equity:   sc.equityLocked(),
		Balance:  sc.balance,
		OpenHeat: sc.ledger.OpenHeat(intent.AccountID),
	})

	switch {
	case !decision.Approved:
		metrics.Decisions.WithLabelValues("rejected").Inc()
		metrics.Rejections.WithLabelValues(decision.Rejection.Code).Inc()
	case decision.Downsized:
		metrics.Decisions.WithLabelValues("downsized").Inc()
	default:
		metrics.Decisions.WithLabelValues("approved").Inc()
	}
	return decision, nil
}

// FillResult reports the position after a fill was applied.
type FillResult struct {
	Fill          trade.Fill
	PositionSide  market.Direction
	OpenQuantity  decimal.Decimal
	AvgEntryPrice decimal.Decimal
}

// RecordFill applies an executed fill to the ledger and risk state. For an
// opening fill with auto-protection configured, stop-loss and take-profit
// orders are created for the position.
func (e *Engine) RecordFill(ctx context.Context, fill trade.Fill) (FillResult, error) {
	if err := fill.Validate(); err != nil {
		return FillResult{}, err
	}
	sc, err := e.scope(fill.AccountID)
	if err != nil {
		return FillResult{}, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	pos, err := e.applyFillLocked(sc, &fill, "manual")
	if err != nil {
		return FillResult{}, err
	}

	if !fill.Closed() && e.protection.Enabled {
		e.autoProtectLocked(sc, pos)
	}

	return FillResult{
		Fill:          fill,
		PositionSide:  pos.Side,
		OpenQuantity:  pos.OpenQuantity(),
		AvgEntryPrice: pos.AvgEntryPrice(),
	}, nil
}

// applyFillLocked is the single write path for fills, shared by RecordFill
// and the trigger path. Caller holds the scope lock.
func (e *Engine) applyFillLocked(sc *scope, fill *trade.Fill, source string) (*ledger.Position, error) {
	if fill.ID == "" {
		fill.ID = id.New()
	}
	if fill.Time.IsZero() {
		fill.Time = time.Now().UTC()
	}

	pos, err := sc.ledger.ApplyFill(fill)
	if err != nil {
		return nil, err
	}

	// Cash flow: buys consume balance, sells release it.
	notional := fill.Quantity.Mul(fill.Price)
	if fill.Side == market.Buy {
		sc.balance = sc.balance.Sub(notional).Sub(fill.Fee)
	} else {
		sc.balance = sc.balance.Add(notional).Sub(fill.Fee)
	}

	state := sc.gate.RecordOutcome(*fill)
	metrics.DailyRealizedPnL.WithLabelValues(sc.accountID).Set(inexact(state.DailyRealizedPnL))
	if state.KillSwitchActive {
		metrics.KillSwitch.WithLabelValues(sc.accountID).Set(1)
	} else {
		metrics.KillSwitch.WithLabelValues(sc.accountID).Set(0)
	}

	// A position closed by other means orphans its protection orders.
	if pos.OpenQuantity().IsZero() {
		for _, o := range sc.book.CancelForPosition(pos.Key()) {
			e.persistOrder(o)
		}
	}

	e.persistFill(sc, pos, *fill, state)
	e.journalFill(*fill, state, source)
	return pos, nil
}

// autoProtectLocked places the configured protection around a freshly
// opened position. An existing active order of the same kind is left
// untouched: a ratcheted trailing stop must never be loosened by an add-on
// fill.
func (e *Engine) autoProtectLocked(sc *scope, pos *ledger.Position) {
	stopType := orders.StopLoss
	stopPct := e.protection.StopLossPct
	if e.protection.Trailing {
		stopType = orders.TrailingStop
		stopPct = e.protection.TrailingPct
	}

	specs := []orders.Spec{
		{
			AccountID:    sc.accountID,
			Symbol:       pos.Symbol,
			PositionSide: pos.Side,
			Quantity:     pos.OpenQuantity(),
			EntryPrice:   pos.AvgEntryPrice(),
			Type:         stopType,
			Percent:      decimal.NewFromFloat(stopPct),
		},
		{
			AccountID:    sc.accountID,
			Symbol:       pos.Symbol,
			PositionSide: pos.Side,
			Quantity:     pos.OpenQuantity(),
			EntryPrice:   pos.AvgEntryPrice(),
			Type:         orders.TakeProfit,
			Percent:      decimal.NewFromFloat(e.protection.TakeProfitPct),
		},
	}

	for _, spec := range specs {
		o, err := sc.book.Create(spec)
		if err != nil {
			// Duplicate just means the position is already protected.
			continue
		}
		e.persistOrder(o)
	}
}

// CreateConditionalOrder registers a caller-specified conditional order
// against an open position.
func (e *Engine) CreateConditionalOrder(ctx context.Context, spec orders.Spec) (orders.Order, error) {
	sc, err := e.scope(spec.AccountID)
	if err != nil {
		return orders.Order{}, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	pos, ok := sc.ledger.Position(spec.AccountID, spec.Symbol)
	if !ok {
		return orders.Order{}, trade.Errorf(trade.ErrValidation,
			"no open position for %s/%s", spec.AccountID, spec.Symbol)
	}
	if spec.Quantity.GreaterThan(pos.OpenQuantity()) {
		return orders.Order{}, trade.Errorf(trade.ErrValidation,
			"order quantity %s exceeds open position %s", spec.Quantity, pos.OpenQuantity())
	}
	if spec.PositionSide != pos.Side {
		return orders.Order{}, trade.Errorf(trade.ErrValidation,
			"position side mismatch: have %s", pos.Side)
	}

	o, err := sc.book.Create(spec)
	if err != nil {
		return orders.Order{}, err
	}
	e.persistOrder(o)
	return o, nil
}

// CancelConditionalOrder cancels an active order. orders.ErrNotFound is
// returned for unknown IDs; terminal orders report orders.ErrNotActive.
func (e *Engine) CancelConditionalOrder(ctx context.Context, accountID, orderID string) error {
	sc, err := e.scope(accountID)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.book.Cancel(orderID); err != nil {
		return err
	}
	if o, ok := sc.book.Get(orderID); ok {
		e.persistOrder(o)
	}
	return nil
}

// ListActiveOrders returns the account's active conditional orders.
func (e *Engine) ListActiveOrders(accountID string) ([]orders.Order, error) {
	sc, err := e.scope(accountID)
	if err != nil {
		return nil, err
	}
	return sc.book.Active(accountID), nil
}

// AccountRiskStatus reports the current risk state for an account.
func (e *Engine) AccountRiskStatus(accountID string) (risk.AccountState, error) {
	sc, err := e.scope(accountID)
	if err != nil {
		return risk.AccountState{}, err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.gate.State(), nil
}

// ResetKillSwitch attempts to clear the account's kill switch. Without
// adminOverride the reset is refused while a breaker is still breached.
func (e *Engine) ResetKillSwitch(accountID string, adminOverride bool) (bool, error) {
	sc, err := e.scope(accountID)
	if err != nil {
		return false, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	ok := sc.gate.ResetKillSwitch(adminOverride)
	state := sc.gate.State()
	if ok {
		metrics.KillSwitch.WithLabelValues(accountID).Set(0)
	}
	if e.store != nil {
		if err := e.store.SaveRiskState(state); err != nil {
			return ok, fmt.Errorf("persist risk state: %w", err)
		}
	}
	return ok, nil
}

func (e *Engine) persistOrder(o orders.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(o); err != nil {
		e.logger.Error("persist conditional order failed",
			zap.String("order", o.ID), zap.Error(err))
	}
}

func (e *Engine) persistFill(sc *scope, pos *ledger.Position, fill trade.Fill, state risk.AccountState) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrade(fill); err != nil {
		e.logger.Error("persist trade failed", zap.String("fill", fill.ID), zap.Error(err))
	}
	if err := e.store.ReplacePosition(pos); err != nil {
		e.logger.Error("persist position failed", zap.String("position", pos.Key()), zap.Error(err))
	}
	if err := e.store.SaveRiskState(state); err != nil {
		e.logger.Error("persist risk state failed", zap.String("account", sc.accountID), zap.Error(err))
	}
}

func (e *Engine) journalFill(fill trade.Fill, state risk.AccountState, source string) {
	err := e.jrnl.RecordTrade(journal.TradeRecord{
		FillID:      fill.ID,
		AccountID:   fill.AccountID,
		Symbol:      fill.Symbol,
		Side:        fill.Side,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		Fee:         fill.Fee,
		Time:        fill.Time,
		RealizedPnL: fill.RealizedPnL,
		Source:      source,
	})
	if err != nil {
		e.logger.Error("journal trade failed", zap.String("fill", fill.ID), zap.Error(err))
	}
	err = e.jrnl.RecordRisk(journal.RiskSnapshot{
		Time:              fill.Time,
		AccountID:         state.AccountID,
		DailyRealizedPnL:  state.DailyRealizedPnL,
		TradesToday:       state.TradesToday,
		ConsecutiveLosses: state.ConsecutiveLosses,
		KillSwitchActive:  state.KillSwitchActive,
	})
	if err != nil {
		e.logger.Error("journal risk snapshot failed", zap.Error(err))
	}
}

// inexact converts a decimal to float64 for gauge export only. Accounting
// stays exact; metrics may lose precision.
func inexact(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
