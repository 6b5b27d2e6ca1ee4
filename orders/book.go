// Package orders manages conditional orders: stop-loss, take-profit, and
// trailing stops tied to open positions. The book is pure state with no
// polling; the price monitor drives evaluation and owns the only allowed
// transition, active to triggered.
package orders

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/id"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/trade"
)

var one = decimal.NewFromInt(1)

// Spec describes a conditional order to create. Percent is the distance
// from entry for stops and take-profits, or the trail distance for a
// trailing stop, as a fraction (0.02 = 2%).
type Spec struct {
	AccountID    string
	Symbol       string
	PositionSide market.Direction
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	Type         Type
	Percent      decimal.Decimal
}

func (s Spec) validate() error {
	switch {
	case s.AccountID == "" || s.Symbol == "":
		return trade.Errorf(trade.ErrValidation, "account and symbol required")
	case s.PositionSide != market.Long && s.PositionSide != market.Short:
		return trade.Errorf(trade.ErrValidation, "position side %q invalid", s.PositionSide)
	case !s.Type.Valid():
		return trade.Errorf(trade.ErrValidation, "order type %q invalid", s.Type)
	case !s.Quantity.IsPositive():
		return trade.Errorf(trade.ErrValidation, "quantity must be positive, got %s", s.Quantity)
	case !s.EntryPrice.IsPositive():
		return trade.Errorf(trade.ErrValidation, "entry price must be positive, got %s", s.EntryPrice)
	case !s.Percent.IsPositive():
		return trade.Errorf(trade.ErrValidation, "percent must be positive, got %s", s.Percent)
	case s.Type.StopKind() && s.Percent.GreaterThanOrEqual(one):
		// A stop 100% or more away can never protect anything.
		return trade.Errorf(trade.ErrValidation, "stop percent must be below 1, got %s", s.Percent)
	}
	return nil
}

// Book holds all conditional orders. All mutation happens under its mutex;
// marking an order triggered is a compare-and-set under that lock so an
// order fires at most once even when monitor scans overlap.
type Book struct {
	mu     sync.Mutex
	orders map[string]*Order
	logger *zap.Logger
	now    func() time.Time
}

func NewBook(logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		orders: make(map[string]*Order),
		logger: logger,
		now:    time.Now,
	}
}

// Create registers a new active order. A position holds at most one active
// stop-kind order and one active take-profit at a time.
func (b *Book) Create(spec Spec) (Order, error) {
	if err := spec.validate(); err != nil {
		return Order{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	posKey := spec.AccountID + "|" + spec.Symbol
	for _, o := range b.orders {
		if o.PositionKey != posKey || o.Status != Active {
			continue
		}
		if o.Type.StopKind() == spec.Type.StopKind() {
			return Order{}, fmt.Errorf("%w: %s on %s", ErrDuplicate, o.Type, posKey)
		}
	}

	o := &Order{
		ID:           id.New(),
		AccountID:    spec.AccountID,
		PositionKey:  posKey,
		Symbol:       spec.Symbol,
		Side:         spec.PositionSide.OpeningSide().Opposite(),
		Quantity:     spec.Quantity,
		Type:         spec.Type,
		EntryPrice:   spec.EntryPrice,
		TriggerPrice: triggerFor(spec),
		Status:       Active,
		CreatedAt:    b.now(),
	}
	if spec.Type == TrailingStop {
		o.TrailPct = spec.Percent
		o.HighWaterMark = spec.EntryPrice
	}
	b.orders[o.ID] = o

	b.logger.Info("conditional order created",
		zap.String("id", o.ID),
		zap.String("type", string(o.Type)),
		zap.String("position", o.PositionKey),
		zap.String("trigger", o.TriggerPrice.String()),
	)
	return *o, nil
}

// triggerFor computes the initial trigger price. Stops sit on the losing
// side of entry, take-profits on the winning side; shorts mirror longs.
func triggerFor(spec Spec) decimal.Decimal {
	below := spec.EntryPrice.Mul(one.Sub(spec.Percent))
	above := spec.EntryPrice.Mul(one.Add(spec.Percent))

	losing := spec.Type.StopKind()
	if spec.PositionSide == market.Long {
		if losing {
			return below
		}
		return above
	}
	if losing {
		return above
	}
	return below
}

// Cancel transitions an active order to cancelled. Terminal orders are
// immutable history.
func (b *Book) Cancel(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != Active {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, orderID, o.Status)
	}
	o.Status = Cancelled
	b.logger.Info("conditional order cancelled", zap.String("id", orderID))
	return nil
}

// CancelForPosition cancels every active order on a position, used when the
// position closes by other means. Returns the cancelled orders.
func (b *Book) CancelForPosition(positionKey string) []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelPositionLocked(positionKey, "")
}

func (b *Book) cancelPositionLocked(positionKey, exceptID string) []Order {
	var cancelled []Order
	for _, o := range b.orders {
		if o.PositionKey != positionKey || o.Status != Active || o.ID == exceptID {
			continue
		}
		o.Status = Cancelled
		cancelled = append(cancelled, *o)
		b.logger.Info("sibling order cancelled",
			zap.String("id", o.ID),
			zap.String("position", positionKey),
		)
	}
	return cancelled
}

// Get returns a copy of an order.
func (b *Book) Get(orderID string) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Active returns copies of the account's active orders, oldest first.
func (b *Book) Active(accountID string) []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Order
	for _, o := range b.orders {
		if o.Status == Active && (accountID == "" || o.AccountID == accountID) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveSymbols returns the distinct symbols referenced by active orders,
// the set the monitor needs prices for.
func (b *Book) ActiveSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, o := range b.orders {
		if o.Status != Active {
			continue
		}
		if _, ok := seen[o.Symbol]; ok {
			continue
		}
		seen[o.Symbol] = struct{}{}
		out = append(out, o.Symbol)
	}
	sort.Strings(out)
	return out
}

// ScanResult is the outcome of evaluating one price snapshot.
type ScanResult struct {
	// Triggered orders, stops ordered before take-profits. Execution is
	// the caller's job; the status transition already happened.
	Triggered []Order
	// Cancelled siblings and any trailing orders whose trigger moved,
	// for persistence.
	Updated []Order
}

// Evaluate runs one scan over the snapshot: trailing triggers ratchet
// first (a non-triggering mutation), then stop-kind orders are evaluated,
// then take-profits. Evaluating stops first makes the loss-limiting leg win
// when a gapped price would fire both legs of a pair, because a trigger
// immediately cancels the position's other orders.
//
// The whole scan holds the book lock, so an order triggers at most once
// across overlapping scans.
func (b *Book) Evaluate(snapshot market.Snapshot) ScanResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res ScanResult
	now := b.now()

	for _, o := range b.activeLocked() {
		price, ok := snapshot[o.Symbol]
		if !ok {
			continue
		}
		if o.Type == TrailingStop && b.ratchetLocked(o, price) {
			res.Updated = append(res.Updated, *o)
		}
	}

	for _, pass := range []bool{true, false} { // stops, then take-profits
		for _, o := range b.activeLocked() {
			if o.Type.StopKind() != pass {
				continue
			}
			price, ok := snapshot[o.Symbol]
			if !ok || !o.crossed(price) {
				continue
			}
			o.Status = Triggered
			o.TriggeredAt = now
			o.TriggeredPrice = price
			res.Triggered = append(res.Triggered, *o)
			res.Updated = append(res.Updated, b.cancelPositionLocked(o.PositionKey, o.ID)...)

			b.logger.Warn("conditional order triggered",
				zap.String("id", o.ID),
				zap.String("type", string(o.Type)),
				zap.String("position", o.PositionKey),
				zap.String("price", price.String()),
				zap.String("trigger", o.TriggerPrice.String()),
			)
		}
	}
	return res
}

func (b *Book) activeLocked() []*Order {
	out := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Status == Active {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ratchetLocked advances a trailing stop's watermark and trigger. The
// watermark moves only on strict improvement and the trigger only ever
// tightens, so it is monotone in the profit direction.
func (b *Book) ratchetLocked(o *Order, price decimal.Decimal) bool {
	long := o.PositionDirection() == market.Long
	if long {
		if !price.GreaterThan(o.HighWaterMark) {
			return false
		}
		o.HighWaterMark = price
		next := price.Mul(one.Sub(o.TrailPct))
		if !next.GreaterThan(o.TriggerPrice) {
			return false
		}
		o.TriggerPrice = next
	} else {
		if !price.LessThan(o.HighWaterMark) {
			return false
		}
		o.HighWaterMark = price
		next := price.Mul(one.Add(o.TrailPct))
		if !next.LessThan(o.TriggerPrice) {
			return false
		}
		o.TriggerPrice = next
	}

	b.logger.Debug("trailing stop ratcheted",
		zap.String("id", o.ID),
		zap.String("watermark", o.HighWaterMark.String()),
		zap.String("trigger", o.TriggerPrice.String()),
	)
	return true
}

// RecordExecutionError annotates a triggered order whose market close
// failed. The order stays triggered; reverting would risk double execution
// on a delayed success.
func (b *Book) RecordExecutionError(orderID string, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok && o.Status == Triggered {
		o.LastError = msg
	}
}

// Restore loads persisted orders when rebuilding from the store.
func (b *Book) Restore(list []Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range list {
		o := list[i]
		b.orders[o.ID] = &o
	}
}
