package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/broker"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/orders"
	"github.com/rustyeddy/tradeguard/trade"
)

// ActiveSymbols returns the distinct symbols the monitor needs prices for,
// across all accounts.
func (e *Engine) ActiveSymbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sc := range e.allScopes() {
		for _, sym := range sc.book.ActiveSymbols() {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	return out
}

// ProcessTick evaluates one price snapshot against every account's order
// book and handles the resulting triggers: submit a market close, record
// the fill, and update risk state. One order's execution failure never
// blocks the rest of the batch.
func (e *Engine) ProcessTick(ctx context.Context, snapshot market.Snapshot) {
	for _, sc := range e.allScopes() {
		sc.mu.Lock()
		e.processScopeLocked(ctx, sc, snapshot)
		sc.mu.Unlock()
	}
}

func (e *Engine) processScopeLocked(ctx context.Context, sc *scope, snapshot market.Snapshot) {
	res := sc.book.Evaluate(snapshot)

	// Persist the transitions before executing anything: after a crash a
	// triggered order must come back triggered, not re-armable.
	for _, o := range res.Updated {
		e.persistOrder(o)
	}
	for _, o := range res.Triggered {
		e.persistOrder(o)
	}

	for _, o := range res.Triggered {
		metrics.Triggers.WithLabelValues(string(o.Type)).Inc()
		e.executeTriggerLocked(ctx, sc, o)
	}
}

// executeTriggerLocked submits the market close for a triggered order and
// records the fill. On submission failure the order stays triggered and the
// failure is journaled for manual reconciliation; reverting would risk a
// double execution on a delayed success response.
func (e *Engine) executeTriggerLocked(ctx context.Context, sc *scope, o orders.Order) {
	fill, err := e.exec.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: o.Quantity,
		Type:     market.MarketOrder,
	})
	if err != nil {
		metrics.ExecutionFailures.Inc()
		sc.book.RecordExecutionError(o.ID, err.Error())
		if updated, ok := sc.book.Get(o.ID); ok {
			e.persistOrder(updated)
		}
		if jerr := e.jrnl.RecordFailure(journal.FailureRecord{
			Time:      o.TriggeredAt,
			AccountID: o.AccountID,
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Detail:    err.Error(),
		}); jerr != nil {
			e.logger.Error("journal execution failure failed", zap.Error(jerr))
		}
		e.logger.Error("triggered order execution failed",
			zap.String("order", o.ID),
			zap.String("symbol", o.Symbol),
			zap.Error(err),
		)
		return
	}

	closeFill := trade.Fill{
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  fill.FilledQuantity,
		Price:     fill.FilledPrice,
		Fee:       fill.Fee,
	}
	if _, err := e.applyFillLocked(sc, &closeFill, string(o.Type)); err != nil {
		// The venue filled but our books refused the fill. This should be
		// impossible while the scope lock is held; surface loudly.
		e.logger.Error("trigger fill could not be applied",
			zap.String("order", o.ID),
			zap.Error(err),
		)
		return
	}

	e.logger.Info("triggered order executed",
		zap.String("order", o.ID),
		zap.String("type", string(o.Type)),
		zap.String("symbol", o.Symbol),
		zap.String("price", fill.FilledPrice.String()),
		zap.String("realized_pnl", closeFill.RealizedPnL.StringFixed(2)),
	)
}
