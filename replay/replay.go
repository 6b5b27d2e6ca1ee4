// Package replay feeds recorded ticks through a full engine wired to the
// sim venue, so trigger behavior can be re-checked against captured data.
//
// Tick CSV format, header required:
//
//	time,symbol,price[,event,arg1,arg2]
//
// Event OPEN submits an entry through the safety gate before the tick's
// snapshot is evaluated: arg1 is the side (buy|sell), arg2 the quantity.
// Files ending in .xz are decompressed on the fly.
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/broker"
	brokersim "github.com/rustyeddy/tradeguard/broker/sim"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/engine"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/trade"
)

// Result summarizes a replay run.
type Result struct {
	Ticks     int
	Opens     int
	Rejected  int
	Triggered int
}

// Run replays ticksPath against a fresh in-memory engine configured from
// cfg, journaling to jrnl (nil discards).
func Run(ctx context.Context, cfg *config.Config, ticksPath string, jrnl journal.Journal, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	venue := brokersim.New(decimal.NewFromFloat(0.001))
	eng := engine.New(engine.Options{
		Policy:     risk.PolicyFromConfig(cfg.Risk),
		Protection: cfg.Protection,
		Exec:       venue,
		Journal:    jrnl,
		Logger:     logger,
	})
	if err := eng.AddAccount(cfg.Account.ID, decimal.NewFromFloat(cfg.Account.Balance)); err != nil {
		return Result{}, err
	}

	r, closeFn, err := open(ticksPath)
	if err != nil {
		return Result{}, err
	}
	defer closeFn()

	var res Result
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read tick: %w", err)
		}
		if header {
			header = false
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		tick, event, err := parse(rec)
		if err != nil {
			return res, err
		}
		res.Ticks++
		venue.SetPrice(tick.Symbol, tick.Price)

		if event != nil {
			opened, err := runOpen(ctx, eng, venue, cfg.Account.ID, tick, *event)
			if err != nil {
				return res, err
			}
			res.Opens++
			if !opened {
				res.Rejected++
			}
		}

		before := len(venue.Submissions())
		eng.ProcessTick(ctx, market.Snapshot{tick.Symbol: tick.Price})
		res.Triggered += len(venue.Submissions()) - before
	}
	return res, nil
}

type openEvent struct {
	side     market.Side
	quantity decimal.Decimal
}

func parse(rec []string) (market.Tick, *openEvent, error) {
	if len(rec) < 3 {
		return market.Tick{}, nil, fmt.Errorf("tick row needs time,symbol,price, got %d fields", len(rec))
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
	if err != nil {
		return market.Tick{}, nil, fmt.Errorf("bad tick time %q: %w", rec[0], err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return market.Tick{}, nil, fmt.Errorf("bad tick price %q: %w", rec[2], err)
	}
	tick := market.Tick{Symbol: strings.TrimSpace(rec[1]), Price: price, Time: ts}

	if len(rec) < 4 || strings.TrimSpace(rec[3]) == "" {
		return tick, nil, nil
	}
	if got := strings.ToUpper(strings.TrimSpace(rec[3])); got != "OPEN" {
		return market.Tick{}, nil, fmt.Errorf("unknown event %q", got)
	}
	if len(rec) < 6 {
		return market.Tick{}, nil, fmt.Errorf("OPEN event needs side and quantity")
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(rec[5]))
	if err != nil {
		return market.Tick{}, nil, fmt.Errorf("bad OPEN quantity %q: %w", rec[5], err)
	}
	return tick, &openEvent{
		side:     market.Side(strings.ToLower(strings.TrimSpace(rec[4]))),
		quantity: qty,
	}, nil
}

// runOpen pushes a scripted entry through the gate and, when approved,
// fills it at the tick price. Returns false when the gate rejected it.
func runOpen(ctx context.Context, eng *engine.Engine, venue *brokersim.Sim, accountID string, tick market.Tick, ev openEvent) (bool, error) {
	intent := trade.Intent{
		AccountID: accountID,
		Symbol:    tick.Symbol,
		Side:      ev.side,
		Type:      market.MarketOrder,
		Quantity:  ev.quantity,
		Price:     tick.Price,
	}
	decision, err := eng.EvaluateTrade(ctx, intent)
	if err != nil {
		return false, fmt.Errorf("evaluate scripted open: %w", err)
	}
	if !decision.Approved {
		return false, nil
	}

	fill, err := venue.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   tick.Symbol,
		Side:     ev.side,
		Quantity: decision.AdjustedQuantity,
		Type:     market.MarketOrder,
	})
	if err != nil {
		return false, fmt.Errorf("submit scripted open: %w", err)
	}
	_, err = eng.RecordFill(ctx, trade.Fill{
		AccountID: accountID,
		Symbol:    tick.Symbol,
		Side:      ev.side,
		Quantity:  fill.FilledQuantity,
		Price:     fill.FilledPrice,
		Fee:       fill.Fee,
		Time:      tick.Time,
	})
	if err != nil {
		return false, fmt.Errorf("record scripted open: %w", err)
	}
	return true, nil
}

func open(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, f.Close, nil
	}
	xr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open xz reader: %w", err)
	}
	return xr, f.Close, nil
}
