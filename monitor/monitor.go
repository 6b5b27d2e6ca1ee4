// Package monitor runs the recurring price scan that drives conditional
// orders. Each tick it collects the symbols referenced by active orders,
// fetches one price per symbol into a single snapshot, and hands the
// snapshot to the engine for trigger evaluation. The loop is decoupled
// from the request path; stopping it waits for the in-flight scan so no
// trigger is left half-handled.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradeguard/broker"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/trade"
)

// Target is the slice of the engine the monitor drives.
type Target interface {
	ActiveSymbols() []string
	ProcessTick(ctx context.Context, snapshot market.Snapshot)
}

type Options struct {
	Interval time.Duration // scan period, default 5s
	Timeout  time.Duration // per-symbol price fetch budget, default 3s
	Fetches  int           // concurrent price fetches, default 4
}

type Monitor struct {
	target Target
	feed   broker.PriceFeed
	opts   Options
	logger *zap.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

func New(target Target, feed broker.PriceFeed, opts Options, logger *zap.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Fetches <= 0 {
		opts.Fetches = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		target: target,
		feed:   feed,
		opts:   opts,
		logger: logger,
	}
}

// Start launches the scan loop. It runs until ctx is cancelled; use Wait to
// block until the final scan has completed.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("monitor already started")
	}
	m.started = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()

	m.logger.Info("price monitor started",
		zap.Duration("interval", m.opts.Interval))
	return nil
}

// Wait blocks until the loop has exited and the in-flight scan finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("price monitor stopped")
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan performs one full evaluation pass. Exported so the replay harness
// can drive scans from recorded ticks instead of the wall clock.
func (m *Monitor) Scan(ctx context.Context) {
	symbols := m.target.ActiveSymbols()
	if len(symbols) == 0 {
		return
	}

	start := time.Now()
	snapshot := m.fetch(ctx, symbols)
	if len(snapshot) > 0 {
		m.target.ProcessTick(ctx, snapshot)
	}
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
}

// fetch collects one price per symbol into a snapshot. Fetches run
// concurrently with a bounded parallelism and a per-call timeout; a failed
// symbol is skipped for this tick and retried on the next, so one slow or
// dark feed never stalls the batch.
func (m *Monitor) fetch(ctx context.Context, symbols []string) market.Snapshot {
	var (
		mu       sync.Mutex
		snapshot = make(market.Snapshot, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Fetches)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			price, err := m.fetchOne(gctx, symbol)
			if err != nil {
				metrics.PriceFetchFailures.Inc()
				if trade.Transient(err) {
					m.logger.Debug("price unavailable, skipping symbol",
						zap.String("symbol", symbol))
				} else {
					m.logger.Warn("price fetch failed, skipping symbol",
						zap.String("symbol", symbol), zap.Error(err))
				}
				return nil // partial-failure isolation, never abort the batch
			}
			mu.Lock()
			snapshot[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return snapshot
}

func (m *Monitor) fetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	fctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	price, err := m.feed.Price(fctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, trade.Errorf(trade.ErrPriceUnavailable,
			"feed returned non-positive price %s for %s", price, symbol)
	}
	return price, nil
}
