package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokersim "github.com/rustyeddy/tradeguard/broker/sim"
	"github.com/rustyeddy/tradeguard/market"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// recordingTarget captures every snapshot handed to ProcessTick.
type recordingTarget struct {
	mu        sync.Mutex
	symbols   []string
	snapshots []market.Snapshot
}

func (r *recordingTarget) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.symbols
}

func (r *recordingTarget) ProcessTick(_ context.Context, snapshot market.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recordingTarget) ticks() []market.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]market.Snapshot, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}

func TestScan_BuildsSnapshotFromFeed(t *testing.T) {
	t.Parallel()

	feed := brokersim.New(decimal.Zero)
	feed.SetPrice("BTC/USD", d("50000"))
	feed.SetPrice("ETH/USD", d("3000"))

	target := &recordingTarget{symbols: []string{"BTC/USD", "ETH/USD"}}
	m := New(target, feed, Options{}, nil)

	m.Scan(context.Background())

	ticks := target.ticks()
	require.Len(t, ticks, 1)
	assert.True(t, ticks[0]["BTC/USD"].Equal(d("50000")))
	assert.True(t, ticks[0]["ETH/USD"].Equal(d("3000")))
}

func TestScan_NoActiveSymbolsSkipsFeed(t *testing.T) {
	t.Parallel()

	feed := brokersim.New(decimal.Zero)
	target := &recordingTarget{}
	m := New(target, feed, Options{}, nil)

	m.Scan(context.Background())
	assert.Empty(t, target.ticks())
}

func TestScan_FailedSymbolIsolatedFromBatch(t *testing.T) {
	t.Parallel()

	// The feed knows BTC but not ETH: the scan must still deliver BTC.
	feed := brokersim.New(decimal.Zero)
	feed.SetPrice("BTC/USD", d("50000"))

	target := &recordingTarget{symbols: []string{"BTC/USD", "ETH/USD"}}
	m := New(target, feed, Options{}, nil)

	m.Scan(context.Background())

	ticks := target.ticks()
	require.Len(t, ticks, 1)
	assert.Contains(t, ticks[0], "BTC/USD")
	assert.NotContains(t, ticks[0], "ETH/USD")
}

func TestScan_AllSymbolsDarkSkipsProcessTick(t *testing.T) {
	t.Parallel()

	feed := brokersim.New(decimal.Zero)
	target := &recordingTarget{symbols: []string{"BTC/USD"}}
	m := New(target, feed, Options{}, nil)

	m.Scan(context.Background())
	assert.Empty(t, target.ticks())
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	feed := brokersim.New(decimal.Zero)
	feed.SetPrice("BTC/USD", d("50000"))
	target := &recordingTarget{symbols: []string{"BTC/USD"}}
	m := New(target, feed, Options{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx), "second start must be rejected")

	assert.Eventually(t, func() bool {
		return len(target.ticks()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	m.Wait()

	// No further scans after Wait returns.
	n := len(target.ticks())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(target.ticks()))
}
