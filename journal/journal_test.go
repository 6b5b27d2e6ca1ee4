package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/market"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func sampleTrade() TradeRecord {
	pnl := d("4895")
	return TradeRecord{
		FillID:      "f1",
		AccountID:   "acct",
		Symbol:      "BTC/USD",
		Side:        market.Sell,
		Quantity:    d("1"),
		Price:       d("55000"),
		Fee:         d("55"),
		Time:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RealizedPnL: &pnl,
		Source:      "stop_loss",
	}
}

func TestSQLiteJournal(t *testing.T) {
	t.Parallel()

	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.RecordRisk(RiskSnapshot{
		Time:             time.Now().UTC(),
		AccountID:        "acct",
		DailyRealizedPnL: d("4895"),
		TradesToday:      2,
	}))
	require.NoError(t, j.RecordFailure(FailureRecord{
		Time:      time.Now().UTC(),
		AccountID: "acct",
		OrderID:   "o1",
		Symbol:    "BTC/USD",
		Detail:    "venue down",
	}))

	// Fill IDs are unique in the journal too.
	assert.Error(t, j.RecordTrade(sampleTrade()))
}

func TestCSVJournalWritesRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	trades := filepath.Join(dir, "trades.csv")
	riskPath := filepath.Join(dir, "risk.csv")
	fails := filepath.Join(dir, "failures.csv")

	j, err := NewCSV(trades, riskPath, fails)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.RecordRisk(RiskSnapshot{
		Time:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		AccountID:        "acct",
		DailyRealizedPnL: d("4895"),
		TradesToday:      2,
		KillSwitchActive: true,
	}))
	require.NoError(t, j.Close())

	rows := readCSV(t, trades)
	require.Len(t, rows, 2)
	assert.Equal(t, "fill_id", rows[0][0])
	assert.Equal(t, []string{
		"f1", "acct", "BTC/USD", "sell", "1", "55000", "55",
		"2025-06-01T12:00:00Z", "4895", "stop_loss",
	}, rows[1])

	rows = readCSV(t, riskPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "true", rows[1][5])

	// Failures file carries only its header.
	assert.Len(t, readCSV(t, fails), 1)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
