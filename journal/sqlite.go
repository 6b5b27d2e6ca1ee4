package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	fill_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	ts DATETIME NOT NULL,
	realized_pnl TEXT,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_snapshots (
	ts DATETIME NOT NULL,
	account_id TEXT NOT NULL,
	daily_realized_pnl TEXT NOT NULL,
	trades_today INTEGER NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	kill_switch INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_snapshots_ts ON risk_snapshots(account_id, ts);

CREATE TABLE IF NOT EXISTS failures (
	ts DATETIME NOT NULL,
	account_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	detail TEXT NOT NULL
);
`

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	var pnl any
	if t.RealizedPnL != nil {
		pnl = t.RealizedPnL.String()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(fill_id, account_id, symbol, side, quantity, price, fee, ts, realized_pnl, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FillID, t.AccountID, t.Symbol, string(t.Side),
		t.Quantity.String(), t.Price.String(), t.Fee.String(), t.Time.UTC(), pnl, t.Source,
	)
	return err
}

func (j *SQLiteJournal) RecordRisk(r RiskSnapshot) error {
	kill := 0
	if r.KillSwitchActive {
		kill = 1
	}
	_, err := j.db.Exec(`
		INSERT INTO risk_snapshots
		(ts, account_id, daily_realized_pnl, trades_today, consecutive_losses, kill_switch)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Time.UTC(), r.AccountID, r.DailyRealizedPnL.String(),
		r.TradesToday, r.ConsecutiveLosses, kill,
	)
	return err
}

func (j *SQLiteJournal) RecordFailure(f FailureRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO failures (ts, account_id, order_id, symbol, detail)
		VALUES (?, ?, ?, ?, ?)`,
		f.Time.UTC(), f.AccountID, f.OrderID, f.Symbol, f.Detail,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
