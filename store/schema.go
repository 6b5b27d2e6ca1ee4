package store

// Current state only; history lives in the journal. Decimals are stored as
// TEXT to round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS risk_state (
	account_id TEXT PRIMARY KEY,
	kill_switch INTEGER NOT NULL,
	kill_reason TEXT NOT NULL DEFAULT '',
	daily_realized_pnl TEXT NOT NULL,
	trades_today INTEGER NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	last_reset_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS lots (
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	seq INTEGER NOT NULL,
	quantity TEXT NOT NULL,
	unit_cost TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, symbol, seq)
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	ts DATETIME NOT NULL,
	realized_pnl TEXT,
	realized_pnl_pct TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_account_ts ON trades(account_id, ts);

CREATE TABLE IF NOT EXISTS conditional_orders (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	position_key TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	type TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	trigger_price TEXT NOT NULL,
	trail_pct TEXT NOT NULL,
	high_water_mark TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	triggered_at DATETIME,
	triggered_price TEXT,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON conditional_orders(status);
`
