// Package store is the durable state store. The engine writes through to it
// on every mutation and rebuilds its in-memory state from it on startup, so
// a restart never loses risk state, open lots, or conditional orders.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeguard/ledger"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/orders"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/trade"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRiskState(st risk.AccountState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO risk_state
		(account_id, kill_switch, kill_reason, daily_realized_pnl, trades_today, consecutive_losses, last_reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.AccountID, boolInt(st.KillSwitchActive), st.KillSwitchReason,
		st.DailyRealizedPnL.String(), st.TradesToday, st.ConsecutiveLosses, st.LastResetAt.UTC(),
	)
	return err
}

func (s *Store) LoadRiskState(accountID string) (risk.AccountState, bool, error) {
	row := s.db.QueryRow(`
		SELECT kill_switch, kill_reason, daily_realized_pnl, trades_today, consecutive_losses, last_reset_at
		FROM risk_state WHERE account_id = ?`, accountID)

	var (
		st      risk.AccountState
		kill    int
		pnl     string
		resetAt time.Time
	)
	st.AccountID = accountID
	err := row.Scan(&kill, &st.KillSwitchReason, &pnl, &st.TradesToday, &st.ConsecutiveLosses, &resetAt)
	if err == sql.ErrNoRows {
		return risk.AccountState{}, false, nil
	}
	if err != nil {
		return risk.AccountState{}, false, err
	}
	st.KillSwitchActive = kill != 0
	st.LastResetAt = resetAt
	if st.DailyRealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return risk.AccountState{}, false, fmt.Errorf("risk state %s: bad pnl: %w", accountID, err)
	}
	return st, true, nil
}

// ReplacePosition rewrites a position and its lots in one transaction. A
// fully closed position is simply removed.
func (s *Store) ReplacePosition(p *ledger.Position) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lots WHERE account_id = ? AND symbol = ?`, p.AccountID, p.Symbol); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM positions WHERE account_id = ? AND symbol = ?`, p.AccountID, p.Symbol); err != nil {
		return err
	}

	lots := p.Lots()
	if len(lots) > 0 {
		if _, err := tx.Exec(`INSERT INTO positions (account_id, symbol, side) VALUES (?, ?, ?)`,
			p.AccountID, p.Symbol, string(p.Side)); err != nil {
			return err
		}
		for seq, lot := range lots {
			if _, err := tx.Exec(`
				INSERT INTO lots (account_id, symbol, seq, quantity, unit_cost, opened_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				p.AccountID, p.Symbol, seq, lot.Quantity.String(), lot.UnitCost.String(), lot.OpenedAt.UTC(),
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// PositionRecord is a persisted position with its lots, oldest first.
type PositionRecord struct {
	AccountID string
	Symbol    string
	Side      market.Direction
	Lots      []ledger.Lot
}

func (s *Store) LoadPositions(accountID string) ([]PositionRecord, error) {
	rows, err := s.db.Query(`SELECT symbol, side FROM positions WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []PositionRecord
	for rows.Next() {
		var rec PositionRecord
		var side string
		if err := rows.Scan(&rec.Symbol, &side); err != nil {
			return nil, err
		}
		rec.AccountID = accountID
		rec.Side = market.Direction(side)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recs {
		if recs[i].Lots, err = s.loadLots(accountID, recs[i].Symbol); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *Store) loadLots(accountID, symbol string) ([]ledger.Lot, error) {
	rows, err := s.db.Query(`
		SELECT quantity, unit_cost, opened_at FROM lots
		WHERE account_id = ? AND symbol = ? ORDER BY seq`, accountID, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []ledger.Lot
	for rows.Next() {
		var (
			lot      ledger.Lot
			qty, uc  string
			openedAt time.Time
		)
		if err := rows.Scan(&qty, &uc, &openedAt); err != nil {
			return nil, err
		}
		if lot.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("lot %s/%s: bad quantity: %w", accountID, symbol, err)
		}
		if lot.UnitCost, err = decimal.NewFromString(uc); err != nil {
			return nil, fmt.Errorf("lot %s/%s: bad unit cost: %w", accountID, symbol, err)
		}
		lot.OpenedAt = openedAt
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (s *Store) SaveTrade(f trade.Fill) error {
	var pnl, pct any
	if f.RealizedPnL != nil {
		pnl = f.RealizedPnL.String()
	}
	if f.RealizedPnLPct != nil {
		pct = f.RealizedPnLPct.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO trades
		(id, account_id, symbol, side, quantity, price, fee, ts, realized_pnl, realized_pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AccountID, f.Symbol, string(f.Side),
		f.Quantity.String(), f.Price.String(), f.Fee.String(), f.Time.UTC(), pnl, pct,
	)
	return err
}

func (s *Store) SaveOrder(o orders.Order) error {
	var triggeredAt any
	if !o.TriggeredAt.IsZero() {
		triggeredAt = o.TriggeredAt.UTC()
	}
	var triggeredPrice any
	if !o.TriggeredPrice.IsZero() {
		triggeredPrice = o.TriggeredPrice.String()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO conditional_orders
		(id, account_id, position_key, symbol, side, quantity, type, entry_price,
		 trigger_price, trail_pct, high_water_mark, status, created_at, triggered_at, triggered_price, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.PositionKey, o.Symbol, string(o.Side), o.Quantity.String(),
		string(o.Type), o.EntryPrice.String(), o.TriggerPrice.String(),
		o.TrailPct.String(), o.HighWaterMark.String(), string(o.Status),
		o.CreatedAt.UTC(), triggeredAt, triggeredPrice, o.LastError,
	)
	return err
}

// LoadOrders returns every persisted conditional order for an account,
// terminal history included.
func (s *Store) LoadOrders(accountID string) ([]orders.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, position_key, symbol, side, quantity, type, entry_price,
		       trigger_price, trail_pct, high_water_mark, status, created_at,
		       triggered_at, triggered_price, last_error
		FROM conditional_orders WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var (
			o              orders.Order
			side, typ, st  string
			qty, ep, tp    string
			trail, hwm     string
			triggeredAt    sql.NullTime
			triggeredPrice sql.NullString
		)
		err := rows.Scan(&o.ID, &o.PositionKey, &o.Symbol, &side, &qty, &typ, &ep,
			&tp, &trail, &hwm, &st, &o.CreatedAt, &triggeredAt, &triggeredPrice, &o.LastError)
		if err != nil {
			return nil, err
		}
		o.AccountID = accountID
		o.Side = market.Side(side)
		o.Type = orders.Type(typ)
		o.Status = orders.Status(st)
		if o.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("order %s: bad quantity: %w", o.ID, err)
		}
		if o.EntryPrice, err = decimal.NewFromString(ep); err != nil {
			return nil, fmt.Errorf("order %s: bad entry price: %w", o.ID, err)
		}
		if o.TriggerPrice, err = decimal.NewFromString(tp); err != nil {
			return nil, fmt.Errorf("order %s: bad trigger price: %w", o.ID, err)
		}
		if o.TrailPct, err = decimal.NewFromString(trail); err != nil {
			return nil, fmt.Errorf("order %s: bad trail pct: %w", o.ID, err)
		}
		if o.HighWaterMark, err = decimal.NewFromString(hwm); err != nil {
			return nil, fmt.Errorf("order %s: bad watermark: %w", o.ID, err)
		}
		if triggeredAt.Valid {
			o.TriggeredAt = triggeredAt.Time
		}
		if triggeredPrice.Valid {
			if o.TriggeredPrice, err = decimal.NewFromString(triggeredPrice.String); err != nil {
				return nil, fmt.Errorf("order %s: bad triggered price: %w", o.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
