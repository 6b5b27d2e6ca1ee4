package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal writes one CSV file per record kind. Good enough for paper
// runs and replay output; live setups should prefer SQLite.
type CSVJournal struct {
	trades *csv.Writer
	risk   *csv.Writer
	fails  *csv.Writer
	files  []*os.File
}

func NewCSV(tradesPath, riskPath, failuresPath string) (*CSVJournal, error) {
	j := &CSVJournal{}
	for _, open := range []struct {
		path   string
		header []string
		dest   **csv.Writer
	}{
		{tradesPath, []string{"fill_id", "account_id", "symbol", "side", "quantity", "price", "fee", "time", "realized_pnl", "source"}, &j.trades},
		{riskPath, []string{"time", "account_id", "daily_realized_pnl", "trades_today", "consecutive_losses", "kill_switch"}, &j.risk},
		{failuresPath, []string{"time", "account_id", "order_id", "symbol", "detail"}, &j.fails},
	} {
		f, err := os.Create(open.path)
		if err != nil {
			j.Close()
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(open.header); err != nil {
			j.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			j.Close()
			return nil, err
		}
		*open.dest = w
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	pnl := ""
	if t.RealizedPnL != nil {
		pnl = t.RealizedPnL.String()
	}
	err := j.trades.Write([]string{
		t.FillID,
		t.AccountID,
		t.Symbol,
		string(t.Side),
		t.Quantity.String(),
		t.Price.String(),
		t.Fee.String(),
		t.Time.Format(time.RFC3339),
		pnl,
		t.Source,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordRisk(r RiskSnapshot) error {
	err := j.risk.Write([]string{
		r.Time.Format(time.RFC3339),
		r.AccountID,
		r.DailyRealizedPnL.String(),
		strconv.Itoa(r.TradesToday),
		strconv.Itoa(r.ConsecutiveLosses),
		strconv.FormatBool(r.KillSwitchActive),
	})
	if err != nil {
		return err
	}
	j.risk.Flush()
	return j.risk.Error()
}

func (j *CSVJournal) RecordFailure(f FailureRecord) error {
	err := j.fails.Write([]string{
		f.Time.Format(time.RFC3339),
		f.AccountID,
		f.OrderID,
		f.Symbol,
		f.Detail,
	})
	if err != nil {
		return err
	}
	j.fails.Flush()
	return j.fails.Error()
}

func (j *CSVJournal) Close() error {
	for _, w := range []*csv.Writer{j.trades, j.risk, j.fails} {
		if w != nil {
			w.Flush()
		}
	}
	var firstErr error
	for _, f := range j.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
