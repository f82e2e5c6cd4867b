package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, ticker, side, quantity, price, fee, time, entry_price, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Ticker, t.Side, t.Quantity, t.Price,
		t.Fee, t.Time.UTC(), t.EntryPrice, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, cycle, cash, equity, high_water_mark, drawdown_pct, daily_loss_exceeded, max_drawdown_exceeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Cycle, e.Cash, e.Equity, e.HighWaterMark,
		e.DrawdownPct, e.DailyLossExceeded, e.MaxDrawdownExceeded,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
