package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by GetTrade for an unknown ID.
var ErrNotFound = errors.New("journal: not found")

const tradeColumns = `trade_id, ticker, side, quantity, price, fee, time, entry_price, realized_pl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec TradeRecord
		pl  sql.NullFloat64
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.Ticker,
		&rec.Side,
		&rec.Quantity,
		&rec.Price,
		&rec.Fee,
		&rec.Time,
		&rec.EntryPrice,
		&pl,
		&rec.Reason,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	if pl.Valid {
		v := pl.Float64
		rec.RealizedPL = &v
	}
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("%w: trade %q", ErrNotFound, tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the whole trade log in insertion order.
func (j *SQLite) ListTrades() ([]TradeRecord, error) {
	return j.queryTrades(`SELECT ` + tradeColumns + ` FROM trades ORDER BY seq ASC`)
}

// ListTradesBetween returns trades whose time is within [start, end).
func (j *SQLite) ListTradesBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE time >= ? AND time < ?
		ORDER BY seq ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) queryTrades(q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns snapshots whose time is within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, cycle, cash, equity, high_water_mark, drawdown_pct, daily_loss_exceeded, max_drawdown_exceeded
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.Time,
			&e.Cycle,
			&e.Cash,
			&e.Equity,
			&e.HighWaterMark,
			&e.DrawdownPct,
			&e.DailyLossExceeded,
			&e.MaxDrawdownExceeded,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
