// Package journal persists the trade log and equity snapshots produced by
// the execution engine. The engine calls a Journal after each in-memory
// mutation; a failing sink never rolls back portfolio state.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/papertrader/portfolio"
)

// TradeRecord is the persisted form of a portfolio.Trade.
type TradeRecord struct {
	TradeID    string
	Ticker     string
	Side       string
	Quantity   int64
	Price      float64
	Fee        float64
	Time       time.Time
	EntryPrice float64  // 0 for opening trades
	RealizedPL *float64 // nil for opening trades
	Reason     string
}

// FromTrade converts a ledger trade into a record.
func FromTrade(t portfolio.Trade) TradeRecord {
	rec := TradeRecord{
		TradeID:    t.ID,
		Ticker:     t.Ticker,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		Price:      t.Price,
		Fee:        t.Fee,
		Time:       t.Time,
		EntryPrice: t.EntryPrice,
		Reason:     string(t.Reason),
	}
	if t.RealizedPL != nil {
		pl := *t.RealizedPL
		rec.RealizedPL = &pl
	}
	return rec
}

// Trade converts the record back into a ledger trade.
func (r TradeRecord) Trade() portfolio.Trade {
	t := portfolio.Trade{
		ID:         r.TradeID,
		Ticker:     r.Ticker,
		Side:       portfolio.Side(r.Side),
		Quantity:   r.Quantity,
		Price:      r.Price,
		Fee:        r.Fee,
		Time:       r.Time,
		EntryPrice: r.EntryPrice,
		Reason:     portfolio.Reason(r.Reason),
	}
	if r.RealizedPL != nil {
		pl := *r.RealizedPL
		t.RealizedPL = &pl
	}
	return t
}

// EquitySnapshot is one portfolio valuation.
type EquitySnapshot struct {
	Time                time.Time
	Cycle               int
	Cash                float64
	Equity              float64
	HighWaterMark       float64
	DrawdownPct         float64
	DailyLossExceeded   bool
	MaxDrawdownExceeded bool
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Discard accepts and drops everything.
var Discard Journal = discard{}

type discard struct{}

func (discard) RecordTrade(TradeRecord) error     { return nil }
func (discard) RecordEquity(EquitySnapshot) error { return nil }
func (discard) Close() error                      { return nil }

// Multi fans records out to every journal. All sinks are attempted; the
// errors are joined.
func Multi(js ...Journal) Journal {
	return multi(js)
}

type multi []Journal

func (m multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
