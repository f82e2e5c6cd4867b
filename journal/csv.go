package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "ticker", "side", "quantity", "price", "fee", "time", "entry_price", "realized_pl", "reason"}
	equityHeader = []string{"time", "cycle", "cash", "equity", "high_water_mark", "drawdown_pct", "daily_loss_exceeded", "max_drawdown_exceeded"}
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	for _, h := range []struct {
		w   *csv.Writer
		row []string
	}{{tw, tradeHeader}, {ew, equityHeader}} {
		if err := h.w.Write(h.row); err != nil {
			return nil, err
		}
		h.w.Flush()
		if err := h.w.Error(); err != nil {
			return nil, err
		}
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	if err := j.trades.Write(tradeRow(t)); err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		strconv.Itoa(e.Cycle),
		f(e.Cash),
		f(e.Equity),
		f(e.HighWaterMark),
		f(e.DrawdownPct),
		strconv.FormatBool(e.DailyLossExceeded),
		strconv.FormatBool(e.MaxDrawdownExceeded),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

// WriteTradesCSV exports an ordered trade log with a header row.
func WriteTradesCSV(w io.Writer, trades []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(tradeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRow(t TradeRecord) []string {
	pl := ""
	if t.RealizedPL != nil {
		pl = f(*t.RealizedPL)
	}
	return []string{
		t.TradeID,
		t.Ticker,
		t.Side,
		strconv.FormatInt(t.Quantity, 10),
		f(t.Price),
		f(t.Fee),
		t.Time.UTC().Format(time.RFC3339),
		f(t.EntryPrice),
		pl,
		t.Reason,
	}
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
