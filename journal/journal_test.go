package journal

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	t1 = time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)
)

func plPtr(v float64) *float64 { return &v }

func sampleTrades() []TradeRecord {
	return []TradeRecord{
		{TradeID: "01HBUY", Ticker: "AAPL", Side: "BUY", Quantity: 200, Price: 100, Fee: 20, Time: t0, Reason: "signal_entry"},
		{TradeID: "01HSTOP", Ticker: "AAPL", Side: "STOP", Quantity: 200, Price: 94, Fee: 18.8, Time: t1, EntryPrice: 100, RealizedPL: plPtr(-1200), Reason: "stop_loss"},
	}
}

func TestFromTradeRoundTrip(t *testing.T) {
	t.Parallel()

	pl := 50.0
	tr := portfolio.Trade{
		ID: "X", Ticker: "MSFT", Side: portfolio.SideSell, Quantity: 10,
		Price: 105, Fee: 1, Time: t0, RealizedPL: &pl, Reason: portfolio.ReasonSignalExit, EntryPrice: 100,
	}

	rec := FromTrade(tr)
	assert.Equal(t, "SELL", rec.Side)
	require.NotNil(t, rec.RealizedPL)

	pl = 99 // the record owns its copy
	assert.Equal(t, 50.0, *rec.RealizedPL)

	back := rec.Trade()
	assert.Equal(t, portfolio.SideSell, back.Side)
	assert.Equal(t, 50.0, *back.RealizedPL)

	assert.Nil(t, FromTrade(portfolio.Trade{Side: portfolio.SideBuy}).RealizedPL)
}

type failing struct{ calls int }

func (f *failing) RecordTrade(TradeRecord) error     { f.calls++; return errors.New("disk full") }
func (f *failing) RecordEquity(EquitySnapshot) error { f.calls++; return nil }
func (f *failing) Close() error                      { return nil }

func TestMultiAttemptsEverySink(t *testing.T) {
	t.Parallel()

	a, b := &failing{}, &failing{}
	m := Multi(a, Discard, b)

	err := m.RecordTrade(TradeRecord{})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, m.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, m.Close())
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	for _, tr := range sampleTrades() {
		require.NoError(t, j.RecordTrade(tr))
	}
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time: t1, Cycle: 3, Cash: 98761.2, Equity: 98761.2, HighWaterMark: 100000,
		DrawdownPct: 0.012388, MaxDrawdownExceeded: false,
	}))
	require.NoError(t, j.Close())

	rows := readCSV(t, tradesPath)
	require.Len(t, rows, 3)
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, []string{"01HBUY", "AAPL", "BUY", "200", "100.000000", "20.000000", "2024-01-02T14:30:00Z", "0.000000", "", "signal_entry"}, rows[1])
	assert.Equal(t, "-1200.000000", rows[2][8])

	eq := readCSV(t, equityPath)
	require.Len(t, eq, 2)
	assert.Equal(t, equityHeader, eq[0])
	assert.Equal(t, "3", eq[1][1])
	assert.Equal(t, "false", eq[1][7])
}

func TestWriteTradesCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, sampleTrades()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "01HBUY", rows[1][0])
	assert.Equal(t, "STOP", rows[2][2])
}

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	trades := sampleTrades()

	open := FormatTradeOrg(trades[0])
	assert.Contains(t, open, "** BUY AAPL x200 (01HBUY)")
	assert.Contains(t, open, ":PRICE: 100.0000")
	assert.Contains(t, open, ":TIME: 2024-01-02T14:30:00Z")
	assert.Contains(t, open, "*** Thesis")
	assert.NotContains(t, open, ":REALIZED_PL:")

	closed := FormatTradeOrg(trades[1])
	assert.Contains(t, closed, ":REALIZED_PL: -1200.00")
	assert.Contains(t, closed, ":ENTRY_PRICE: 100.0000")
	assert.Contains(t, closed, "*** Review")

	all := FormatTradesOrg(trades)
	assert.Equal(t, 2, strings.Count(all, ":PROPERTIES:"))

	long := TradeRecord{TradeID: "01HZZZZZZZZZZZ"}
	assert.Contains(t, FormatTradeOrg(long), "(01HZZZZZ)")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}
