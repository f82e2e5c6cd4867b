package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)

func newLedger(t *testing.T, capital float64) *Ledger {
	t.Helper()
	l, err := NewLedger(capital)
	require.NoError(t, err)
	return l
}

func openAAPL(t *testing.T, l *Ledger, qty int64, price, fee float64) Trade {
	t.Helper()
	tr, err := l.Open(OpenRequest{
		ID:       "T-open",
		Ticker:   "AAPL",
		Quantity: qty,
		Price:    price,
		Fee:      fee,
		StopLoss: price * 0.95,
		Time:     t0,
	})
	require.NoError(t, err)
	return tr
}

func TestNewLedgerRejectsBadCapital(t *testing.T) {
	t.Parallel()

	for _, c := range []float64{0, -1} {
		_, err := NewLedger(c)
		assert.Error(t, err)
	}
}

func TestOpenDebitsCashAndAppendsTrade(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 100000)
	v0 := l.Version()

	tr := openAAPL(t, l, 200, 100, 4)

	assert.InDelta(t, 100000-20000-4, l.Cash(), 1e-9)
	assert.InDelta(t, 4.0, l.Fees(), 1e-9)
	assert.Equal(t, SideBuy, tr.Side)
	assert.True(t, tr.IsOpening())
	assert.Equal(t, ReasonSignalEntry, tr.Reason)
	assert.Equal(t, int64(200), l.OpenQuantity("AAPL"))
	assert.Greater(t, l.Version(), v0)

	p, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 20004.0, p.CostBasis, 1e-9)
	assert.InDelta(t, 100.0, p.PeakPrice, 1e-9)
	assert.NoError(t, l.Check())
}

func TestOpenRejectsWithoutMutation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  OpenRequest
		want error
	}{
		{"zero quantity", OpenRequest{Ticker: "MSFT", Quantity: 0, Price: 10}, ErrBadQuantity},
		{"bad price", OpenRequest{Ticker: "MSFT", Quantity: 1, Price: 0}, ErrBadPrice},
		{"duplicate", OpenRequest{Ticker: "AAPL", Quantity: 1, Price: 10}, ErrPositionExists},
		{"too expensive", OpenRequest{Ticker: "MSFT", Quantity: 1000, Price: 1000}, ErrNegativeCash},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newLedger(t, 100000)
			openAAPL(t, l, 10, 100, 0)
			cash, trades, v := l.Cash(), l.TradeCount(), l.Version()

			_, err := l.Open(tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, cash, l.Cash())
			assert.Equal(t, trades, l.TradeCount())
			assert.Equal(t, v, l.Version())
		})
	}
}

func TestCloseRealizesGrossPL(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 100000)
	openAAPL(t, l, 200, 100, 0)

	tr, err := l.Close(CloseRequest{
		ID:     "T-stop",
		Ticker: "AAPL",
		Side:   SideStop,
		Price:  94,
		Time:   t0.Add(24 * time.Hour),
		Reason: ReasonStopLoss,
	})
	require.NoError(t, err)

	require.NotNil(t, tr.RealizedPL)
	assert.InDelta(t, -1200.0, *tr.RealizedPL, 1e-9)
	assert.InDelta(t, 100.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, -6.0, tr.ReturnPct(), 1e-9)
	assert.InDelta(t, 98800.0, l.Cash(), 1e-9)
	assert.Equal(t, int64(0), l.OpenQuantity("AAPL"))
	assert.Equal(t, 0, l.OpenCount())
	assert.InDelta(t, -1200.0, l.RealizedPL(), 1e-9)
}

func TestCloseErrors(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 1000)
	_, err := l.Close(CloseRequest{Ticker: "AAPL", Side: SideSell, Price: 10})
	assert.ErrorIs(t, err, ErrNoPosition)

	openAAPL(t, l, 1, 100, 0)
	_, err = l.Close(CloseRequest{Ticker: "AAPL", Side: SideBuy, Price: 10})
	assert.Error(t, err)
	_, err = l.Close(CloseRequest{Ticker: "AAPL", Side: SideSell, Price: -1})
	assert.ErrorIs(t, err, ErrBadPrice)
}

func TestEquityUsesMarks(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 10000)
	openAAPL(t, l, 10, 100, 0)
	assert.InDelta(t, 10000.0, l.Equity(), 1e-9)

	require.NoError(t, l.SetMark("AAPL", 110))
	assert.InDelta(t, 10100.0, l.Equity(), 1e-9)
	assert.InDelta(t, 100.0, l.UnrealizedPL(), 1e-9)

	views := l.PositionViews()
	require.Len(t, views, 1)
	assert.InDelta(t, 110.0, views[0].Mark, 1e-9)
	assert.InDelta(t, 10.0, views[0].UnrealizedPLPct, 1e-9)

	assert.Error(t, l.SetMark("AAPL", 0))
}

func TestHighWaterMarkNeverFalls(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 1000)
	for _, eq := range []float64{1100, 900, 1200, 1150, 50} {
		before := l.HighWaterMark()
		l.Observe(eq)
		assert.GreaterOrEqual(t, l.HighWaterMark(), before)
	}
	assert.InDelta(t, 1200.0, l.HighWaterMark(), 1e-9)
}

func TestDrawdownFlagIsSticky(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 1000)
	l.SetBreakers(false, true)
	assert.True(t, l.MaxDrawdownExceeded())

	l.SetBreakers(false, false)
	l.BeginCycle()
	assert.True(t, l.MaxDrawdownExceeded())

	l.ClearDrawdownHalt()
	assert.False(t, l.MaxDrawdownExceeded())
}

func TestBeginCycleResetsDailyLoss(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 1000)
	openAAPL(t, l, 5, 100, 0)
	require.NoError(t, l.SetMark("AAPL", 80))
	l.SetBreakers(true, false)

	l.BeginCycle()
	assert.False(t, l.DailyLossExceeded())
	assert.InDelta(t, 900.0, l.DailyStartEquity(), 1e-9)
	assert.Equal(t, 1, l.Cycle())
}

func TestRaiseStopOnlyRatchetsUp(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 10000)
	openAAPL(t, l, 10, 100, 0)

	assert.True(t, l.RaiseStop("AAPL", 120, 115.2))
	assert.False(t, l.RaiseStop("AAPL", 110, 105.6))

	p, _ := l.Position("AAPL")
	assert.InDelta(t, 115.2, p.StopLoss, 1e-9)
	assert.InDelta(t, 120.0, p.PeakPrice, 1e-9)
	assert.False(t, l.RaiseStop("MSFT", 1, 1))
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 10000)
	openAAPL(t, l, 10, 100, 0)

	c := l.Clone()
	_, err := c.Close(CloseRequest{Ticker: "AAPL", Side: SideSell, Price: 105, Reason: ReasonSignalExit})
	require.NoError(t, err)

	assert.Equal(t, int64(10), l.OpenQuantity("AAPL"))
	assert.Equal(t, 1, l.TradeCount())
	assert.Equal(t, 2, c.TradeCount())
	assert.NotEqual(t, l.Cash(), c.Cash())
}

func TestRecentTrades(t *testing.T) {
	t.Parallel()

	l := newLedger(t, 10000)
	openAAPL(t, l, 1, 100, 0)
	_, err := l.Close(CloseRequest{ID: "2", Ticker: "AAPL", Side: SideSell, Price: 101})
	require.NoError(t, err)
	openAAPL(t, l, 1, 100, 0)

	recent := l.RecentTrades(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ID)
	assert.Len(t, l.RecentTrades(10), 3)
	assert.Nil(t, l.RecentTrades(0))
}
