package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1+n, 0, 0, 0, 0, time.UTC)
}

func TestStoreAsOf(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	s.AddPrice("AAPL", day(2), 102)
	s.AddPrice("AAPL", day(0), 100)
	s.AddPrice("AAPL", day(1), 101)
	s.AddPrice("AAPL", day(1), 101.5) // replaces

	_, err := s.Price(ctx, "AAPL", day(-1))
	var nd *NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, "AAPL", nd.Ticker)

	px, err := s.Price(ctx, "AAPL", day(1).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 101.5, px)

	px, err = s.Price(ctx, "AAPL", day(9))
	require.NoError(t, err)
	assert.Equal(t, 102.0, px)

	s.AddSignal("MSFT", day(1), risk.Buy)
	sig, err := s.Signal(ctx, "MSFT", day(3))
	require.NoError(t, err)
	assert.Equal(t, risk.Buy, sig.Action)
	assert.True(t, sig.AsOf.Equal(day(1)))

	_, err = s.Signal(ctx, "AAPL", day(3))
	assert.True(t, IsNoData(err))

	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Tickers())
}

func TestLaggedUsesPreviousBar(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	s.AddSignal("AAPL", day(0), risk.Buy)
	s.AddSignal("AAPL", day(1), risk.Sell)

	l := NewLagged(s)

	sig, err := l.ForBar(ctx, "AAPL", day(0))
	require.NoError(t, err)
	assert.Equal(t, risk.Hold, sig.Action, "first bar is always HOLD")

	sig, err = l.ForBar(ctx, "AAPL", day(1))
	require.NoError(t, err)
	assert.Equal(t, risk.Buy, sig.Action, "bar 1 trades the bar 0 signal")

	sig, err = l.ForBar(ctx, "AAPL", day(2))
	require.NoError(t, err)
	assert.Equal(t, risk.Sell, sig.Action)

	_, err = l.ForBar(ctx, "AAPL", day(2))
	assert.Error(t, err, "repeated bar time")

	sig, err = l.ForBar(ctx, "MSFT", day(0))
	require.NoError(t, err)
	assert.Equal(t, risk.Hold, sig.Action)
	sig, err = l.ForBar(ctx, "MSFT", day(1))
	require.NoError(t, err)
	assert.Equal(t, risk.Hold, sig.Action, "no data holds")

	l.Reset()
	sig, err = l.ForBar(ctx, "AAPL", day(0))
	require.NoError(t, err)
	assert.Equal(t, risk.Hold, sig.Action)
}

func TestLaggedRejectsFutureSignal(t *testing.T) {
	t.Parallel()

	cheat := SignalFunc(func(_ context.Context, ticker string, asOf time.Time) (Signal, error) {
		return Signal{Ticker: ticker, Action: risk.Buy, AsOf: asOf.Add(24 * time.Hour)}, nil
	})

	l := NewLagged(cheat)
	_, err := l.ForBar(context.Background(), "AAPL", day(0))
	require.NoError(t, err)

	_, err = l.ForBar(context.Background(), "AAPL", day(1))
	assert.ErrorIs(t, err, ErrLookAhead)
}

func TestLoadBars(t *testing.T) {
	t.Parallel()

	in := `time,ticker,open,high,low,close,volume
2024-01-02,AAPL,100,101,99,100.5,1000

2024-01-02T00:00:00Z,MSFT,200,202,198,201,
`
	bars, err := LoadBars(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, Bar{Time: day(1), Ticker: "AAPL", Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000}, bars[0])
	assert.Equal(t, "MSFT", bars[1].Ticker)
	assert.Equal(t, 201.0, bars[1].Price(true))
	assert.Equal(t, 200.0, bars[1].Price(false))

	_, err = LoadBars(strings.NewReader("2024-01-02,AAPL,x,1,1,1\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = LoadBars(strings.NewReader("2024-01-02,AAPL,1\n"))
	assert.Error(t, err)
}

func TestLoadSignalsAndPrices(t *testing.T) {
	t.Parallel()

	s := NewStore()
	n, err := LoadSignals(strings.NewReader("date,ticker,signal\n2024-01-02,AAPL,buy\n2024-01-03,AAPL,HOLD\n"), s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = LoadPrices(strings.NewReader("2024-01-02,AAPL,100\n"), s)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sig, err := s.Signal(context.Background(), "AAPL", day(1))
	require.NoError(t, err)
	assert.Equal(t, risk.Buy, sig.Action)

	_, err = LoadSignals(strings.NewReader("2024-01-02,AAPL,SHORT\n"), s)
	assert.Error(t, err)
}

func TestCSVBarFeed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv")
	data := "time,ticker,open,high,low,close\n" +
		"2024-01-01,AAPL,1,1,1,1\n" +
		"2024-01-02,AAPL,2,2,2,2\n" +
		"2024-01-03,AAPL,3,3,3,3\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	f, err := NewCSVBarFeed(path, day(1), day(2))
	require.NoError(t, err)
	defer f.Close()

	b, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, b.Close)

	_, ok, err = f.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSliceFeed(t *testing.T) {
	t.Parallel()

	f := NewSliceFeed([]Bar{{Ticker: "A"}, {Ticker: "B"}})
	var got []string
	for {
		b, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, b.Ticker)
	}
	assert.Equal(t, []string{"A", "B"}, got)
	assert.NoError(t, f.Close())
}

func TestGuardTripsOnFaultsNotOnNoData(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var fail atomic.Bool
	prices := PriceFunc(func(_ context.Context, ticker string, asOf time.Time) (float64, error) {
		calls.Add(1)
		if fail.Load() {
			return 0, errors.New("upstream 503")
		}
		return 0, &NoDataError{Ticker: ticker, AsOf: asOf}
	})

	g := NewGuard(prices, nil, GuardSettings{RequestsPerSecond: 1000, Burst: 100, ConsecutiveFailures: 2}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Price(ctx, "AAPL", day(0))
		assert.True(t, IsNoData(err))
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())

	fail.Store(true)
	for i := 0; i < 2; i++ {
		_, err := g.Price(ctx, "AAPL", day(0))
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	before := calls.Load()
	_, err := g.Price(ctx, "AAPL", day(0))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, calls.Load(), "open breaker short-circuits")
}

func TestGuardPassesValues(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddPrice("AAPL", day(0), 123)
	s.AddSignal("AAPL", day(0), risk.Sell)

	g := NewGuard(s, s, GuardSettings{RequestsPerSecond: 1000, Burst: 10}, zerolog.Nop())
	px, err := g.Price(context.Background(), "AAPL", day(0))
	require.NoError(t, err)
	assert.Equal(t, 123.0, px)

	sig, err := g.Signal(context.Background(), "AAPL", day(0))
	require.NoError(t, err)
	assert.Equal(t, risk.Sell, sig.Action)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Price(ctx, "AAPL", day(0))
	assert.Error(t, err)
}
