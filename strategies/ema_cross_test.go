package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var crossCloses = []float64{10, 10, 10, 13, 7, 7}

func TestEMACrossSignals(t *testing.T) {
	s, err := NewEMACross(EMACrossConfig{FastPeriod: 2, SlowPeriod: 3})
	require.NoError(t, err)
	assert.Equal(t, "EMACross(2,3)", s.Name())

	var got []risk.Signal
	for _, c := range crossCloses {
		got = append(got, s.Update(c))
	}
	assert.Equal(t, []risk.Signal{risk.Hold, risk.Hold, risk.Hold, risk.Buy, risk.Sell, risk.Hold}, got)
}

func TestEMACrossRSIFilter(t *testing.T) {
	s, err := NewEMACross(EMACrossConfig{FastPeriod: 2, SlowPeriod: 3, RSIPeriod: 2, Overbought: 50})
	require.NoError(t, err)

	var got []risk.Signal
	for _, c := range crossCloses {
		got = append(got, s.Update(c))
	}
	// RSI is 100 on the up cross, so the BUY is held back.
	assert.Equal(t, risk.Hold, got[3])
	assert.Equal(t, risk.Sell, got[4])
}

func TestEMACrossConfigValidate(t *testing.T) {
	assert.NoError(t, EMACrossDefaults().Validate())
	assert.Error(t, EMACrossConfig{FastPeriod: 0, SlowPeriod: 3}.Validate())
	assert.ErrorContains(t, EMACrossConfig{FastPeriod: 5, SlowPeriod: 5}.Validate(), "shorter")
	assert.ErrorContains(t, EMACrossConfig{FastPeriod: 2, SlowPeriod: 3, Overbought: 70}.Validate(), "rsi_period")

	_, err := NewEMACross(EMACrossConfig{FastPeriod: 3, SlowPeriod: 2})
	assert.Error(t, err)
}

func TestGeneratePerTicker(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []feed.Bar
	for i, c := range crossCloses {
		day := t0.AddDate(0, 0, i)
		bars = append(bars,
			feed.Bar{Time: day, Ticker: "MSFT", Close: 50},
			feed.Bar{Time: day, Ticker: "AAPL", Close: c},
		)
	}
	// Input order must not matter.
	bars[0], bars[len(bars)-1] = bars[len(bars)-1], bars[0]

	cfg := EMACrossConfig{FastPeriod: 2, SlowPeriod: 3}
	sigs, err := Generate(cfg, bars)
	require.NoError(t, err)
	require.Len(t, sigs, len(bars))

	byTicker := map[string][]risk.Signal{}
	for _, s := range sigs {
		byTicker[s.Ticker] = append(byTicker[s.Ticker], s.Action)
	}
	assert.Equal(t, []risk.Signal{risk.Hold, risk.Hold, risk.Hold, risk.Buy, risk.Sell, risk.Hold}, byTicker["AAPL"])
	for _, a := range byTicker["MSFT"] {
		assert.Equal(t, risk.Hold, a)
	}

	store := feed.NewStore()
	n, err := Populate(cfg, bars, store)
	require.NoError(t, err)
	assert.Equal(t, len(bars), n)

	sig, err := store.Signal(context.Background(), "AAPL", t0.AddDate(0, 0, 3).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, risk.Buy, sig.Action)
	assert.Equal(t, t0.AddDate(0, 0, 3), sig.AsOf)

	_, err = Generate(EMACrossConfig{}, bars)
	assert.Error(t, err)
}
