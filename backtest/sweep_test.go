package backtest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep(t *testing.T) {
	t.Parallel()

	base, err := portfolio.NewLedger(100000)
	require.NoError(t, err)

	bars := []feed.Bar{
		bar(1, "AAPL", 100, 100),
		bar(2, "AAPL", 100, 100),
		bar(3, "AAPL", 98, 94),
	}

	wide := risk.DefaultParams()
	wide.StopLossPct = 0.10
	broken := risk.DefaultParams()
	broken.StopLossPct = 0

	variants := []Variant{
		{Name: "default", Params: risk.DefaultParams()},
		{Name: "wide-stop", Params: wide},
		{Name: "broken", Params: broken},
		{Name: "fees", Params: risk.DefaultParams(), FeeRate: 0.001},
	}

	out := Sweep(context.Background(), base, bars, buyOnDay1(), variants, Options{}, 2, zerolog.Nop())
	require.Len(t, out, len(variants))
	for i, v := range variants {
		assert.Equal(t, v.Name, out[i].Variant.Name)
	}

	require.NoError(t, out[0].Err)
	assert.InDelta(t, 98800, out[0].Result.EndEquity, 1e-9)

	// A 10% stop at 90 survives the drop to 94.
	require.NoError(t, out[1].Err)
	assert.Equal(t, 1, out[1].Result.Status.ActivePositions)
	assert.InDelta(t, 98800, out[1].Result.EndEquity, 1e-9)

	var ce *risk.ConfigError
	assert.ErrorAs(t, out[2].Err, &ce)

	require.NoError(t, out[3].Err)
	assert.Less(t, out[3].Result.EndEquity, out[0].Result.EndEquity)

	// The base ledger is never touched.
	assert.Equal(t, 100000.0, base.Cash())
	assert.Equal(t, 0, base.TradeCount())
}
