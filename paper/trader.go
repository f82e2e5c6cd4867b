// Package paper runs the live paper trading loop: on every tick it pulls a
// price and a model signal per watchlist ticker and hands them to the
// execution engine.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/sim"
)

// Outcome is what happened to one ticker in a cycle. Skipped holds the
// reason a ticker was not traded.
type Outcome struct {
	Ticker  string               `json:"ticker"`
	Price   float64              `json:"price,omitempty"`
	Result  *sim.ExecutionResult `json:"result,omitempty"`
	Skipped string               `json:"skipped,omitempty"`
}

// CycleReport summarises one RunCycle.
type CycleReport struct {
	AsOf     time.Time         `json:"as_of"`
	NewDay   bool              `json:"new_day"`
	Outcomes []Outcome         `json:"outcomes"`
	Stops    []portfolio.Trade `json:"stops,omitempty"`
	Snapshot sim.Snapshot      `json:"snapshot"`
}

// Executed counts tickers whose signal produced a trade.
func (r CycleReport) Executed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result != nil && o.Result.Executed() {
			n++
		}
	}
	return n
}

// Skipped counts tickers that were not evaluated.
func (r CycleReport) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped != "" {
			n++
		}
	}
	return n
}

type Trader struct {
	Engine    *sim.Engine
	Prices    feed.PriceSource
	Signals   feed.SignalSource
	Watchlist []string
	Log       zerolog.Logger

	// Location decides where a trading day starts. Nil means UTC.
	Location *time.Location

	day     time.Time
	started bool
}

// RunCycle evaluates every watchlist ticker once as of asOf. A ticker whose
// price or signal cannot be fetched, or whose price is invalid, is skipped;
// it never aborts the cycle. A fetched price still feeds the stop check and
// valuation when only the signal fails. Open positions without a fresh price
// keep their last mark.
func (t *Trader) RunCycle(ctx context.Context, asOf time.Time) (CycleReport, error) {
	if t.Engine == nil || t.Prices == nil || t.Signals == nil {
		return CycleReport{}, fmt.Errorf("paper: Engine, Prices and Signals are required")
	}

	rep := CycleReport{AsOf: asOf}
	if d := t.tradingDay(asOf); !t.started || !d.Equal(t.day) {
		t.day, t.started = d, true
		t.Engine.BeginCycle(asOf)
		rep.NewDay = true
	}

	prices := make(map[string]float64, len(t.Watchlist))
	for _, ticker := range t.Watchlist {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		o := t.evaluate(ctx, ticker, asOf, prices)
		rep.Outcomes = append(rep.Outcomes, o)
	}

	rep.Stops = t.Engine.CheckStopLosses(prices, asOf)
	rep.Snapshot = t.Engine.Revalue(prices, asOf)

	t.Log.Info().
		Time("as_of", asOf).
		Int("tickers", len(t.Watchlist)).
		Int("executed", rep.Executed()).
		Int("skipped", rep.Skipped()).
		Int("stops", len(rep.Stops)).
		Float64("equity", rep.Snapshot.Equity).
		Bool("halted", rep.Snapshot.Halted()).
		Msg("paper cycle")
	return rep, nil
}

func (t *Trader) evaluate(ctx context.Context, ticker string, asOf time.Time, prices map[string]float64) Outcome {
	o := Outcome{Ticker: ticker}
	log := t.Log.With().Str("ticker", ticker).Logger()

	px, err := t.Prices.Price(ctx, ticker, asOf)
	if err != nil {
		o.Skipped = "price: " + err.Error()
		if feed.IsNoData(err) {
			log.Debug().Err(err).Msg("no price, skipping")
		} else {
			log.Warn().Err(err).Msg("price fetch failed, skipping")
		}
		return o
	}
	o.Price = px
	if px > 0 && !math.IsInf(px, 0) {
		// Stops and valuation use the price even if the signal fails below.
		prices[ticker] = px
	}

	sig, err := t.Signals.Signal(ctx, ticker, asOf)
	if err != nil {
		o.Skipped = "signal: " + err.Error()
		log.Warn().Err(err).Msg("signal fetch failed, skipping")
		return o
	}
	if sig.AsOf.After(asOf) {
		o.Skipped = "signal: " + feed.ErrLookAhead.Error()
		log.Warn().Time("signal_as_of", sig.AsOf).Msg("signal newer than cycle, skipping")
		return o
	}

	res, err := t.Engine.ExecuteTrade(ticker, sig.Action, px, asOf)
	if err != nil {
		o.Skipped = err.Error()
		log.Warn().Err(err).Msg("execution failed, skipping")
		return o
	}
	o.Result = &res

	if res.Executed() {
		log.Info().Str("signal", string(sig.Action)).Str("side", string(res.Trade.Side)).Msg("paper trade")
	}
	return o
}

func (t *Trader) tradingDay(ts time.Time) time.Time {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Run executes a cycle immediately and then every interval until ctx is
// cancelled. Cycle errors are logged; only cancellation stops the loop.
func (t *Trader) Run(ctx context.Context, interval time.Duration, now func() time.Time) error {
	if interval <= 0 {
		return fmt.Errorf("paper: interval must be positive")
	}
	if now == nil {
		now = time.Now
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if _, err := t.RunCycle(ctx, now()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			t.Log.Error().Err(err).Msg("paper cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
