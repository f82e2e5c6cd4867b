// Package backtest replays historical bars and model signals through the
// execution engine.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
)

// ErrOutOfOrder aborts a replay whose bars go back in time or repeat a
// ticker within one timestamp.
var ErrOutOfOrder = errors.New("backtest: bars out of order")

// Options controls how the runner fills and finishes.
type Options struct {
	// FillAtClose fills signals at the bar close instead of the open.
	FillAtClose bool
	// CloseAtEnd liquidates open positions at the final closes.
	CloseAtEnd bool
	// PeriodsPerYear annualises the performance metrics. Zero means
	// report.TradingDaysPerYear.
	PeriodsPerYear int
}

func (o Options) fillAt() string {
	if o.FillAtClose {
		return "close"
	}
	return "open"
}

// Runner drives an engine forward through a bar feed. Bars sharing a
// timestamp form one cycle:
//  1. engine.BeginCycle
//  2. per bar: lagged signal, engine.ExecuteTrade at the fill price
//  3. engine.CheckStopLosses at the closes
//  4. engine.Revalue at the closes
type Runner struct {
	Engine  *sim.Engine
	Bars    feed.BarFeed
	Signals feed.SignalSource
	Options Options
	Log     zerolog.Logger
}

// Run replays the whole feed. A look-ahead signal, an out-of-order bar or a
// failing bar feed aborts the run; an invalid price or a failed signal fetch
// only skips that ticker's bar.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Bars == nil {
		return Result{}, fmt.Errorf("backtest: Bars is required")
	}
	if r.Signals == nil {
		return Result{}, fmt.Errorf("backtest: Signals is required")
	}
	defer r.Bars.Close()

	res := Result{
		StartEquity: r.Engine.Status().Equity,
		Risk:        r.Engine.Config().Params(),
		FeeRate:     r.Engine.FeeRate(),
		FillAt:      r.Options.fillAt(),
		Skipped:     make(map[string]int),
	}
	lag := feed.NewLagged(r.Signals)

	var (
		group []feed.Bar
		last  map[string]float64
	)
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		closes, err := r.cycle(ctx, lag, group, &res)
		if err != nil {
			return err
		}
		last = closes
		group = group[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b, ok, err := r.Bars.Next()
		if err != nil {
			return res, fmt.Errorf("backtest: read bar: %w", err)
		}
		if !ok {
			break
		}
		res.Bars++

		if len(group) > 0 {
			ts := group[0].Time
			switch {
			case b.Time.Before(ts):
				return res, fmt.Errorf("%w: %s at %s after %s", ErrOutOfOrder,
					b.Ticker, b.Time.Format(time.RFC3339), ts.Format(time.RFC3339))
			case b.Time.After(ts):
				if err := flush(); err != nil {
					return res, err
				}
			default:
				for _, g := range group {
					if g.Ticker == b.Ticker {
						return res, fmt.Errorf("%w: duplicate %s bar at %s", ErrOutOfOrder,
							b.Ticker, b.Time.Format(time.RFC3339))
					}
				}
			}
		}
		group = append(group, b)
	}
	if err := flush(); err != nil {
		return res, err
	}

	if r.Options.CloseAtEnd && !res.End.IsZero() {
		if _, err := r.Engine.CloseAll(portfolio.ReasonEndOfReplay, res.End); err != nil {
			return res, fmt.Errorf("backtest: close at end: %w", err)
		}
		snap := r.Engine.Revalue(last, res.End)
		res.Equity[len(res.Equity)-1].Equity = snap.Equity
	}

	r.finish(&res)
	return res, nil
}

// cycle runs one timestamp and returns the valid closes it marked.
func (r *Runner) cycle(ctx context.Context, lag *feed.Lagged, bars []feed.Bar, res *Result) (map[string]float64, error) {
	ts := bars[0].Time
	if res.Start.IsZero() {
		res.Start = ts
	}
	res.End = ts
	res.Cycles++

	r.Engine.BeginCycle(ts)

	closes := make(map[string]float64, len(bars))
	for _, b := range bars {
		// Stops and valuation see the close even when the bar is not traded.
		if b.Close > 0 && !math.IsInf(b.Close, 0) {
			closes[b.Ticker] = b.Close
		}

		sig, err := lag.ForBar(ctx, b.Ticker, b.Time)
		if err != nil {
			if errors.Is(err, feed.ErrLookAhead) || ctx.Err() != nil {
				return nil, fmt.Errorf("backtest: signal for %s: %w", b.Ticker, err)
			}
			res.Skipped[b.Ticker]++
			r.Log.Warn().Err(err).Str("ticker", b.Ticker).Time("at", b.Time).Msg("signal unavailable, skipping bar")
			continue
		}

		px := b.Price(r.Options.FillAtClose)
		if _, err := r.Engine.ExecuteTrade(b.Ticker, sig.Action, px, b.Time); err != nil {
			if !errors.Is(err, risk.ErrInvalidPrice) {
				return nil, err
			}
			res.Skipped[b.Ticker]++
			r.Log.Warn().Err(err).Str("ticker", b.Ticker).Time("at", b.Time).Msg("skipping bar")
		}
	}

	r.Engine.CheckStopLosses(closes, ts)
	snap := r.Engine.Revalue(closes, ts)
	res.Equity = append(res.Equity, report.EquityPoint{Time: ts, Equity: snap.Equity})
	return closes, nil
}

func (r *Runner) finish(res *Result) {
	state := r.Engine.State()
	res.Status = report.StatusOf(state)
	res.Trades = state.Trades()
	res.EndEquity = res.Status.Equity

	ppy := r.Options.PeriodsPerYear
	if ppy <= 0 {
		ppy = report.TradingDaysPerYear
	}
	res.Performance = report.Analyze(res.Trades, res.Equity, ppy)

	res.Reconciliation = report.ReconcileLedger(state)
	if err := res.Reconciliation.Err(); err != nil {
		r.Log.Error().Err(err).Msg("P&L does not reconcile")
	}

	r.Log.Info().
		Time("start", res.Start).
		Time("end", res.End).
		Int("bars", res.Bars).
		Int("cycles", res.Cycles).
		Int("trades", len(res.Trades)).
		Float64("equity", res.EndEquity).
		Float64("return_pct", res.Status.TotalReturnPct).
		Msg("backtest complete")
}
