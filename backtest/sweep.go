package backtest

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
	"golang.org/x/sync/errgroup"
)

// Variant is one parameter set in a sweep.
type Variant struct {
	Name    string
	Params  risk.Params
	FeeRate float64
}

type SweepResult struct {
	Variant Variant
	Result  Result
	Err     error
}

// Sweep replays the same bars once per variant. Every variant gets its own
// engine on a clone of base, so runs share nothing but the read-only bars
// and signal source. Results come back in variant order; a failing variant
// does not stop the others. parallel <= 0 means GOMAXPROCS.
func Sweep(ctx context.Context, base *portfolio.Ledger, bars []feed.Bar, signals feed.SignalSource,
	variants []Variant, opts Options, parallel int, log zerolog.Logger) []SweepResult {

	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	out := make([]SweepResult, len(variants))
	var g errgroup.Group
	g.SetLimit(parallel)

	for i, v := range variants {
		out[i].Variant = v
		g.Go(func() error {
			out[i].Result, out[i].Err = runVariant(ctx, base, bars, signals, v, opts, log)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func runVariant(ctx context.Context, base *portfolio.Ledger, bars []feed.Bar, signals feed.SignalSource,
	v Variant, opts Options, log zerolog.Logger) (Result, error) {

	cfg, err := risk.NewConfig(v.Params)
	if err != nil {
		return Result{}, fmt.Errorf("variant %q: %w", v.Name, err)
	}
	l := log.With().Str("variant", v.Name).Logger()
	e, err := sim.NewEngineFromState(cfg, base.Clone(), sim.WithFeeRate(v.FeeRate), sim.WithLogger(l))
	if err != nil {
		return Result{}, fmt.Errorf("variant %q: %w", v.Name, err)
	}

	r := &Runner{
		Engine:  e,
		Bars:    feed.NewSliceFeed(bars),
		Signals: signals,
		Options: opts,
		Log:     l,
	}
	res, err := r.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("variant %q: %w", v.Name, err)
	}
	return res, nil
}
