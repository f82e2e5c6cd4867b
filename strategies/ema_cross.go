// Package strategies generates baseline model signals from bars so a replay
// can run without an external model.
package strategies

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/risk"
)

// EMACrossConfig configures the crossover generator. An RSI filter is
// applied when Overbought or Oversold is set.
type EMACrossConfig struct {
	FastPeriod int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod int     `json:"slow_period" yaml:"slow_period"`
	RSIPeriod  int     `json:"rsi_period" yaml:"rsi_period"`
	Overbought float64 `json:"overbought" yaml:"overbought"` // suppress BUY above this RSI
	Oversold   float64 `json:"oversold" yaml:"oversold"`     // suppress SELL below this RSI
}

// EMACrossDefaults matches the 10/20 EMA pair with a 14 period RSI and no
// filter.
func EMACrossDefaults() EMACrossConfig {
	return EMACrossConfig{FastPeriod: 10, SlowPeriod: 20, RSIPeriod: 14}
}

func (c EMACrossConfig) Validate() error {
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 {
		return fmt.Errorf("ema periods must be positive, got %d/%d", c.FastPeriod, c.SlowPeriod)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("fast period %d must be shorter than slow period %d", c.FastPeriod, c.SlowPeriod)
	}
	if (c.Overbought > 0 || c.Oversold > 0) && c.RSIPeriod <= 0 {
		return fmt.Errorf("rsi filter needs a positive rsi_period")
	}
	return nil
}

// EMACross emits BUY when the fast EMA crosses above the slow EMA, SELL on
// the opposite cross and HOLD otherwise. One instance tracks one ticker.
type EMACross struct {
	cfg  EMACrossConfig
	fast *indicators.ExponentialMA
	slow *indicators.ExponentialMA
	rsi  *indicators.RSI

	lastDiff     float64
	haveLastDiff bool
}

func NewEMACross(cfg EMACrossConfig) (*EMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &EMACross{
		cfg:  cfg,
		fast: indicators.NewEMA(cfg.FastPeriod),
		slow: indicators.NewEMA(cfg.SlowPeriod),
	}
	if cfg.RSIPeriod > 0 {
		s.rsi = indicators.NewRSI(cfg.RSIPeriod)
	}
	return s, nil
}

func (s *EMACross) Name() string {
	return fmt.Sprintf("EMACross(%d,%d)", s.cfg.FastPeriod, s.cfg.SlowPeriod)
}

// Update consumes a closed price and returns the signal for that close.
func (s *EMACross) Update(c float64) risk.Signal {
	s.fast.Update(c)
	s.slow.Update(c)
	if s.rsi != nil {
		s.rsi.Update(c)
	}
	if !s.fast.Ready() || !s.slow.Ready() {
		return risk.Hold
	}

	diff := s.fast.Value() - s.slow.Value()
	prev, had := s.lastDiff, s.haveLastDiff
	s.lastDiff, s.haveLastDiff = diff, true
	if !had {
		return risk.Hold
	}

	switch {
	case prev <= 0 && diff > 0:
		if s.filtered(func(v float64) bool { return s.cfg.Overbought > 0 && v > s.cfg.Overbought }) {
			return risk.Hold
		}
		return risk.Buy
	case prev >= 0 && diff < 0:
		if s.filtered(func(v float64) bool { return s.cfg.Oversold > 0 && v < s.cfg.Oversold }) {
			return risk.Hold
		}
		return risk.Sell
	}
	return risk.Hold
}

func (s *EMACross) filtered(block func(float64) bool) bool {
	return s.rsi != nil && s.rsi.Ready() && block(s.rsi.Value())
}

// Generate runs one generator per ticker over bars and returns a signal for
// every bar, stamped at the bar time. Bars are processed in time order.
func Generate(cfg EMACrossConfig, bars []feed.Bar) ([]feed.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sorted := make([]feed.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	gens := map[string]*EMACross{}
	out := make([]feed.Signal, 0, len(sorted))
	for _, b := range sorted {
		g, ok := gens[b.Ticker]
		if !ok {
			g, _ = NewEMACross(cfg)
			gens[b.Ticker] = g
		}
		out = append(out, feed.Signal{Ticker: b.Ticker, Action: g.Update(b.Close), AsOf: b.Time})
	}
	return out, nil
}

// Populate generates signals from bars and records them in store.
func Populate(cfg EMACrossConfig, bars []feed.Bar, store *feed.Store) (int, error) {
	sigs, err := Generate(cfg, bars)
	if err != nil {
		return 0, err
	}
	for _, s := range sigs {
		store.AddSignal(s.Ticker, s.AsOf, s.Action)
	}
	return len(sigs), nil
}
