package risk

import (
	"fmt"
	"math"
)

// Config is the immutable bundle of risk parameters. Build it with NewConfig
// and share it by pointer; the engine never copies it per trade.
type Config struct {
	MaxPositionSizePct float64 // (0,1]  cap on a single position as a fraction of equity
	StopLossPct        float64 // (0,1)  stop distance below entry
	MaxDailyLossPct    float64 // (0,1)  daily loss breaker
	RiskPerTradePct    float64 // (0,1]  equity at risk if the stop is hit
	MaxDrawdownPct     float64 // (0,1)  drawdown breaker, sticky

	TakeProfitPct   float64 // >= 0, 0 disables
	TrailingStopPct float64 // [0,1), 0 disables
}

// Params is the mutable form used to build a Config.
type Params Config

// DefaultParams mirrors the defaults of the beginner paper-trading setup.
func DefaultParams() Params {
	return Params{
		MaxPositionSizePct: 0.20,
		StopLossPct:        0.05,
		MaxDailyLossPct:    0.05,
		RiskPerTradePct:    0.02,
		MaxDrawdownPct:     0.15,
	}
}

// ConfigError reports an out-of-range parameter. It is fatal at startup.
type ConfigError struct {
	Field string
	Value float64
	Want  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("risk config: %s=%v must be in %s", e.Field, e.Value, e.Want)
}

// NewConfig validates p and returns the immutable Config.
func NewConfig(p Params) (*Config, error) {
	checks := []struct {
		field     string
		v         float64
		inclusive bool // upper bound 1 allowed
	}{
		{"max_position_size_pct", p.MaxPositionSizePct, true},
		{"stop_loss_pct", p.StopLossPct, false},
		{"max_daily_loss_pct", p.MaxDailyLossPct, false},
		{"risk_per_trade_pct", p.RiskPerTradePct, true},
		{"max_drawdown_pct", p.MaxDrawdownPct, false},
	}
	for _, c := range checks {
		if !fraction(c.v, c.inclusive) {
			want := "(0,1)"
			if c.inclusive {
				want = "(0,1]"
			}
			return nil, &ConfigError{Field: c.field, Value: c.v, Want: want}
		}
	}
	if p.TakeProfitPct < 0 || math.IsNaN(p.TakeProfitPct) || math.IsInf(p.TakeProfitPct, 0) {
		return nil, &ConfigError{Field: "take_profit_pct", Value: p.TakeProfitPct, Want: "[0,inf)"}
	}
	if p.TrailingStopPct < 0 || p.TrailingStopPct >= 1 || math.IsNaN(p.TrailingStopPct) {
		return nil, &ConfigError{Field: "trailing_stop_pct", Value: p.TrailingStopPct, Want: "[0,1)"}
	}

	c := Config(p)
	return &c, nil
}

// MustConfig is NewConfig for tests and constants.
func MustConfig(p Params) *Config {
	c, err := NewConfig(p)
	if err != nil {
		panic(err)
	}
	return c
}

// Params returns a mutable copy, for deriving a variant config.
func (c *Config) Params() Params {
	return Params(*c)
}

// StopLossPrice is the stop for a long entered at entry.
func (c *Config) StopLossPrice(entry float64) float64 {
	return entry * (1 - c.StopLossPct)
}

// TakeProfitPrice is the profit target for a long entered at entry, or 0
// when take profit is disabled.
func (c *Config) TakeProfitPrice(entry float64) float64 {
	if c.TakeProfitPct <= 0 {
		return 0
	}
	return entry * (1 + c.TakeProfitPct)
}

// TrailingStop returns the stop implied by a peak price, or 0 when trailing
// is disabled.
func (c *Config) TrailingStop(peak float64) float64 {
	if c.TrailingStopPct <= 0 {
		return 0
	}
	return peak * (1 - c.TrailingStopPct)
}

func fraction(v float64, inclusive bool) bool {
	if math.IsNaN(v) || v <= 0 {
		return false
	}
	if inclusive {
		return v <= 1
	}
	return v < 1
}
