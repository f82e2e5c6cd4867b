package risk

// BreakerState is the outcome of one valuation's circuit-breaker check.
type BreakerState struct {
	DailyReturn         float64 // (equity - daily start) / daily start
	Drawdown            float64 // (hwm - equity) / hwm
	DailyLossExceeded   bool
	MaxDrawdownExceeded bool
}

// Breakers evaluates both circuit breakers for one valuation. The caller owns
// stickiness: a false MaxDrawdownExceeded here does not clear a halt.
func (c *Config) Breakers(equity, dailyStart, hwm float64) BreakerState {
	s := BreakerState{
		DailyReturn: DailyReturn(dailyStart, equity),
		Drawdown:    Drawdown(hwm, equity),
	}
	if dailyStart > 0 {
		s.DailyLossExceeded = s.DailyReturn <= -c.MaxDailyLossPct
	}
	if hwm > 0 {
		s.MaxDrawdownExceeded = s.Drawdown >= c.MaxDrawdownPct
	}
	return s
}

// Drawdown is the fractional decline of equity from the running peak.
func Drawdown(hwm, equity float64) float64 {
	if hwm <= 0 {
		return 0
	}
	dd := (hwm - equity) / hwm
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyReturn is the fractional change of equity since the cycle opened.
func DailyReturn(start, equity float64) float64 {
	if start <= 0 {
		return 0
	}
	return (equity - start) / start
}
