package report

import (
	"math"
	"time"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
)

// TradingDaysPerYear annualises daily equity curves.
const TradingDaysPerYear = 252

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// TradeStats summarises closed trades. Return figures are percent moves
// from entry to exit; money figures are gross realized P&L.
type TradeStats struct {
	Trades       int     `json:"trades"`
	Closed       int     `json:"closed"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"` // 0..1
	AvgGainPct   float64 `json:"avg_gain_pct"`
	AvgLossPct   float64 `json:"avg_loss_pct"`
	BestPct      float64 `json:"best_pct"`
	WorstPct     float64 `json:"worst_pct"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"` // positive
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"` // negative
	Fees         float64 `json:"fees"`
	Kelly        float64 `json:"kelly"` // advisory half-Kelly fraction
}

// AnalyzeTrades computes TradeStats over a trade log. Opening trades only
// contribute their fees.
func AnalyzeTrades(trades []portfolio.Trade) TradeStats {
	s := TradeStats{Trades: len(trades)}

	var gainSum, lossSum float64
	first := true
	for _, t := range trades {
		s.Fees += t.Fee
		if t.IsOpening() {
			continue
		}
		s.Closed++

		pl := t.PL()
		ret := t.ReturnPct()
		switch {
		case pl > 0:
			s.Wins++
			s.GrossProfit += pl
			gainSum += ret
		case pl < 0:
			s.Losses++
			s.GrossLoss += -pl
			lossSum += ret
		}
		if first || ret > s.BestPct {
			s.BestPct = ret
		}
		if first || ret < s.WorstPct {
			s.WorstPct = ret
		}
		first = false
	}

	if s.Closed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closed)
	}
	if s.Wins > 0 {
		s.AvgGainPct = gainSum / float64(s.Wins)
		s.AvgWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPct = lossSum / float64(s.Losses)
		s.AvgLoss = -s.GrossLoss / float64(s.Losses)
	}
	// Left at zero without losses so the value stays JSON-encodable.
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	s.Kelly = risk.KellyFraction(s.WinRate, s.AvgWin, s.AvgLoss)
	return s
}

// CurveStats summarises an equity curve. Percent fields are in percent.
type CurveStats struct {
	Periods        int       `json:"periods"`
	TotalReturnPct float64   `json:"total_return_pct"`
	CAGRPct        float64   `json:"cagr_pct"`
	Sharpe         float64   `json:"sharpe"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	MaxDrawdownAt  time.Time `json:"max_drawdown_at"`
}

// AnalyzeCurve computes return, CAGR, Sharpe and max drawdown from per-period
// returns of the curve, annualised with periodsPerYear.
func AnalyzeCurve(curve []EquityPoint, periodsPerYear int) CurveStats {
	var s CurveStats
	if len(curve) < 2 || curve[0].Equity <= 0 {
		return s
	}
	if periodsPerYear <= 0 {
		periodsPerYear = TradingDaysPerYear
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	s.Periods = len(returns)

	growth := curve[len(curve)-1].Equity / curve[0].Equity
	s.TotalReturnPct = (growth - 1) * 100
	if s.Periods > 0 && growth > 0 {
		s.CAGRPct = (math.Pow(growth, float64(periodsPerYear)/float64(s.Periods)) - 1) * 100
	}

	mean, sd := meanStd(returns)
	if sd > 0 {
		s.Sharpe = math.Sqrt(float64(periodsPerYear)) * mean / sd
	}

	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := risk.Drawdown(peak, p.Equity) * 100; dd > s.MaxDrawdownPct {
			s.MaxDrawdownPct = dd
			s.MaxDrawdownAt = p.Time
		}
	}
	return s
}

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// Performance combines trade and curve statistics.
type Performance struct {
	TradeStats
	Curve CurveStats `json:"curve"`
}

func Analyze(trades []portfolio.Trade, curve []EquityPoint, periodsPerYear int) Performance {
	return Performance{
		TradeStats: AnalyzeTrades(trades),
		Curve:      AnalyzeCurve(curve, periodsPerYear),
	}
}
