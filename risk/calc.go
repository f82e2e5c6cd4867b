package risk

import (
	"github.com/shopspring/decimal"
)

// Sizing breaks down the position size computation.
type Sizing struct {
	Quantity    int64
	RiskCapital float64 // equity * risk_per_trade_pct
	PositionCap float64 // equity * max_position_size_pct
	RiskBound   float64 // shares allowed by the risk budget
	CapBound    float64 // shares allowed by the position cap
}

// Size computes
//
//	floor(min(equity*risk_per_trade / (price*stop_loss), equity*max_position / price))
//
// in decimal arithmetic so that an exact boundary such as 200.0 never floors
// to 199 through binary rounding. Quantities truncate toward zero.
func Size(equity, price float64, cfg *Config) Sizing {
	if equity <= 0 || price <= 0 {
		return Sizing{}
	}

	eq := decimal.NewFromFloat(equity)
	px := decimal.NewFromFloat(price)

	riskCapital := eq.Mul(decimal.NewFromFloat(cfg.RiskPerTradePct))
	positionCap := eq.Mul(decimal.NewFromFloat(cfg.MaxPositionSizePct))
	riskBound := riskCapital.Div(px.Mul(decimal.NewFromFloat(cfg.StopLossPct)))
	capBound := positionCap.Div(px)

	q := decimal.Min(riskBound, capBound).Floor()

	s := Sizing{
		Quantity:    q.IntPart(),
		RiskCapital: riskCapital.InexactFloat64(),
		PositionCap: positionCap.InexactFloat64(),
		RiskBound:   riskBound.InexactFloat64(),
		CapBound:    capBound.InexactFloat64(),
	}
	if s.Quantity < 0 {
		s.Quantity = 0
	}
	return s
}

// KellyFraction is the half-Kelly fraction of capital to risk given a win
// rate in [0,1] and average win/loss amounts, clamped to [0, 0.05]. It falls
// back to 0.02 when either average is zero. Advisory only: sizing stays rule
// based.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgWin == 0 || avgLoss == 0 {
		return 0.02
	}
	b := abs(avgWin / avgLoss)
	p := winRate
	q := 1 - p

	f := (b*p - q) / b * 0.5
	if f < 0 {
		return 0
	}
	if f > 0.05 {
		return 0.05
	}
	return f
}
