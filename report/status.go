// Package report derives read-only views of portfolio state: the status
// snapshot, trade and equity-curve performance, the P&L reconciliation and
// run summaries.
package report

import (
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
)

// Status is the portfolio snapshot served to the dashboard. Percentages are
// expressed in percent (5.0 means 5%). CurrentCapital is mark-to-market
// equity, not cash.
type Status struct {
	InitialCapital      float64 `json:"initial_capital"`
	CurrentCapital      float64 `json:"current_capital"`
	Cash                float64 `json:"cash"`
	Equity              float64 `json:"equity"`
	HighWaterMark       float64 `json:"high_water_mark"`
	TotalPnL            float64 `json:"total_pnl"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	RealizedPnL         float64 `json:"realized_pnl"`
	UnrealizedPnL       float64 `json:"unrealized_pnl"`
	DailyPnL            float64 `json:"daily_pnl"`
	Fees                float64 `json:"fees"`
	ActivePositions     int     `json:"active_positions"`
	TotalTrades         int     `json:"total_trades"`
	CurrentDrawdownPct  float64 `json:"current_drawdown_pct"`
	MaxDrawdownExceeded bool    `json:"max_drawdown_exceeded"`
	DailyLossExceeded   bool    `json:"daily_loss_exceeded"`
	Cycle               int     `json:"cycle"`
	Version             uint64  `json:"version"`
}

// StatusOf reads a ledger. The caller holds whatever lock guards l.
func StatusOf(l *portfolio.Ledger) Status {
	eq := l.Equity()
	initial := l.InitialCapital()

	s := Status{
		InitialCapital:      initial,
		CurrentCapital:      eq,
		Cash:                l.Cash(),
		Equity:              eq,
		HighWaterMark:       l.HighWaterMark(),
		TotalPnL:            eq - initial,
		RealizedPnL:         l.RealizedPL(),
		UnrealizedPnL:       l.UnrealizedPL(),
		DailyPnL:            eq - l.DailyStartEquity(),
		Fees:                l.Fees(),
		ActivePositions:     l.OpenCount(),
		TotalTrades:         l.TradeCount(),
		CurrentDrawdownPct:  risk.Drawdown(l.HighWaterMark(), eq) * 100,
		MaxDrawdownExceeded: l.MaxDrawdownExceeded(),
		DailyLossExceeded:   l.DailyLossExceeded(),
		Cycle:               l.Cycle(),
		Version:             l.Version(),
	}
	if initial > 0 {
		s.TotalReturnPct = (eq - initial) / initial * 100
	}
	return s
}

// Halted reports whether new positions are currently blocked.
func (s Status) Halted() bool {
	return s.MaxDrawdownExceeded || s.DailyLossExceeded
}
