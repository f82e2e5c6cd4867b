package portfolio

import "time"

// Position is an open long holding. There is at most one per ticker.
type Position struct {
	Ticker     string    `json:"ticker"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit,omitempty"` // 0 means none
	PeakPrice  float64   `json:"peak_price"`
	CostBasis  float64   `json:"cost_basis"` // quantity*entry + entry fee
	OpenedAt   time.Time `json:"opened_at"`
}

// MarketValue values the position at mark.
func (p Position) MarketValue(mark float64) float64 {
	return float64(p.Quantity) * mark
}

// UnrealizedPL is the gross P/L if closed at mark.
func (p Position) UnrealizedPL(mark float64) float64 {
	return (mark - p.EntryPrice) * float64(p.Quantity)
}

// StopHit reports whether price is at or below the stop.
func (p Position) StopHit(price float64) bool {
	return p.StopLoss > 0 && price <= p.StopLoss
}

// TakeProfitHit reports whether price is at or above the take-profit level.
func (p Position) TakeProfitHit(price float64) bool {
	return p.TakeProfit > 0 && price >= p.TakeProfit
}

// PositionView pairs a position with its current mark for reporting.
type PositionView struct {
	Position
	Mark            float64 `json:"mark"`
	MarketValue     float64 `json:"market_value"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	UnrealizedPLPct float64 `json:"unrealized_pl_pct"`
}
