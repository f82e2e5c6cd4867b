// Package portfolio owns the authoritative trading state: cash, the set of open
// positions and the append-only trade log.
package portfolio

import "time"

// Side classifies a Trade in the log.
type Side string

const (
	// SideBuy opens a long position.
	SideBuy Side = "BUY"
	// SideSell closes a position because the model emitted SELL.
	SideSell Side = "SELL"
	// SideClose is any other forced close: take profit, end of replay, operator.
	SideClose Side = "CLOSE"
	// SideStop closes a position whose stop-loss price was breached.
	SideStop Side = "STOP"
)

// Reason records why a trade happened.
type Reason string

const (
	ReasonSignalEntry Reason = "signal_entry"
	ReasonSignalExit  Reason = "signal_exit"
	ReasonStopLoss    Reason = "stop_loss"
	ReasonTakeProfit  Reason = "take_profit"
	ReasonEndOfReplay Reason = "end_of_replay"
	ReasonManual      Reason = "manual"
)

// Trade is an immutable fill record. RealizedPL is nil for opening trades.
type Trade struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Side       Side      `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	Time       time.Time `json:"time"`
	RealizedPL *float64  `json:"realized_pl"`
	Reason     Reason    `json:"reason"`

	// EntryPrice is the average entry of the position a closing trade ended.
	EntryPrice float64 `json:"entry_price,omitempty"`
}

// IsOpening reports whether the trade opened a position.
func (t Trade) IsOpening() bool {
	return t.RealizedPL == nil
}

// PL returns the realized P/L, or zero for opening trades.
func (t Trade) PL() float64 {
	if t.RealizedPL == nil {
		return 0
	}
	return *t.RealizedPL
}

// ReturnPct is the percentage move from entry to exit for closing trades.
func (t Trade) ReturnPct() float64 {
	if t.IsOpening() || t.EntryPrice <= 0 {
		return 0
	}
	return (t.Price - t.EntryPrice) / t.EntryPrice * 100
}

// Value is the notional of the fill.
func (t Trade) Value() float64 {
	return float64(t.Quantity) * t.Price
}
