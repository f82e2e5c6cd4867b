package sim

import (
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
)

// Status is the outcome of one ExecuteTrade call.
type Status string

const (
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
	StatusNoAction Status = "no_action"
)

// ExecutionResult reports what ExecuteTrade did with a signal.
type ExecutionResult struct {
	Ticker   string           `json:"ticker"`
	Signal   risk.Signal      `json:"signal"`
	Status   Status           `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Price    float64          `json:"price"`
	Time     time.Time        `json:"time"`
	Trade    *portfolio.Trade `json:"trade,omitempty"`
	Decision risk.Decision    `json:"-"`
}

// Executed reports whether a trade was applied.
func (r ExecutionResult) Executed() bool { return r.Status == StatusExecuted }

// Snapshot is one portfolio valuation.
type Snapshot struct {
	Time                time.Time `json:"time"`
	Cycle               int       `json:"cycle"`
	Cash                float64   `json:"cash"`
	Equity              float64   `json:"equity"`
	HighWaterMark       float64   `json:"high_water_mark"`
	Drawdown            float64   `json:"drawdown"`     // fraction of the high-water mark
	DailyReturn         float64   `json:"daily_return"` // fraction of the cycle's opening equity
	DailyLossExceeded   bool      `json:"daily_loss_exceeded"`
	MaxDrawdownExceeded bool      `json:"max_drawdown_exceeded"`
	OpenPositions       int       `json:"open_positions"`
}

// Halted reports whether new positions are blocked after this valuation.
func (s Snapshot) Halted() bool {
	return s.DailyLossExceeded || s.MaxDrawdownExceeded
}

func (s Snapshot) record() journal.EquitySnapshot {
	return journal.EquitySnapshot{
		Time:                s.Time,
		Cycle:               s.Cycle,
		Cash:                s.Cash,
		Equity:              s.Equity,
		HighWaterMark:       s.HighWaterMark,
		DrawdownPct:         s.Drawdown * 100,
		DailyLossExceeded:   s.DailyLossExceeded,
		MaxDrawdownExceeded: s.MaxDrawdownExceeded,
	}
}

// Listener observes the engine. Callbacks run after the engine lock is
// released, in the order the events happened; they must not block.
type Listener interface {
	OnTrade(t portfolio.Trade)
	OnRejected(ticker, reason string)
	OnValuation(s Snapshot)
}
