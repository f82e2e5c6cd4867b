package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/papertrader/portfolio"
)

// Signal is the model output for a ticker at a point in time.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// ParseSignal accepts BUY/SELL/HOLD in any case.
func ParseSignal(s string) (Signal, error) {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	case Hold:
		return Hold, nil
	}
	return "", fmt.Errorf("unknown signal %q", s)
}

// Rejection reasons shared with callers.
const (
	ReasonPositionOpen = "position already open"
	ReasonNoPosition   = "no position to close"
	ReasonHalted       = "trading halted"
	ReasonTooSmall     = "position size below one share"
)

// Decision is the closed set of outcomes of Evaluate: NoAction, Open, Close
// or Rejected. Use a type switch.
type Decision interface {
	decision()
}

// NoAction is returned for HOLD.
type NoAction struct {
	Reason string
}

// Open accepts a new long position.
type Open struct {
	Quantity    int64
	StopLoss    float64
	TakeProfit  float64 // 0 when disabled
	PlannedRisk float64 // loss if the stop fills exactly
	Sizing      Sizing
}

// Close exits the whole position.
type Close struct {
	Quantity int64
	Reason   portfolio.Reason
}

// Rejected is a normal outcome, not a fault.
type Rejected struct {
	Reason string
}

func (NoAction) decision() {}
func (Open) decision()     {}
func (Close) decision()    {}
func (Rejected) decision() {}
