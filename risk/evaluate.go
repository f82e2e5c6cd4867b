package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/papertrader/portfolio"
)

// PortfolioView is the read-only state the risk engine needs.
// *portfolio.Ledger satisfies it.
type PortfolioView interface {
	Cash() float64
	Equity() float64
	OpenQuantity(ticker string) int64
	DailyLossExceeded() bool
	MaxDrawdownExceeded() bool
}

var _ PortfolioView = (*portfolio.Ledger)(nil)

// Halted reports whether either circuit breaker blocks new positions.
func Halted(v PortfolioView) bool {
	return v.DailyLossExceeded() || v.MaxDrawdownExceeded()
}

// Evaluate decides what to do with sig for ticker at price. Expected trading
// outcomes are Decisions; only malformed input returns an error.
//
// Closing is never blocked by the circuit breakers.
func Evaluate(v PortfolioView, ticker string, sig Signal, price float64, cfg *Config) (Decision, error) {
	if cfg == nil {
		return nil, errors.New("risk: nil config")
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, &InvalidPriceError{Ticker: ticker, Price: price}
	}

	held := v.OpenQuantity(ticker)

	switch sig {
	case Hold:
		return NoAction{Reason: "hold signal"}, nil

	case Sell:
		if held > 0 {
			return Close{Quantity: held, Reason: portfolio.ReasonSignalExit}, nil
		}
		return Rejected{Reason: ReasonNoPosition}, nil

	case Buy:
		if held > 0 {
			return Rejected{Reason: ReasonPositionOpen}, nil
		}
		if Halted(v) {
			return Rejected{Reason: ReasonHalted}, nil
		}

		size := Size(v.Equity(), price, cfg)
		if size.Quantity < 1 {
			return Rejected{Reason: ReasonTooSmall}, nil
		}
		required := float64(size.Quantity) * price
		if cash := v.Cash(); required > cash {
			e := &InsufficientCashError{Required: required, Available: cash}
			return Rejected{Reason: e.Error()}, nil
		}

		stop := cfg.StopLossPrice(price)
		return Open{
			Quantity:    size.Quantity,
			StopLoss:    stop,
			TakeProfit:  cfg.TakeProfitPrice(price),
			PlannedRisk: PlannedRisk(size.Quantity, price, stop),
			Sizing:      size,
		}, nil
	}

	return nil, fmt.Errorf("risk: unknown signal %q for %s", sig, ticker)
}
