// Package feed supplies prices and model signals to the execution engine:
// the collaborator interfaces, in-memory and CSV sources, the as-of lag that
// keeps a backtest from seeing the future, and a guard that isolates a
// flaky upstream.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/risk"
)

// ErrLookAhead means a signal was stamped at or after the bar it would trade.
var ErrLookAhead = errors.New("feed: signal from the future")

// NoDataError means a source has nothing for ticker at or before AsOf. The
// caller skips the ticker for the cycle.
type NoDataError struct {
	Ticker string
	AsOf   time.Time
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("feed: no data for %s as of %s", e.Ticker, e.AsOf.Format(time.RFC3339))
}

// IsNoData reports whether err wraps a *NoDataError.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// Signal is a model output for one ticker. AsOf is the time of the data the
// model saw, not the time it was fetched.
type Signal struct {
	Ticker string      `json:"ticker"`
	Action risk.Signal `json:"action"`
	AsOf   time.Time   `json:"as_of"`
}

// SignalSource returns the latest signal for ticker stamped at or before asOf.
type SignalSource interface {
	Signal(ctx context.Context, ticker string, asOf time.Time) (Signal, error)
}

// PriceSource returns the latest price for ticker at or before asOf.
type PriceSource interface {
	Price(ctx context.Context, ticker string, asOf time.Time) (float64, error)
}

// SignalFunc adapts a function to SignalSource.
type SignalFunc func(ctx context.Context, ticker string, asOf time.Time) (Signal, error)

func (f SignalFunc) Signal(ctx context.Context, ticker string, asOf time.Time) (Signal, error) {
	return f(ctx, ticker, asOf)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(ctx context.Context, ticker string, asOf time.Time) (float64, error)

func (f PriceFunc) Price(ctx context.Context, ticker string, asOf time.Time) (float64, error) {
	return f(ctx, ticker, asOf)
}

// Bar is one OHLC period for a ticker.
type Bar struct {
	Time   time.Time
	Ticker string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Price picks the open or close of the bar.
func (b Bar) Price(atClose bool) float64 {
	if atClose {
		return b.Close
	}
	return b.Open
}
