package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/risk"
)

// Lagged guards a backtest against look-ahead. For each ticker it remembers
// the previous bar time and asks Source for the signal as of that bar, so a
// trade at bar t only ever uses information from bar t-1. On a ticker's
// first bar it returns HOLD.
type Lagged struct {
	Source SignalSource

	mu   sync.Mutex
	prev map[string]time.Time
}

func NewLagged(src SignalSource) *Lagged {
	return &Lagged{Source: src, prev: make(map[string]time.Time)}
}

// ForBar returns the signal to trade ticker at barTime, then advances the
// ticker's clock to barTime. A source without data yields HOLD.
func (l *Lagged) ForBar(ctx context.Context, ticker string, barTime time.Time) (Signal, error) {
	l.mu.Lock()
	prev, ok := l.prev[ticker]
	if ok && !barTime.After(prev) {
		l.mu.Unlock()
		return Signal{}, fmt.Errorf("feed: bar for %s at %s not after %s", ticker, barTime.Format(time.RFC3339), prev.Format(time.RFC3339))
	}
	l.prev[ticker] = barTime
	l.mu.Unlock()

	if !ok {
		return Signal{Ticker: ticker, Action: risk.Hold}, nil
	}

	sig, err := l.Source.Signal(ctx, ticker, prev)
	if err != nil {
		if IsNoData(err) {
			return Signal{Ticker: ticker, Action: risk.Hold, AsOf: prev}, nil
		}
		return Signal{}, err
	}
	if !sig.AsOf.Before(barTime) || sig.AsOf.After(prev) {
		return Signal{}, fmt.Errorf("%w: %s signal as of %s traded at %s",
			ErrLookAhead, ticker, sig.AsOf.Format(time.RFC3339), barTime.Format(time.RFC3339))
	}
	return sig, nil
}

// Reset forgets every ticker's clock.
func (l *Lagged) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prev = make(map[string]time.Time)
}
