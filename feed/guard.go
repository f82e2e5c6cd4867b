package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardSettings tunes a Guard. Zero values take the defaults.
type GuardSettings struct {
	Name                string
	RequestsPerSecond   float64       // default 5
	Burst               int           // default 1
	ConsecutiveFailures uint32        // trip threshold, default 3
	OpenTimeout         time.Duration // default 60s
}

// Guard wraps a price and signal upstream with a request pacer and a circuit
// breaker. A *NoDataError is an answer, not a fault, so it never counts
// toward tripping.
type Guard struct {
	Prices  PriceSource
	Signals SignalSource

	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

func NewGuard(prices PriceSource, signals SignalSource, s GuardSettings, log zerolog.Logger) *Guard {
	if s.Name == "" {
		s.Name = "feed"
	}
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = 5
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 60 * time.Second
	}

	st := gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNoData(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("feed breaker state change")
		},
	}

	return &Guard{
		Prices:  prices,
		Signals: signals,
		limiter: rate.NewLimiter(rate.Limit(s.RequestsPerSecond), s.Burst),
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// State exposes the breaker state for status pages.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}

func (g *Guard) Price(ctx context.Context, ticker string, asOf time.Time) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v, err := g.cb.Execute(func() (interface{}, error) {
		return g.Prices.Price(ctx, ticker, asOf)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (g *Guard) Signal(ctx context.Context, ticker string, asOf time.Time) (Signal, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Signal{}, err
	}
	v, err := g.cb.Execute(func() (interface{}, error) {
		return g.Signals.Signal(ctx, ticker, asOf)
	})
	if err != nil {
		return Signal{}, err
	}
	return v.(Signal), nil
}
