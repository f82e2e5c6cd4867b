package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/risk"
)

type point struct {
	t     time.Time
	price float64
	sig   risk.Signal
}

// Store is an in-memory as-of series of prices and signals per ticker. It
// serves both SignalSource and PriceSource and is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	prices  map[string][]point
	signals map[string][]point
}

func NewStore() *Store {
	return &Store{
		prices:  make(map[string][]point),
		signals: make(map[string][]point),
	}
}

// AddPrice records a price observation. Out-of-order inserts are allowed.
func (s *Store) AddPrice(ticker string, t time.Time, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = insert(s.prices[ticker], point{t: t, price: price})
}

// AddSignal records a signal stamped at t.
func (s *Store) AddSignal(ticker string, t time.Time, sig risk.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[ticker] = insert(s.signals[ticker], point{t: t, sig: sig})
}

// Tickers lists tickers with any price or signal, sorted.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	for k := range s.prices {
		seen[k] = struct{}{}
	}
	for k := range s.signals {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Price(_ context.Context, ticker string, asOf time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := latest(s.prices[ticker], asOf)
	if !ok {
		return 0, &NoDataError{Ticker: ticker, AsOf: asOf}
	}
	return p.price, nil
}

func (s *Store) Signal(_ context.Context, ticker string, asOf time.Time) (Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := latest(s.signals[ticker], asOf)
	if !ok {
		return Signal{}, &NoDataError{Ticker: ticker, AsOf: asOf}
	}
	return Signal{Ticker: ticker, Action: p.sig, AsOf: p.t}, nil
}

// insert keeps xs sorted by time; an equal timestamp replaces.
func insert(xs []point, p point) []point {
	i := sort.Search(len(xs), func(i int) bool { return !xs[i].t.Before(p.t) })
	if i < len(xs) && xs[i].t.Equal(p.t) {
		xs[i] = p
		return xs
	}
	xs = append(xs, point{})
	copy(xs[i+1:], xs[i:])
	xs[i] = p
	return xs
}

// latest finds the last point at or before asOf.
func latest(xs []point, asOf time.Time) (point, bool) {
	i := sort.Search(len(xs), func(i int) bool { return xs[i].t.After(asOf) })
	if i == 0 {
		return point{}, false
	}
	return xs[i-1], true
}
