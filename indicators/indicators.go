// Package indicators provides streaming technical indicators over bar closes.
package indicators

// Indicator computes a single streaming value from closing prices.
// It is deterministic and safe to use in live, paper and backtest runs.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed price.
	Update(c float64)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, or 0 before warmup.
	Value() float64
}
