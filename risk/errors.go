package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidPrice matches any *InvalidPriceError via errors.Is.
var ErrInvalidPrice = errors.New("invalid price")

// InvalidPriceError is returned for a non-positive or non-finite price. The
// caller skips the ticker for the cycle; it never aborts a run.
type InvalidPriceError struct {
	Ticker string
	Price  float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price for %s: %v", e.Ticker, e.Price)
}

func (e *InvalidPriceError) Is(target error) bool {
	return target == ErrInvalidPrice
}

// InsufficientCashError describes a cash shortfall. It is never returned as
// an error from Evaluate; it only phrases the Rejected reason.
type InsufficientCashError struct {
	Required  float64
	Available float64
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: need %.2f, have %.2f", e.Required, e.Available)
}
