package indicators

import "fmt"

// SMA is the simple moving average of the last period closes.
func SMA(closes []float64, period int) (float64, error) {
	if err := checkWindow(len(closes), period); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), nil
}

// EMA is the exponential moving average of closes, seeded with the SMA of
// the first period values.
func EMA(closes []float64, period int) (float64, error) {
	if err := checkWindow(len(closes), period); err != nil {
		return 0, err
	}
	e := NewEMA(period)
	for _, c := range closes {
		e.Update(c)
	}
	return e.Value(), nil
}

func checkWindow(n, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if n < period {
		return fmt.Errorf("not enough closes: need %d, got %d", period, n)
	}
	return nil
}
