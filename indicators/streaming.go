package indicators

import "fmt"

var (
	_ Indicator = (*SimpleMA)(nil)
	_ Indicator = (*ExponentialMA)(nil)
	_ Indicator = (*RSI)(nil)
)

// SimpleMA is a streaming simple moving average.
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

func NewSMA(period int) *SimpleMA {
	return &SimpleMA{period: period, window: make([]float64, 0, period)}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("SMA(%d)", m.period) }
func (m *SimpleMA) Warmup() int  { return m.period }
func (m *SimpleMA) Ready() bool  { return len(m.window) >= m.period }

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(c float64) {
	m.window = append(m.window, c)
	m.sum += c
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(m.period)
}

// ExponentialMA is a streaming exponential moving average seeded with the
// SMA of its first period closes.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *ExponentialMA) Warmup() int  { return e.period }
func (e *ExponentialMA) Ready() bool  { return e.count >= e.period }

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(c float64) {
	if e.count < e.period {
		e.warmupSum += c
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (c-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// RSI is Wilder's relative strength index. It needs period+1 closes.
type RSI struct {
	period  int
	prev    float64
	count   int
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI { return &RSI{period: period} }

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) Warmup() int  { return r.period + 1 }
func (r *RSI) Ready() bool  { return r.count > r.period }

func (r *RSI) Reset() { *r = RSI{period: r.period} }

func (r *RSI) Update(c float64) {
	r.count++
	if r.count == 1 {
		r.prev = c
		return
	}
	gain, loss := 0.0, 0.0
	if d := c - r.prev; d > 0 {
		gain = d
	} else {
		loss = -d
	}
	r.prev = c

	n := float64(r.period)
	if r.count <= r.period+1 {
		// Warmup accumulates a plain average of the first period changes.
		r.avgGain += gain / n
		r.avgLoss += loss / n
		return
	}
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
