package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	t.Parallel()

	cfg := MustConfig(DefaultParams())

	tests := []struct {
		name          string
		equity, price float64
		want          int64
	}{
		{"risk bound equals cap", 100000, 100, 200},
		{"cap binds", 100000, 10, 2000},
		{"floors fraction", 100000, 33, 606},
		{"below one share", 100, 500, 0},
		{"zero equity", 0, 100, 0},
		{"zero price", 1000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Size(tt.equity, tt.price, cfg).Quantity)
		})
	}
}

func TestSize_RiskBindsWithWideStop(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.StopLossPct = 0.20
	cfg := MustConfig(p)

	// risk bound 2000/(100*0.2)=100, cap bound 200
	s := Size(100000, 100, cfg)
	assert.Equal(t, int64(100), s.Quantity)
	assert.InDelta(t, 100.0, s.RiskBound, 1e-9)
	assert.InDelta(t, 200.0, s.CapBound, 1e-9)
}

func TestSize_NeverExceedsCap(t *testing.T) {
	t.Parallel()

	cfg := MustConfig(DefaultParams())
	for _, px := range []float64{0.37, 1, 7.77, 19.99, 101.5, 2500} {
		s := Size(123456.78, px, cfg)
		assert.LessOrEqual(t, float64(s.Quantity)*px, 123456.78*cfg.MaxPositionSizePct+1e-6, "price %v", px)
	}
}

func TestKellyFraction(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.02, KellyFraction(0.5, 0, 10))
	assert.Equal(t, 0.02, KellyFraction(0.5, 10, 0))
	assert.Equal(t, 0.0, KellyFraction(0.2, 100, 100))
	assert.Equal(t, 0.05, KellyFraction(0.9, 300, 100))

	// b=2, p=0.4: (0.8-0.6)/2*0.5 = 0.05 exactly at the cap
	assert.InDelta(t, 0.05, KellyFraction(0.4, 200, -100), 1e-12)
	// b=1, p=0.52: (0.52-0.48)/1*0.5 = 0.02
	assert.InDelta(t, 0.02, KellyFraction(0.52, 50, 50), 1e-12)
}

func TestPlannedRisk(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1000.0, PlannedRisk(200, 100, 95), 1e-9)
	assert.InDelta(t, 0.01, RiskPct(1000, 100000), 1e-12)
	assert.InDelta(t, 2.0, RR(100, 95, 110), 1e-9)
	assert.Zero(t, RR(100, 95, 0))
	require.True(t, RiskPct(1, 0) > 1)
}
