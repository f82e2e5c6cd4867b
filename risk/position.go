package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRisk is the cash lost if a quantity entered at entry exits at stop.
func PlannedRisk(quantity int64, entry, stop float64) float64 {
	return float64(quantity) * abs(entry-stop)
}

// RiskPct expresses plannedRisk as a fraction of equity.
func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}

// RR is the reward to risk ratio of a bracket.
func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	if risk == 0 || takeProfit == 0 {
		return 0
	}
	return abs(takeProfit-entry) / risk
}
