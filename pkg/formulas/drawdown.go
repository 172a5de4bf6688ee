package formulas

// EquityCurve compounds periodic returns into a cumulative value series
// starting from 1.0. The result has the same length as the input.
func EquityCurve(returns []float64) []float64 {
	curve := make([]float64, len(returns))
	value := 1.0
	for i, r := range returns {
		value *= 1 + r
		curve[i] = value
	}
	return curve
}

// DrawdownSeries computes the drawdown from the running peak at every point
// of a cumulative value series. Values are negative or zero
// (-0.25 = 25% below the peak).
func DrawdownSeries(values []float64) []float64 {
	drawdowns := make([]float64, len(values))
	peak := 0.0
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdowns[i] = (v - peak) / peak
		}
	}
	return drawdowns
}

// MaxDrawdown returns the deepest drawdown of a cumulative value series as a
// negative number (-0.25 = 25% loss from peak).
func MaxDrawdown(values []float64) float64 {
	maxDD := 0.0
	for _, dd := range DrawdownSeries(values) {
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
