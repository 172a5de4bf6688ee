package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
// Sharpe = (Mean Return - Periodic Risk-free Rate) / Std Dev of Returns
// Annualized: Sharpe × sqrt(periodsPerYear)
//
// riskFreeRate is annual, as a decimal. Returns nil when the ratio is
// undefined (fewer than 2 observations or zero volatility).
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev
	annualized := sharpe * math.Sqrt(float64(periodsPerYear))
	return &annualized
}

// SortinoRatio calculates the annualized Sortino ratio, using downside
// deviation below the minimum acceptable return instead of total volatility.
//
// targetReturn is the annual minimum acceptable return as a decimal.
// Returns nil when no observation falls below the target or the deviation
// is zero.
func SortinoRatio(returns []float64, riskFreeRate, targetReturn float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	periodicMAR := targetReturn / float64(periodsPerYear)

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < periodicMAR {
			deviation := ret - periodicMAR
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return nil
	}

	downsideDeviation := math.Sqrt(downsideSquaredSum / float64(downsideCount))
	if downsideDeviation == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (Mean(returns) - periodicRiskFree) / downsideDeviation
	annualized := sortino * math.Sqrt(float64(periodsPerYear))
	return &annualized
}

// CalmarRatio is the annualized return divided by the absolute maximum
// drawdown. Returns nil when the drawdown is zero.
func CalmarRatio(annualReturn, maxDrawdown float64) *float64 {
	if maxDrawdown == 0 {
		return nil
	}
	calmar := annualReturn / math.Abs(maxDrawdown)
	return &calmar
}
