// Package formulas provides the statistical primitives shared by the risk,
// optimization and backtest modules.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two equal-length series
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two series
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// CalculateReturns converts a price series to simple periodic returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedReturn computes the compound annual growth rate from periodic
// returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
//
// For fewer than 3 observations the cumulative return is returned unchanged
// to avoid extreme annualization.
func AnnualizedReturn(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 {
		return 0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}

	numPeriods := float64(len(returns))
	if numPeriods < 3 {
		return cumulative - 1
	}
	if cumulative <= 0 {
		return -1
	}

	years := numPeriods / float64(periodsPerYear)
	return math.Pow(cumulative, 1.0/years) - 1
}

// AnnualizedVolatility scales the standard deviation of periodic returns by
// the square root of the number of periods per year.
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// DownsideVolatility is the annualized standard deviation of the negative
// periodic returns only. Zero when no negative observations exist.
func DownsideVolatility(returns []float64, periodsPerYear int) float64 {
	negative := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return 0
	}
	return StdDev(negative) * math.Sqrt(float64(periodsPerYear))
}

// WinRate is the fraction of periods with a strictly positive return.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
