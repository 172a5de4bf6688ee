package risk

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// sampleCovariance computes the sample covariance matrix (N-1 denominator)
// in panel symbol order.
func sampleCovariance(panel timeseries.Panel) ([][]float64, error) {
	n := len(panel.Symbols)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		si := panel.Data[panel.Symbols[i]]
		for j := i; j < n; j++ {
			sj := panel.Data[panel.Symbols[j]]
			cov := stat.Covariance(si, sj, nil)
			values[i][j] = cov
			values[j][i] = cov
		}
	}
	return values, nil
}

// ledoitWolf computes the shrinkage estimator
//
//	Σ = δ·Target + (1−δ)·S
//
// with the constant-correlation target of Ledoit & Wolf ("Honey, I Shrunk
// the Sample Covariance Matrix"): target variances equal the sample
// variances and every off-diagonal correlation equals the average sample
// correlation. The intensity δ is the closed-form estimator
// δ = clamp((π̂ − ρ̂)/γ̂ / T, 0, 1) unless an override is supplied.
//
// The moment computations use the 1/T sample covariance, matching the
// published estimator.
func ledoitWolf(panel timeseries.Panel, override *float64) ([][]float64, float64, error) {
	t := panel.Len()
	n := len(panel.Symbols)

	// Demeaned observation matrix, T × N.
	x := make([][]float64, t)
	for k := 0; k < t; k++ {
		x[k] = make([]float64, n)
	}
	for j, symbol := range panel.Symbols {
		series := panel.Data[symbol]
		mean := stat.Mean(series, nil)
		for k := 0; k < t; k++ {
			x[k][j] = series[k] - mean
		}
	}

	// Sample covariance with 1/T normalization.
	sample := make([][]float64, n)
	for i := range sample {
		sample[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := 0.0
			for k := 0; k < t; k++ {
				s += x[k][i] * x[k][j]
			}
			s /= float64(t)
			sample[i][j] = s
			sample[j][i] = s
		}
	}

	variances := make([]float64, n)
	sqrtVar := make([]float64, n)
	for i := 0; i < n; i++ {
		variances[i] = sample[i][i]
		if variances[i] <= 0 {
			return nil, 0, &domain.SingularInputError{
				Matrix: "sample covariance",
				Reason: "zero-variance series for " + panel.Symbols[i],
			}
		}
		sqrtVar[i] = math.Sqrt(variances[i])
	}

	// Average sample correlation.
	rBar := 0.0
	if n > 1 {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j {
					rBar += sample[i][j] / (sqrtVar[i] * sqrtVar[j])
				}
			}
		}
		rBar /= float64(n * (n - 1))
	}

	// Constant-correlation target.
	target := make([][]float64, n)
	for i := range target {
		target[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				target[i][j] = variances[i]
			} else {
				target[i][j] = rBar * sqrtVar[i] * sqrtVar[j]
			}
		}
	}

	var delta float64
	if override != nil {
		delta = math.Max(0, math.Min(1, *override))
	} else {
		// π̂: sum of asymptotic variances of the sample covariance entries.
		piMat := make([][]float64, n)
		piHat := 0.0
		for i := range piMat {
			piMat[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				s := 0.0
				for k := 0; k < t; k++ {
					d := x[k][i]*x[k][j] - sample[i][j]
					s += d * d
				}
				piMat[i][j] = s / float64(t)
				piHat += piMat[i][j]
			}
		}

		// ρ̂: diagonal asymptotic variances plus the covariance between the
		// sample entries and the constant-correlation target.
		rhoHat := 0.0
		for i := 0; i < n; i++ {
			rhoHat += piMat[i][i]
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				thetaII := 0.0 // AsyCov(s_ii, s_ij)
				thetaJJ := 0.0 // AsyCov(s_jj, s_ij)
				for k := 0; k < t; k++ {
					thetaII += (x[k][i]*x[k][i] - variances[i]) * (x[k][i]*x[k][j] - sample[i][j])
					thetaJJ += (x[k][j]*x[k][j] - variances[j]) * (x[k][i]*x[k][j] - sample[i][j])
				}
				thetaII /= float64(t)
				thetaJJ /= float64(t)
				rhoHat += (rBar / 2) * (sqrtVar[j]/sqrtVar[i]*thetaII + sqrtVar[i]/sqrtVar[j]*thetaJJ)
			}
		}

		// γ̂: squared Frobenius distance between target and sample.
		gammaHat := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				d := target[i][j] - sample[i][j]
				gammaHat += d * d
			}
		}

		if gammaHat > 0 {
			kappa := (piHat - rhoHat) / gammaHat
			delta = math.Max(0, math.Min(1, kappa/float64(t)))
		}
	}

	shrunk := make([][]float64, n)
	for i := range shrunk {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = delta*target[i][j] + (1-delta)*sample[i][j]
		}
	}
	return shrunk, delta, nil
}

// ewmaCovariance computes an exponentially weighted covariance matrix.
// Observation weights decay with the given halflife so recent periods
// dominate; the denominator uses the effective-sample correction
// 1 − Σw².
func ewmaCovariance(panel timeseries.Panel, halflife int) ([][]float64, error) {
	t := panel.Len()
	n := len(panel.Symbols)

	lambda := math.Ln2 / float64(halflife)
	weights := make([]float64, t)
	sum := 0.0
	for k := 0; k < t; k++ {
		age := float64((t - 1) - k) // 0 for newest
		weights[k] = math.Exp(-lambda * age)
		sum += weights[k]
	}
	for k := range weights {
		weights[k] /= sum
	}

	// Weighted means.
	mu := make([]float64, n)
	for i, symbol := range panel.Symbols {
		series := panel.Data[symbol]
		m := 0.0
		for k := 0; k < t; k++ {
			m += weights[k] * series[k]
		}
		mu[i] = m
	}

	sumW2 := 0.0
	for _, w := range weights {
		sumW2 += w * w
	}
	denom := 1.0 - sumW2
	if denom <= 0 {
		return nil, &domain.InsufficientDataError{
			Context: "ewma covariance: effective sample size too small",
			Need:    2,
			Got:     1,
		}
	}

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		si := panel.Data[panel.Symbols[i]]
		for j := i; j < n; j++ {
			sj := panel.Data[panel.Symbols[j]]
			s := 0.0
			for k := 0; k < t; k++ {
				s += weights[k] * (si[k] - mu[i]) * (sj[k] - mu[j])
			}
			val := s / denom
			values[i][j] = val
			values[j][i] = val
		}
	}
	return values, nil
}
