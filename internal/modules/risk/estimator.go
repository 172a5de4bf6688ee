package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/factors"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// Method selects the covariance estimation mode.
type Method string

const (
	MethodSample     Method = "sample"
	MethodLedoitWolf Method = "ledoit_wolf"
	MethodEWMA       Method = "ewma"
	MethodFactor     Method = "factor"
)

// DefaultEWMAHalflife is the halflife, in periods, for exponential
// observation weighting.
const DefaultEWMAHalflife = 60

// Config holds covariance estimator configuration.
type Config struct {
	Method Method
	// Halflife for the EWMA method, in periods.
	Halflife int
	// ShrinkageOverride, when set, replaces the data-driven Ledoit-Wolf
	// intensity. Must be in [0, 1].
	ShrinkageOverride *float64
	// EigenvalueFloor for PSD repair. Zero means DefaultEigenvalueFloor.
	EigenvalueFloor float64
}

// Estimator builds covariance matrices from return panels or factor
// exposures.
type Estimator struct {
	cfg Config
	log zerolog.Logger
}

// NewEstimator creates a new covariance estimator.
func NewEstimator(cfg Config, log zerolog.Logger) *Estimator {
	if cfg.Method == "" {
		cfg.Method = MethodLedoitWolf
	}
	if cfg.Halflife <= 0 {
		cfg.Halflife = DefaultEWMAHalflife
	}
	if cfg.EigenvalueFloor <= 0 {
		cfg.EigenvalueFloor = DefaultEigenvalueFloor
	}
	return &Estimator{
		cfg: cfg,
		log: log.With().Str("component", "covariance").Logger(),
	}
}

// Estimate builds the covariance matrix for a return panel using the
// configured return-based method (sample, ledoit_wolf, or ewma). Use
// EstimateFromFactors for the factor-structured mode.
func (e *Estimator) Estimate(panel timeseries.Panel) (Matrix, error) {
	if err := validateReturns(panel); err != nil {
		return Matrix{}, err
	}

	var (
		values    [][]float64
		shrinkage float64
		err       error
	)

	switch e.cfg.Method {
	case MethodSample:
		values, err = sampleCovariance(panel)
	case MethodLedoitWolf:
		values, shrinkage, err = ledoitWolf(panel, e.cfg.ShrinkageOverride)
	case MethodEWMA:
		values, err = ewmaCovariance(panel, e.cfg.Halflife)
	case MethodFactor:
		return Matrix{}, &domain.SingularInputError{
			Matrix: "covariance",
			Reason: "factor method requires exposures; use EstimateFromFactors",
		}
	default:
		return Matrix{}, &domain.SingularInputError{
			Matrix: "covariance",
			Reason: "unknown estimation method " + string(e.cfg.Method),
		}
	}
	if err != nil {
		return Matrix{}, err
	}

	return e.finalize(panel.Symbols, values, string(e.cfg.Method), shrinkage)
}

// EstimateFromFactors builds the factor-structured covariance
//
//	Σ = B F Bᵗ + D
//
// where B stacks the factor exposures, F is the sample covariance of the
// factor returns, and D is the diagonal of per-asset residual variances.
// This caps the effective degrees of freedom, which stabilizes Σ when the
// asset count exceeds the observation count.
func (e *Estimator) EstimateFromFactors(set factors.ExposureSet, factorPanel timeseries.Panel) (Matrix, error) {
	if err := validateReturns(factorPanel); err != nil {
		return Matrix{}, err
	}

	factorCov, err := sampleCovariance(factorPanel)
	if err != nil {
		return Matrix{}, err
	}

	n := len(set.Exposures)
	k := len(set.FactorNames)
	b := set.Betas()
	f := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			f.Set(i, j, factorCov[i][j])
		}
	}

	var bf, systematic mat.Dense
	bf.Mul(b, f)
	systematic.Mul(&bf, b.T())

	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			values[i][j] = systematic.At(i, j)
		}
		values[i][i] += set.Exposures[i].ResidualVariance
	}

	symbols := make([]string, n)
	for i, exp := range set.Exposures {
		symbols[i] = exp.Symbol
	}

	return e.finalize(symbols, values, string(MethodFactor), 0)
}

// finalize symmetrizes, repairs PSD if needed, and wraps the result.
func (e *Estimator) finalize(symbols []string, values [][]float64, method string, shrinkage float64) (Matrix, error) {
	symmetrize(values)

	repaired, clipped, minEig, ok := clipToPSD(values, e.cfg.EigenvalueFloor)
	if !ok {
		return Matrix{}, &domain.SingularInputError{
			Matrix: "covariance",
			Reason: "eigendecomposition failed",
		}
	}

	if clipped > 0 {
		e.log.Warn().
			Str("method", method).
			Int("clipped_eigenvalues", clipped).
			Float64("min_eigenvalue", minEig).
			Msg("Clipped negative eigenvalues to restore positive semi-definiteness")
	}

	return Matrix{
		Symbols:            append([]string(nil), symbols...),
		Values:             repaired,
		Method:             method,
		Shrinkage:          shrinkage,
		ClippedEigenvalues: clipped,
		MinEigenvalue:      minEig,
	}, nil
}

// validateReturns rejects panels the sample covariance cannot be formed
// from: too few observations, non-finite values, or zero-variance series.
func validateReturns(panel timeseries.Panel) error {
	if panel.Len() < 2 {
		return &domain.InsufficientDataError{
			Context: "covariance estimation",
			Need:    2,
			Got:     panel.Len(),
		}
	}

	for _, symbol := range panel.Symbols {
		series := panel.Data[symbol]
		first := series[0]
		constant := true
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &domain.SingularInputError{
					Matrix: "returns",
					Reason: "non-finite observation for " + symbol,
				}
			}
			if v != first {
				constant = false
			}
		}
		if constant {
			return &domain.SingularInputError{
				Matrix: "returns",
				Reason: "zero-variance series for " + symbol,
			}
		}
	}
	return nil
}
