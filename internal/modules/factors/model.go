// Package factors estimates per-asset factor exposures via time-series
// regression and builds the custom spread factors used alongside the
// standard academic factor set.
package factors

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// Exposure holds the regression result for one asset: intercept, one
// coefficient per factor, and the residual variance. Immutable once
// estimated for a window.
type Exposure struct {
	Symbol           string    `json:"symbol"`
	Alpha            float64   `json:"alpha"`
	Betas            []float64 `json:"betas"`
	ResidualVariance float64   `json:"residual_variance"`
	RSquared         float64   `json:"r_squared"`
}

// ExposureSet is the stacked regression output for an asset universe.
type ExposureSet struct {
	FactorNames []string   `json:"factor_names"`
	Exposures   []Exposure `json:"exposures"`
}

// Betas returns the stacked exposure matrix B (assets × factors).
func (s ExposureSet) Betas() *mat.Dense {
	n := len(s.Exposures)
	k := len(s.FactorNames)
	b := mat.NewDense(n, k, nil)
	for i, e := range s.Exposures {
		b.SetRow(i, e.Betas)
	}
	return b
}

// ResidualVariances returns the per-asset residual variances in universe
// order.
func (s ExposureSet) ResidualVariances() []float64 {
	out := make([]float64, len(s.Exposures))
	for i, e := range s.Exposures {
		out[i] = e.ResidualVariance
	}
	return out
}

// Model estimates factor exposures via ordinary least squares.
type Model struct {
	log zerolog.Logger
}

// NewModel creates a new factor model estimator.
func NewModel(log zerolog.Logger) *Model {
	return &Model{log: log.With().Str("component", "factor_model").Logger()}
}

// EstimateExposures regresses each asset's excess returns on the factor
// returns over the same date index.
//
// For each asset: R_i,t = alpha_i + beta_i' * F_t + eps_i,t
//
// The two panels must cover identical periods. Fewer observations than
// factors + 1 (the parameter count including the intercept) is degenerate.
// Per-asset regressions are independent and run concurrently.
func (m *Model) EstimateExposures(assets, factorPanel timeseries.Panel) (ExposureSet, error) {
	if assets.Len() != factorPanel.Len() {
		return ExposureSet{}, &domain.DataAlignmentError{
			Context: "asset and factor panels",
			Want:    assets.Len(),
			Got:     factorPanel.Len(),
		}
	}

	nObs := assets.Len()
	nFactors := len(factorPanel.Symbols)
	nParams := nFactors + 1
	if nObs < nParams {
		return ExposureSet{}, &domain.InsufficientDataError{
			Context: "factor regression",
			Need:    nParams,
			Got:     nObs,
		}
	}

	// Design matrix with intercept column, shared by all assets.
	design := mat.NewDense(nObs, nParams, nil)
	for t := 0; t < nObs; t++ {
		design.Set(t, 0, 1.0)
		for j, name := range factorPanel.Symbols {
			design.Set(t, j+1, factorPanel.Data[name][t])
		}
	}

	exposures := make([]Exposure, len(assets.Symbols))
	errs := make([]error, len(assets.Symbols))

	var wg sync.WaitGroup
	for i, symbol := range assets.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			exposures[i], errs[i] = regress(symbol, assets.Data[symbol], design, nFactors)
		}(i, symbol)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return ExposureSet{}, err
		}
	}

	m.log.Debug().
		Int("num_assets", len(assets.Symbols)).
		Int("num_factors", nFactors).
		Int("num_obs", nObs).
		Msg("Estimated factor exposures")

	return ExposureSet{
		FactorNames: append([]string(nil), factorPanel.Symbols...),
		Exposures:   exposures,
	}, nil
}

func regress(symbol string, y []float64, design *mat.Dense, nFactors int) (Exposure, error) {
	nObs := len(y)
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Exposure{}, &domain.SingularInputError{
				Matrix: "regression input",
				Reason: "non-finite return observation for " + symbol,
			}
		}
	}

	yVec := mat.NewVecDense(nObs, y)
	var coef mat.VecDense
	if err := coef.SolveVec(design, yVec); err != nil {
		return Exposure{}, &domain.SingularInputError{
			Matrix: "regression design",
			Reason: "collinear factor series for " + symbol,
		}
	}

	// Residuals and fit statistics.
	var fitted mat.VecDense
	fitted.MulVec(design, &coef)

	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(nObs)

	var ssRes, ssTot float64
	for t := 0; t < nObs; t++ {
		r := y[t] - fitted.AtVec(t)
		ssRes += r * r
		d := y[t] - meanY
		ssTot += d * d
	}

	residualVariance := 0.0
	if nObs > 1 {
		residualVariance = ssRes / float64(nObs-1)
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	betas := make([]float64, nFactors)
	for j := 0; j < nFactors; j++ {
		betas[j] = coef.AtVec(j + 1)
	}

	return Exposure{
		Symbol:           symbol,
		Alpha:            coef.AtVec(0),
		Betas:            betas,
		ResidualVariance: residualVariance,
		RSquared:         rSquared,
	}, nil
}
