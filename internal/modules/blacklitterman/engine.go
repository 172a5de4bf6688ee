package blacklitterman

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

// DefaultTau is the prior-uncertainty scalar. Typical values are
// 0.01 - 0.05.
const DefaultTau = 0.025

// Posterior is the blended return and covariance estimate for one
// (prior, covariance, view-set) triple.
type Posterior struct {
	Symbols    []string    `json:"symbols"`
	Returns    []float64   `json:"returns"`
	Covariance risk.Matrix `json:"covariance"`
}

// Engine computes Black-Litterman posteriors.
type Engine struct {
	tau float64
	log zerolog.Logger
}

// NewEngine creates a new Black-Litterman engine. A non-positive tau falls
// back to DefaultTau.
func NewEngine(tau float64, log zerolog.Logger) *Engine {
	if tau <= 0 {
		tau = DefaultTau
	}
	return &Engine{
		tau: tau,
		log: log.With().Str("component", "black_litterman").Logger(),
	}
}

// Tau returns the configured prior-uncertainty scalar.
func (e *Engine) Tau() float64 { return e.tau }

// ImpliedReturns computes equilibrium returns by reverse optimization:
//
//	π = δ · Σ · w
//
// Market weights are normalized to sum to 1 before use.
func (e *Engine) ImpliedReturns(marketWeights []float64, cov risk.Matrix, riskAversion float64) ([]float64, error) {
	n := cov.Dim()
	if len(marketWeights) != n {
		return nil, &domain.DataAlignmentError{
			Context: "market weights vs covariance",
			Want:    n,
			Got:     len(marketWeights),
		}
	}

	total := 0.0
	for _, w := range marketWeights {
		total += w
	}
	if total == 0 {
		return nil, &domain.SingularInputError{
			Matrix: "market weights",
			Reason: "weights sum to zero",
		}
	}

	w := mat.NewVecDense(n, nil)
	for i, v := range marketWeights {
		w.SetVec(i, v/total)
	}

	var sigmaW mat.VecDense
	sigmaW.MulVec(cov.Dense(), w)

	pi := make([]float64, n)
	for i := range pi {
		pi[i] = riskAversion * sigmaW.AtVec(i)
	}
	return pi, nil
}

// ComputePosterior blends the prior returns with the view-set using the
// Black-Litterman master formula:
//
//	μ_BL = [(τΣ)⁻¹ + PᵗΩ⁻¹P]⁻¹ [(τΣ)⁻¹π + PᵗΩ⁻¹q]
//	Σ_BL = [(τΣ)⁻¹ + PᵗΩ⁻¹P]⁻¹ + Σ
//
// View uncertainty is Ω_ii = (1/confidence_i) · (P_i Σ P_iᵗ) · τ, so low
// confidence inflates uncertainty and pulls the posterior toward the prior.
// With zero views the posterior equals the prior exactly.
func (e *Engine) ComputePosterior(prior []float64, cov risk.Matrix, views []View) (Posterior, error) {
	n := cov.Dim()
	if len(prior) != n {
		return Posterior{}, &domain.DataAlignmentError{
			Context: "prior returns vs covariance",
			Want:    n,
			Got:     len(prior),
		}
	}

	if len(views) == 0 {
		return Posterior{
			Symbols:    append([]string(nil), cov.Symbols...),
			Returns:    append([]float64(nil), prior...),
			Covariance: cov,
		}, nil
	}

	m := len(views)
	sigma := cov.Dense()

	p := mat.NewDense(m, n, nil)
	q := mat.NewVecDense(m, nil)
	omega := mat.NewDense(m, m, nil)

	for i, view := range views {
		conf := view.Confidence()
		if conf <= 0 || conf > 1 {
			return Posterior{}, fmt.Errorf("view %d: confidence %v outside (0, 1]", i, conf)
		}

		row, err := view.Row(cov.Symbols)
		if err != nil {
			return Posterior{}, fmt.Errorf("view %d: %w", i, err)
		}
		p.SetRow(i, row)
		q.SetVec(i, view.Target())

		// P_i Σ P_iᵗ
		rowVec := mat.NewVecDense(n, row)
		var sigmaRow mat.VecDense
		sigmaRow.MulVec(sigma, rowVec)
		variance := mat.Dot(rowVec, &sigmaRow)

		omega.Set(i, i, e.tau*variance/conf)
	}

	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(e.tau, sigma)

	var tauSigmaInv mat.Dense
	if err := tauSigmaInv.Inverse(tauSigma); err != nil {
		return Posterior{}, &domain.PosteriorComputationError{Matrix: "tau_sigma", Err: err}
	}

	var omegaInv mat.Dense
	if err := omegaInv.Inverse(omega); err != nil {
		return Posterior{}, &domain.PosteriorComputationError{Matrix: "omega", Err: err}
	}

	// PᵗΩ⁻¹ and PᵗΩ⁻¹P
	var pTOmegaInv, pTOmegaInvP mat.Dense
	pTOmegaInv.Mul(p.T(), &omegaInv)
	pTOmegaInvP.Mul(&pTOmegaInv, p)

	// M = (τΣ)⁻¹ + PᵗΩ⁻¹P
	var precision mat.Dense
	precision.Add(&tauSigmaInv, &pTOmegaInvP)

	var precisionInv mat.Dense
	if err := precisionInv.Inverse(&precision); err != nil {
		return Posterior{}, &domain.PosteriorComputationError{Matrix: "posterior_precision", Err: err}
	}

	// Right-hand side: (τΣ)⁻¹π + PᵗΩ⁻¹q
	piVec := mat.NewVecDense(n, append([]float64(nil), prior...))
	var tauSigmaInvPi, pTOmegaInvQ, rhs, muBL mat.VecDense
	tauSigmaInvPi.MulVec(&tauSigmaInv, piVec)
	pTOmegaInvQ.MulVec(&pTOmegaInv, q)
	rhs.AddVec(&tauSigmaInvPi, &pTOmegaInvQ)
	muBL.MulVec(&precisionInv, &rhs)

	returns := make([]float64, n)
	for i := range returns {
		returns[i] = muBL.AtVec(i)
	}

	// Σ_BL = M⁻¹ + Σ
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			values[i][j] = precisionInv.At(i, j) + cov.Values[i][j]
		}
	}
	symmetrizeValues(values)

	e.log.Debug().
		Int("num_views", m).
		Int("num_assets", n).
		Float64("tau", e.tau).
		Msg("Computed Black-Litterman posterior")

	return Posterior{
		Symbols: append([]string(nil), cov.Symbols...),
		Returns: returns,
		Covariance: risk.Matrix{
			Symbols: append([]string(nil), cov.Symbols...),
			Values:  values,
			Method:  "black_litterman",
		},
	}, nil
}

func symmetrizeValues(values [][]float64) {
	n := len(values)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (values[i][j] + values[j][i]) / 2
			values[i][j] = avg
			values[j][i] = avg
		}
	}
}
