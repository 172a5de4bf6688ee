package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

// Optimizer solves for portfolio weights under a budget constraint, asset
// bounds, and group bounds.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer creates a new portfolio optimizer.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// Solve dispatches on the objective kind. mu is in cov symbol order.
//
// The analytic solution is used whenever it lands inside the feasible
// region; otherwise the problem is re-solved numerically with a penalty
// formulation. Risk parity always uses its fixed-point iteration.
func (o *Optimizer) Solve(mu []float64, cov risk.Matrix, obj Objective, cons Constraints) (Result, error) {
	n := cov.Dim()
	if n == 0 {
		return Result{}, &domain.InsufficientDataError{Context: "optimization", Need: 1, Got: 0}
	}
	if len(mu) != n {
		return Result{}, &domain.DataAlignmentError{
			Context: "expected returns vs covariance",
			Want:    n,
			Got:     len(mu),
		}
	}
	if err := obj.Validate(); err != nil {
		return Result{}, &domain.OptimizationError{Status: "invalid objective", Err: err}
	}
	if err := validateConstraints(cov.Symbols, cons); err != nil {
		return Result{}, err
	}

	if obj.Kind == ObjectiveRiskParity {
		return o.solveRiskParity(mu, cov, obj, cons)
	}

	weights, solver, err := o.solveMeanVarianceFamily(mu, cov, obj, cons)
	if err != nil {
		return Result{}, err
	}

	if violation := constraintViolation(cov.Symbols, weights, cons); violation != "" {
		return Result{}, &domain.OptimizationError{
			Status: "solution violates constraints: " + violation,
		}
	}

	result := o.buildResult(mu, cov, weights, obj, solver)
	o.log.Debug().
		Str("objective", string(obj.Kind)).
		Str("solver", solver).
		Float64("volatility", result.Volatility).
		Msg("Solved portfolio")
	return result, nil
}

// solveMeanVarianceFamily handles the three objectives that share the
// quadratic structure. It tries the closed form first.
func (o *Optimizer) solveMeanVarianceFamily(mu []float64, cov risk.Matrix, obj Objective, cons Constraints) ([]float64, string, error) {
	if closed, ok := o.closedForm(mu, cov, obj); ok {
		if satisfiesConstraints(cov.Symbols, closed, cons) {
			return closed, "closed_form", nil
		}
		o.log.Debug().
			Str("objective", string(obj.Kind)).
			Msg("Closed-form solution infeasible, falling back to penalty solver")
	}
	weights, err := o.solvePenalty(mu, cov, obj, cons, nil)
	if err != nil {
		return nil, "", err
	}
	return weights, "penalty", nil
}

// closedForm computes the unconstrained-except-budget analytic solution.
// Returns ok=false when the covariance cannot be inverted or the formula
// degenerates.
func (o *Optimizer) closedForm(mu []float64, cov risk.Matrix, obj Objective) ([]float64, bool) {
	n := cov.Dim()
	sigma := cov.Dense()

	var sigmaInv mat.Dense
	if err := sigmaInv.Inverse(sigma); err != nil {
		return nil, false
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1)
	}
	muVec := mat.NewVecDense(n, append([]float64(nil), mu...))

	var sigmaInvOnes, sigmaInvMu mat.VecDense
	sigmaInvOnes.MulVec(&sigmaInv, ones)
	sigmaInvMu.MulVec(&sigmaInv, muVec)

	onesSigmaInvOnes := mat.Dot(ones, &sigmaInvOnes)
	if onesSigmaInvOnes <= 0 {
		return nil, false
	}

	weights := make([]float64, n)

	switch obj.Kind {
	case ObjectiveMinVariance:
		// w = Σ⁻¹1 / (1ᵗΣ⁻¹1)
		for i := 0; i < n; i++ {
			weights[i] = sigmaInvOnes.AtVec(i) / onesSigmaInvOnes
		}

	case ObjectiveMeanVariance:
		// Maximize μᵗw − (λ/2)·wᵗΣw subject to 1ᵗw = 1:
		//   w = Σ⁻¹(μ − γ1)/λ,  γ = (1ᵗΣ⁻¹μ − λ) / (1ᵗΣ⁻¹1)
		lambda := obj.RiskAversion
		if lambda == 0 {
			lambda = DefaultRiskAversion
		}
		gamma := (mat.Dot(ones, &sigmaInvMu) - lambda) / onesSigmaInvOnes
		for i := 0; i < n; i++ {
			weights[i] = (sigmaInvMu.AtVec(i) - gamma*sigmaInvOnes.AtVec(i)) / lambda
		}

	case ObjectiveMaxSharpe:
		// w ∝ Σ⁻¹(μ − r_f·1), normalized to the budget. Degenerates when
		// the excess-return tangency vector has non-positive total weight.
		raw := make([]float64, n)
		total := 0.0
		for i := 0; i < n; i++ {
			raw[i] = sigmaInvMu.AtVec(i) - obj.RiskFreeRate*sigmaInvOnes.AtVec(i)
			total += raw[i]
		}
		if total <= 0 {
			return nil, false
		}
		for i := 0; i < n; i++ {
			weights[i] = raw[i] / total
		}

	default:
		return nil, false
	}

	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, false
		}
	}
	return weights, true
}

// buildResult computes the portfolio statistics for solved weights.
func (o *Optimizer) buildResult(mu []float64, cov risk.Matrix, weights []float64, obj Objective, solver string) Result {
	n := cov.Dim()

	expectedReturn := 0.0
	for i := 0; i < n; i++ {
		expectedReturn += mu[i] * weights[i]
	}

	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += weights[i] * weights[j] * cov.Values[i][j]
		}
	}
	volatility := math.Sqrt(math.Max(variance, 0))

	var sharpe *float64
	if volatility > 0 {
		s := (expectedReturn - obj.RiskFreeRate) / volatility
		sharpe = &s
	}

	return Result{
		Symbols:        append([]string(nil), cov.Symbols...),
		Weights:        weights,
		ExpectedReturn: expectedReturn,
		Volatility:     volatility,
		SharpeRatio:    sharpe,
		Objective:      obj.Kind,
		Solver:         solver,
	}
}
