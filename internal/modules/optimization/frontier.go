package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

// defaultFrontierPoints is the sweep resolution when the caller does not
// pick one.
const defaultFrontierPoints = 50

// FrontierPoint is one minimum-variance portfolio pinned to a target
// return.
type FrontierPoint struct {
	TargetReturn   float64   `json:"target_return"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Weights        []float64 `json:"weights"`
}

// Frontier traces the efficient frontier by sweeping target returns from
// the minimum-variance portfolio's return up to the highest attainable
// return, solving a return-pinned minimum-variance problem at each step.
// Targets with no feasible portfolio are dropped; at least one point must
// survive. points <= 0 selects the default resolution.
func (o *Optimizer) Frontier(mu []float64, cov risk.Matrix, points int, cons Constraints) ([]FrontierPoint, error) {
	n := cov.Dim()
	if n == 0 {
		return nil, &domain.InsufficientDataError{Context: "frontier", Need: 1, Got: 0}
	}
	if len(mu) != n {
		return nil, &domain.DataAlignmentError{
			Context: "expected returns vs covariance",
			Want:    n,
			Got:     len(mu),
		}
	}
	if err := validateConstraints(cov.Symbols, cons); err != nil {
		return nil, err
	}
	if points <= 0 {
		points = defaultFrontierPoints
	}

	low, high, err := o.frontierRange(mu, cov, cons)
	if err != nil {
		return nil, err
	}

	out := make([]FrontierPoint, 0, points)
	for i := 0; i < points; i++ {
		target := low
		if points > 1 {
			target = low + (high-low)*float64(i)/float64(points-1)
		}

		weights, err := o.solveTargetReturn(mu, cov, cons, target)
		if err != nil {
			continue
		}
		if constraintViolation(cov.Symbols, weights, cons) != "" {
			continue
		}

		ret := 0.0
		variance := 0.0
		for a := 0; a < n; a++ {
			ret += mu[a] * weights[a]
			for b := 0; b < n; b++ {
				variance += weights[a] * weights[b] * cov.Values[a][b]
			}
		}
		out = append(out, FrontierPoint{
			TargetReturn:   target,
			ExpectedReturn: ret,
			Volatility:     math.Sqrt(math.Max(variance, 0)),
			Weights:        weights,
		})
	}

	if len(out) == 0 {
		return nil, &domain.OptimizationError{
			Status: "no feasible frontier points",
		}
	}

	o.log.Debug().
		Int("requested", points).
		Int("solved", len(out)).
		Msg("Traced efficient frontier")
	return out, nil
}

// frontierRange picks the return interval to sweep. The lower end is the
// constrained minimum-variance return. The upper end is the best single
// asset for long-only portfolios and the tangency portfolio's return when
// shorting is allowed.
func (o *Optimizer) frontierRange(mu []float64, cov risk.Matrix, cons Constraints) (float64, float64, error) {
	minVarWeights, _, err := o.solveMeanVarianceFamily(mu, cov, Objective{Kind: ObjectiveMinVariance}, cons)
	if err != nil {
		return 0, 0, err
	}
	low := 0.0
	for i, w := range minVarWeights {
		low += mu[i] * w
	}

	high := mu[0]
	for _, m := range mu[1:] {
		if m > high {
			high = m
		}
	}
	if cons.AllowShort {
		if tangency, _, err := o.solveMeanVarianceFamily(mu, cov, Objective{Kind: ObjectiveMaxSharpe}, cons); err == nil {
			ret := 0.0
			for i, w := range tangency {
				ret += mu[i] * w
			}
			if ret > high {
				high = ret
			}
		}
	}
	if high < low {
		high = low
	}
	return low, high, nil
}

// solveTargetReturn minimizes variance subject to the budget and a pinned
// expected return. The two-multiplier analytic solution is used when it
// lands inside the feasible region; otherwise the return pin joins the
// penalty formulation.
func (o *Optimizer) solveTargetReturn(mu []float64, cov risk.Matrix, cons Constraints, target float64) ([]float64, error) {
	if closed, ok := o.closedFormTarget(mu, cov, target); ok {
		if satisfiesConstraints(cov.Symbols, closed, cons) {
			return closed, nil
		}
	}
	return o.solvePenalty(mu, cov, Objective{Kind: ObjectiveMinVariance}, cons, &target)
}

// closedFormTarget solves min wᵗΣw s.t. 1ᵗw = 1, μᵗw = target:
//
//	w = λ·Σ⁻¹1 + γ·Σ⁻¹μ,  λ = (C − B·target)/D,  γ = (A·target − B)/D
//
// with A = 1ᵗΣ⁻¹1, B = 1ᵗΣ⁻¹μ, C = μᵗΣ⁻¹μ, D = AC − B². Returns ok=false
// when Σ cannot be inverted or the system degenerates.
func (o *Optimizer) closedFormTarget(mu []float64, cov risk.Matrix, target float64) ([]float64, bool) {
	n := cov.Dim()

	var sigmaInv mat.Dense
	if err := sigmaInv.Inverse(cov.Dense()); err != nil {
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

	a := mat.Dot(ones, &sigmaInvOnes)
	b := mat.Dot(ones, &sigmaInvMu)
	c := mat.Dot(muVec, &sigmaInvMu)
	d := a*c - b*b
	if a <= 0 || math.Abs(d) < 1e-14 {
		return nil, false
	}

	lambda := (c - b*target) / d
	gamma := (a*target - b) / d

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = lambda*sigmaInvOnes.AtVec(i) + gamma*sigmaInvMu.AtVec(i)
		if math.IsNaN(weights[i]) || math.IsInf(weights[i], 0) {
			return nil, false
		}
	}
	return weights, true
}
