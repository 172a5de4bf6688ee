package optimization

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

const (
	penaltyWeight            = 1000.0
	defaultPenaltyIterations = 10000
)

// solvePenalty minimizes the objective plus quadratic penalties for the
// budget and group constraints. Asset bounds are handled by projecting
// iterates into their box. A non-nil targetReturn pins the portfolio
// return with an extra quadratic term, which turns any objective into a
// frontier point solve. BFGS runs first; NelderMead is the fallback when
// it fails or stalls.
func (o *Optimizer) solvePenalty(mu []float64, cov risk.Matrix, obj Objective, cons Constraints, targetReturn *float64) ([]float64, error) {
	n := cov.Dim()
	sigma := cov.Dense()
	lower, upper := effectiveBounds(cov.Symbols, cons)

	maxIterations := obj.MaxIterations
	if maxIterations == 0 {
		maxIterations = defaultPenaltyIterations
	}

	lambda := obj.RiskAversion
	if lambda == 0 {
		lambda = DefaultRiskAversion
	}

	project := func(x []float64) []float64 {
		proj := make([]float64, n)
		for i := range x {
			proj[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
		}
		return proj
	}

	// Group membership resolved once.
	index := make(map[string]int, n)
	for i, symbol := range cov.Symbols {
		index[symbol] = i
	}
	groupMembers := make([][]int, len(cons.Groups))
	for gi, g := range cons.Groups {
		for _, symbol := range g.Symbols {
			if i, ok := index[symbol]; ok {
				groupMembers[gi] = append(groupMembers[gi], i)
			}
		}
	}

	groupPenalty := func(x []float64) float64 {
		penalty := 0.0
		for gi, g := range cons.Groups {
			total := 0.0
			for _, i := range groupMembers[gi] {
				total += x[i]
			}
			if total < g.Lower {
				penalty += penaltyWeight * (g.Lower - total) * (g.Lower - total)
			}
			if total > g.Upper {
				penalty += penaltyWeight * (total - g.Upper) * (total - g.Upper)
			}
		}
		return penalty
	}

	objective := func(x []float64) float64 {
		xp := project(x)

		portfolioReturn := 0.0
		for i := 0; i < n; i++ {
			portfolioReturn += mu[i] * xp[i]
		}
		variance := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				variance += xp[i] * xp[j] * sigma.At(i, j)
			}
		}

		var val float64
		switch obj.Kind {
		case ObjectiveMinVariance:
			val = variance
		case ObjectiveMeanVariance:
			val = -(portfolioReturn - lambda/2*variance)
		case ObjectiveMaxSharpe:
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			val = -(portfolioReturn - obj.RiskFreeRate) / stdDev
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			sum += xp[i]
		}
		val += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		val += groupPenalty(xp)
		if targetReturn != nil {
			miss := portfolioReturn - *targetReturn
			val += penaltyWeight * miss * miss
		}
		if cons.MaxLeverage > 0 {
			gross := 0.0
			for i := 0; i < n; i++ {
				gross += math.Abs(xp[i])
			}
			if gross > cons.MaxLeverage {
				excess := gross - cons.MaxLeverage
				val += penaltyWeight * excess * excess
			}
		}
		return val
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{MajorIterations: maxIterations}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !successStatuses[result.Status] {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, &domain.OptimizationError{Status: "solver error", Err: err}
		}
		if !successStatuses[result.Status] {
			return nil, &domain.OptimizationError{
				Status: "did not converge: " + result.Status.String(),
			}
		}
	}

	// Project the final iterate into the box, then restore the budget by
	// spreading the residual over assets with remaining slack.
	weights := project(result.X)
	for iter := 0; iter < 100; iter++ {
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		residual := 1.0 - sum
		if math.Abs(residual) < 1e-10 {
			break
		}

		var free []int
		for i, w := range weights {
			if (residual > 0 && w < upper[i]-1e-12) || (residual < 0 && w > lower[i]+1e-12) {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			return nil, &domain.OptimizationError{
				Status: "cannot satisfy budget within asset bounds",
			}
		}
		share := residual / float64(len(free))
		for _, i := range free {
			weights[i] += share
		}
		weights = project(weights)
	}
	return weights, nil
}
