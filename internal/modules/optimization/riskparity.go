package optimization

import (
	"fmt"
	"math"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

const (
	defaultRiskParityIterations = 1000
	riskParityTolerance         = 1e-8
)

// solveRiskParity finds weights whose risk contributions match the target
// budgets using the multiplicative fixed-point iteration
//
//	w_i ← w_i · sqrt(b_i · σ_p² / RC_i)
//
// where RC_i = w_i · (Σw)_i. With equal budgets each asset contributes
// 1/n of the portfolio variance. The iteration keeps weights strictly
// positive, so the result is inherently long-only.
func (o *Optimizer) solveRiskParity(mu []float64, cov risk.Matrix, obj Objective, cons Constraints) (Result, error) {
	n := cov.Dim()

	budgets, err := resolveBudgets(cov.Symbols, obj.RiskBudgets)
	if err != nil {
		return Result{}, &domain.OptimizationError{Status: "invalid risk budgets", Err: err}
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = budgets[i]
	}

	maxIterations := obj.MaxIterations
	if maxIterations == 0 {
		maxIterations = defaultRiskParityIterations
	}

	sigmaW := make([]float64, n)
	converged := false

	for iter := 0; iter < maxIterations; iter++ {
		variance := 0.0
		for i := 0; i < n; i++ {
			s := 0.0
			for j := 0; j < n; j++ {
				s += cov.Values[i][j] * weights[j]
			}
			sigmaW[i] = s
			variance += weights[i] * s
		}
		if variance <= 0 {
			return Result{}, &domain.OptimizationError{
				Status: "risk parity: portfolio variance is non-positive",
			}
		}

		// Convergence on the worst contribution-share error.
		maxErr := 0.0
		for i := 0; i < n; i++ {
			share := weights[i] * sigmaW[i] / variance
			if e := math.Abs(share - budgets[i]); e > maxErr {
				maxErr = e
			}
		}
		if maxErr < riskParityTolerance {
			converged = true
			break
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			rc := weights[i] * sigmaW[i]
			if rc <= 0 {
				return Result{}, &domain.OptimizationError{
					Status: fmt.Sprintf("risk parity: non-positive risk contribution for %s", cov.Symbols[i]),
				}
			}
			weights[i] *= math.Sqrt(budgets[i] * variance / rc)
			sum += weights[i]
		}
		for i := range weights {
			weights[i] /= sum
		}
	}

	if !converged {
		return Result{}, &domain.OptimizationError{
			Status: fmt.Sprintf("risk parity: no convergence after %d iterations", maxIterations),
		}
	}

	if violation := constraintViolation(cov.Symbols, weights, cons); violation != "" {
		return Result{}, &domain.OptimizationError{
			Status: "risk parity solution violates constraints: " + violation,
		}
	}

	result := o.buildResult(mu, cov, weights, obj, "risk_parity_iteration")
	o.log.Debug().
		Str("objective", string(obj.Kind)).
		Float64("volatility", result.Volatility).
		Msg("Solved risk parity portfolio")
	return result, nil
}

// resolveBudgets returns per-asset budget shares in symbol order,
// normalized to sum to 1. An empty map means equal budgets. A partial map
// is rejected.
func resolveBudgets(symbols []string, budgets map[string]float64) ([]float64, error) {
	n := len(symbols)
	out := make([]float64, n)

	if len(budgets) == 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out, nil
	}

	total := 0.0
	for i, symbol := range symbols {
		b, ok := budgets[symbol]
		if !ok {
			return nil, fmt.Errorf("missing risk budget for %s", symbol)
		}
		out[i] = b
		total += b
	}
	if total <= 0 {
		return nil, fmt.Errorf("risk budgets sum to %v", total)
	}
	for i := range out {
		out[i] /= total
	}
	return out, nil
}
