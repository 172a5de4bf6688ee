package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

func covMatrix(symbols []string, values [][]float64) risk.Matrix {
	return risk.Matrix{Symbols: symbols, Values: values, Method: "sample"}
}

func diagCov(symbols []string, variances []float64) risk.Matrix {
	n := len(symbols)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = variances[i]
	}
	return covMatrix(symbols, values)
}

func TestSolve_MinVarianceDiagonalExact(t *testing.T) {
	// With Σ = diag(0.01, 0.04) the minimum-variance weights are inverse
	// variance: (0.8, 0.2).
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{})
	require.NoError(t, err)

	assert.Equal(t, "closed_form", result.Solver)
	assert.InDelta(t, 0.8, result.Weights[0], 1e-9)
	assert.InDelta(t, 0.2, result.Weights[1], 1e-9)
	assert.InDelta(t, 0.8*0.05+0.2*0.08, result.ExpectedReturn, 1e-9)
}

func TestSolve_WeightsSumToOne(t *testing.T) {
	cov := covMatrix([]string{"AAA", "BBB", "CCC"}, [][]float64{
		{0.04, 0.01, 0.005},
		{0.01, 0.03, 0.008},
		{0.005, 0.008, 0.05},
	})
	mu := []float64{0.08, 0.06, 0.10}

	opt := NewOptimizer(zerolog.Nop())
	for _, kind := range []ObjectiveKind{ObjectiveMinVariance, ObjectiveMeanVariance, ObjectiveMaxSharpe} {
		result, err := opt.Solve(mu, cov, Objective{Kind: kind, RiskAversion: 2.5}, Constraints{})
		require.NoError(t, err, "objective %s", kind)

		sum := 0.0
		for _, w := range result.Weights {
			assert.GreaterOrEqual(t, w, -1e-6, "objective %s", kind)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-4, "objective %s", kind)
	}
}

func TestSolve_RespectsAssetBounds(t *testing.T) {
	// Unconstrained min-variance puts 0.8 on AAA; the cap forces spill
	// into BBB through the penalty solver.
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{
		AssetBounds: map[string]Bounds{
			"AAA": {Lower: 0, Upper: 0.6},
			"BBB": {Lower: 0, Upper: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "penalty", result.Solver)
	assert.LessOrEqual(t, result.Weights[0], 0.6+1e-6)
	sum := result.Weights[0] + result.Weights[1]
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestSolve_GroupConstraint(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB", "CCC"}, []float64{0.01, 0.02, 0.04})
	mu := []float64{0.05, 0.06, 0.09}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{
		Groups: []GroupConstraint{
			{Name: "tech", Symbols: []string{"AAA", "BBB"}, Lower: 0, Upper: 0.5},
		},
	})
	require.NoError(t, err)

	groupWeight := result.Weights[0] + result.Weights[1]
	assert.LessOrEqual(t, groupWeight, 0.5+1e-4)
}

func TestSolve_MaxSharpeTangency(t *testing.T) {
	// For diagonal Σ the tangency portfolio is proportional to excess
	// return over variance.
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.04, 0.04})
	mu := []float64{0.10, 0.06}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMaxSharpe, RiskFreeRate: 0.02}, Constraints{})
	require.NoError(t, err)

	// Raw tangency: (0.08, 0.04)/0.04 → normalized (2/3, 1/3).
	assert.InDelta(t, 2.0/3.0, result.Weights[0], 1e-6)
	assert.InDelta(t, 1.0/3.0, result.Weights[1], 1e-6)
	require.NotNil(t, result.SharpeRatio)
	assert.Greater(t, *result.SharpeRatio, 0.0)
}

func TestSolve_RiskParityEqualContributions(t *testing.T) {
	cov := covMatrix([]string{"AAA", "BBB", "CCC"}, [][]float64{
		{0.04, 0.006, 0.002},
		{0.006, 0.01, 0.003},
		{0.002, 0.003, 0.025},
	})
	mu := []float64{0.07, 0.05, 0.06}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveRiskParity}, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "risk_parity_iteration", result.Solver)

	// Each asset's risk contribution w_i·(Σw)_i must be an equal share of
	// the portfolio variance.
	n := len(result.Weights)
	variance := 0.0
	contributions := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += cov.Values[i][j] * result.Weights[j]
		}
		contributions[i] = result.Weights[i] * s
		variance += contributions[i]
	}
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1.0/float64(n), contributions[i]/variance, 1e-6)
	}
}

func TestSolve_RiskParityCustomBudgets(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	result, err := opt.Solve(mu, cov, Objective{
		Kind:        ObjectiveRiskParity,
		RiskBudgets: map[string]float64{"AAA": 3, "BBB": 1},
	}, Constraints{})
	require.NoError(t, err)

	variance := 0.0
	contributions := make([]float64, 2)
	for i := 0; i < 2; i++ {
		s := cov.Values[i][i] * result.Weights[i]
		contributions[i] = result.Weights[i] * s
		variance += contributions[i]
	}
	assert.InDelta(t, 0.75, contributions[0]/variance, 1e-6)
	assert.InDelta(t, 0.25, contributions[1]/variance, 1e-6)
}

func TestSolve_InfeasibleConstraints(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}
	opt := NewOptimizer(zerolog.Nop())

	cases := []struct {
		name string
		cons Constraints
	}{
		{
			name: "lower above upper",
			cons: Constraints{AssetBounds: map[string]Bounds{"AAA": {Lower: 0.8, Upper: 0.2}}},
		},
		{
			name: "lower bounds exceed budget",
			cons: Constraints{AssetBounds: map[string]Bounds{
				"AAA": {Lower: 0.7, Upper: 1},
				"BBB": {Lower: 0.7, Upper: 1},
			}},
		},
		{
			name: "upper bounds below budget",
			cons: Constraints{AssetBounds: map[string]Bounds{
				"AAA": {Lower: 0, Upper: 0.3},
				"BBB": {Lower: 0, Upper: 0.3},
			}},
		},
		{
			name: "group references unknown asset",
			cons: Constraints{Groups: []GroupConstraint{
				{Name: "g", Symbols: []string{"ZZZ"}, Lower: 0, Upper: 1},
			}},
		},
		{
			name: "group bounds inverted",
			cons: Constraints{Groups: []GroupConstraint{
				{Name: "g", Symbols: []string{"AAA"}, Lower: 0.9, Upper: 0.1},
			}},
		},
		{
			name: "leverage below budget",
			cons: Constraints{MaxLeverage: 0.5},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, tc.cons)
			var infeasibleErr *domain.InfeasibleConstraintsError
			require.ErrorAs(t, err, &infeasibleErr)
		})
	}
}

func TestSolve_LeverageBound(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}
	opt := NewOptimizer(zerolog.Nop())

	// A long-only portfolio has gross exposure 1, so the bound never binds.
	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{
		MaxLeverage: 1.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, result.Weights[0], 1e-9)

	// Long-short portfolios are rejected when gross exposure exceeds the
	// bound.
	wide := Constraints{
		AllowShort: true,
		AssetBounds: map[string]Bounds{
			"AAA": {Lower: -2, Upper: 2},
			"BBB": {Lower: -2, Upper: 2},
		},
		MaxLeverage: 1.5,
	}
	assert.NotEmpty(t, constraintViolation(
		[]string{"AAA", "BBB"}, []float64{1.6, -0.6}, wide,
	))
	assert.Empty(t, constraintViolation(
		[]string{"AAA", "BBB"}, []float64{1.2, -0.2}, wide,
	))
}

func TestConstraints_ZeroValueIsLongOnly(t *testing.T) {
	symbols := []string{"AAA", "BBB"}

	lower, upper := effectiveBounds(symbols, Constraints{})
	assert.Equal(t, []float64{0, 0}, lower)
	assert.Equal(t, []float64{1, 1}, upper)

	lower, _ = effectiveBounds(symbols, Constraints{AllowShort: true})
	assert.Equal(t, []float64{-1, -1}, lower)

	// Negative explicit lower bounds are floored unless shorting is on.
	lower, _ = effectiveBounds(symbols, Constraints{
		AssetBounds: map[string]Bounds{"AAA": {Lower: -0.5, Upper: 1}},
	})
	assert.Equal(t, 0.0, lower[0])

	// A highly correlated pair wants a short leg; with the zero-value
	// constraints the solved weights stay non-negative.
	cov := covMatrix(symbols, [][]float64{
		{0.01, 0.011},
		{0.011, 0.04},
	})
	mu := []float64{0.05, 0.08}
	opt := NewOptimizer(zerolog.Nop())

	result, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{})
	require.NoError(t, err)
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w, -1e-6)
	}

	shorting, err := opt.Solve(mu, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{
		AllowShort: true,
		AssetBounds: map[string]Bounds{
			"AAA": {Lower: -2, Upper: 2},
			"BBB": {Lower: -2, Upper: 2},
		},
	})
	require.NoError(t, err)
	assert.Less(t, shorting.Weights[1], 0.0)
}

func TestSolve_IterationBudget(t *testing.T) {
	cov := covMatrix([]string{"AAA", "BBB", "CCC"}, [][]float64{
		{0.04, 0.006, 0.002},
		{0.006, 0.01, 0.003},
		{0.002, 0.003, 0.025},
	})
	mu := []float64{0.07, 0.05, 0.06}
	opt := NewOptimizer(zerolog.Nop())

	// One iteration is not enough for the risk parity fixed point.
	_, err := opt.Solve(mu, cov, Objective{
		Kind:          ObjectiveRiskParity,
		MaxIterations: 1,
	}, Constraints{})
	var optErr *domain.OptimizationError
	require.ErrorAs(t, err, &optErr)
	assert.Contains(t, optErr.Status, "after 1 iterations")

	// Same for the penalty solver, forced off the closed form by a cap.
	capped := Constraints{
		AssetBounds: map[string]Bounds{
			"AAA": {Lower: 0, Upper: 0.6},
			"BBB": {Lower: 0, Upper: 1},
		},
	}
	_, err = opt.Solve([]float64{0.05, 0.08}, diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04}), Objective{
		Kind:          ObjectiveMinVariance,
		MaxIterations: 1,
	}, capped)
	require.ErrorAs(t, err, &optErr)

	// The default budget solves both.
	_, err = opt.Solve(mu, cov, Objective{Kind: ObjectiveRiskParity}, Constraints{})
	require.NoError(t, err)
}

func TestSolve_DimensionMismatch(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	opt := NewOptimizer(zerolog.Nop())

	_, err := opt.Solve([]float64{0.05}, cov, Objective{Kind: ObjectiveMinVariance}, Constraints{})
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestObjective_Validate(t *testing.T) {
	assert.NoError(t, Objective{Kind: ObjectiveMinVariance}.Validate())
	assert.NoError(t, Objective{Kind: ObjectiveMeanVariance, RiskAversion: 2.5}.Validate())
	assert.Error(t, Objective{Kind: "bogus"}.Validate())
	assert.Error(t, Objective{Kind: ObjectiveMeanVariance, RiskAversion: -1}.Validate())
	assert.Error(t, Objective{Kind: ObjectiveMinVariance, MaxIterations: -1}.Validate())
	assert.Error(t, Objective{Kind: ObjectiveRiskParity, RiskBudgets: map[string]float64{"AAA": -1}}.Validate())
}
