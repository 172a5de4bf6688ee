package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjeshnu/quantfolio/internal/domain"
)

func TestFrontier_DiagonalTwoAssets(t *testing.T) {
	// With Σ = diag(0.01, 0.04) and two assets, the budget and return pins
	// determine the weights exactly: w_BBB = (target − 0.05)/0.03.
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	points, err := opt.Frontier(mu, cov, 5, Constraints{})
	require.NoError(t, err)
	require.Len(t, points, 5)

	// The sweep starts at the minimum-variance portfolio (0.8, 0.2) and
	// ends fully in the highest-return asset.
	first, last := points[0], points[len(points)-1]
	assert.InDelta(t, 0.8, first.Weights[0], 1e-6)
	assert.InDelta(t, 0.2, first.Weights[1], 1e-6)
	assert.InDelta(t, 0.056, first.ExpectedReturn, 1e-6)
	assert.InDelta(t, 1.0, last.Weights[1], 1e-4)
	assert.InDelta(t, 0.08, last.ExpectedReturn, 1e-4)

	for _, p := range points {
		expectedShort := (p.TargetReturn - 0.05) / 0.03
		assert.InDelta(t, expectedShort, p.Weights[1], 1e-4)
		assert.InDelta(t, p.TargetReturn, p.ExpectedReturn, 1e-4)
		assert.InDelta(t, 1.0, p.Weights[0]+p.Weights[1], 1e-6)
	}
}

func TestFrontier_RiskIncreasesWithReturn(t *testing.T) {
	cov := covMatrix([]string{"AAA", "BBB", "CCC"}, [][]float64{
		{0.04, 0.01, 0.005},
		{0.01, 0.03, 0.008},
		{0.005, 0.008, 0.05},
	})
	mu := []float64{0.08, 0.06, 0.10}

	opt := NewOptimizer(zerolog.Nop())
	points, err := opt.Frontier(mu, cov, 10, Constraints{})
	require.NoError(t, err)
	require.NotEmpty(t, points)

	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].ExpectedReturn, points[i-1].ExpectedReturn-1e-3)
		assert.GreaterOrEqual(t, points[i].Volatility, points[i-1].Volatility-1e-3)
	}
	for _, p := range points {
		sum := 0.0
		for _, w := range p.Weights {
			assert.GreaterOrEqual(t, w, -1e-6)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestFrontier_DefaultResolution(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	points, err := opt.Frontier(mu, cov, 0, Constraints{})
	require.NoError(t, err)
	assert.Len(t, points, defaultFrontierPoints)
}

func TestFrontier_InfeasibleConstraints(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	mu := []float64{0.05, 0.08}

	opt := NewOptimizer(zerolog.Nop())
	_, err := opt.Frontier(mu, cov, 5, Constraints{
		AssetBounds: map[string]Bounds{"AAA": {Lower: 0.8, Upper: 0.2}},
	})
	var infeasibleErr *domain.InfeasibleConstraintsError
	require.ErrorAs(t, err, &infeasibleErr)
}

func TestFrontier_DimensionMismatch(t *testing.T) {
	cov := diagCov([]string{"AAA", "BBB"}, []float64{0.01, 0.04})
	opt := NewOptimizer(zerolog.Nop())

	_, err := opt.Frontier([]float64{0.05}, cov, 5, Constraints{})
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
}
