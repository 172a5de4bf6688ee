package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/factors"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

func testPanel(t *testing.T, symbols []string, data map[string][]float64) timeseries.Panel {
	t.Helper()
	n := 0
	for _, series := range data {
		n = len(series)
		break
	}
	dates := make([]string, n)
	for i := range dates {
		dates[i] = "d" + string(rune('0'+i%10)) + string(rune('a'+i/10))
	}
	panel, err := timeseries.New(dates, symbols, data)
	require.NoError(t, err)
	return panel
}

func randomishPanel(t *testing.T) timeseries.Panel {
	// Deterministic pseudo-random returns, enough observations for the
	// shrinkage moments to be well behaved.
	n := 80
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		a[i] = 0.01*math.Sin(1.3*x) + 0.002*math.Cos(7.1*x)
		b[i] = 0.008*math.Sin(1.3*x+0.5) + 0.003*math.Sin(3.7*x)
		c[i] = 0.012*math.Cos(0.9*x) + 0.001*math.Sin(11.3*x)
	}
	return testPanel(t, []string{"AAA", "BBB", "CCC"}, map[string][]float64{
		"AAA": a, "BBB": b, "CCC": c,
	})
}

func minEigenvalue(t *testing.T, m Matrix) float64 {
	t.Helper()
	var eig mat.EigenSym
	require.True(t, eig.Factorize(m.Sym(), false))
	values := eig.Values(nil)
	min := values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
	}
	return min
}

func TestEstimate_SampleMatchesGonum(t *testing.T) {
	x := []float64{0.01, -0.02, 0.03, 0.005, -0.01, 0.02}
	y := []float64{0.005, 0.01, -0.015, 0.02, 0.002, -0.008}
	panel := testPanel(t, []string{"AAA", "BBB"}, map[string][]float64{"AAA": x, "BBB": y})

	est := NewEstimator(Config{Method: MethodSample}, zerolog.Nop())
	m, err := est.Estimate(panel)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, m.Symbols)
	assert.InDelta(t, stat.Variance(x, nil), m.At(0, 0), 1e-12)
	assert.InDelta(t, stat.Variance(y, nil), m.At(1, 1), 1e-12)
	assert.InDelta(t, stat.Covariance(x, y, nil), m.At(0, 1), 1e-12)
	assert.Equal(t, m.At(0, 1), m.At(1, 0))
}

func TestEstimate_LedoitWolfIsPSD(t *testing.T) {
	panel := randomishPanel(t)

	est := NewEstimator(Config{Method: MethodLedoitWolf}, zerolog.Nop())
	m, err := est.Estimate(panel)
	require.NoError(t, err)

	assert.Equal(t, string(MethodLedoitWolf), m.Method)
	assert.GreaterOrEqual(t, m.Shrinkage, 0.0)
	assert.LessOrEqual(t, m.Shrinkage, 1.0)
	assert.GreaterOrEqual(t, minEigenvalue(t, m), 0.0)
}

func TestEstimate_LedoitWolfShrinkageOverride(t *testing.T) {
	panel := randomishPanel(t)

	full := 1.0
	est := NewEstimator(Config{Method: MethodLedoitWolf, ShrinkageOverride: &full}, zerolog.Nop())
	m, err := est.Estimate(panel)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Shrinkage)

	// Full shrinkage lands exactly on the constant-correlation target: all
	// off-diagonal correlations equal.
	corr := m.Correlation()
	assert.InDelta(t, corr[0][1], corr[0][2], 1e-9)
	assert.InDelta(t, corr[0][1], corr[1][2], 1e-9)
}

func TestEstimate_EWMAWeightsRecent(t *testing.T) {
	// A series whose dispersion grows over time: exponential weighting must
	// see more variance than flat weighting of the early quiet period alone.
	n := 60
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		scale := 0.001
		if i >= n/2 {
			scale = 0.02
		}
		a[i] = scale * math.Sin(2.1*float64(i))
		b[i] = scale * math.Cos(1.7*float64(i))
	}
	panel := testPanel(t, []string{"AAA", "BBB"}, map[string][]float64{"AAA": a, "BBB": b})

	ewma := NewEstimator(Config{Method: MethodEWMA, Halflife: 5}, zerolog.Nop())
	sample := NewEstimator(Config{Method: MethodSample}, zerolog.Nop())

	mEWMA, err := ewma.Estimate(panel)
	require.NoError(t, err)
	mSample, err := sample.Estimate(panel)
	require.NoError(t, err)

	// Short-halflife EWMA emphasizes the recent high-volatility regime.
	assert.Greater(t, mEWMA.At(0, 0), mSample.At(0, 0))
}

func TestEstimateFromFactors_Structure(t *testing.T) {
	set := factors.ExposureSet{
		FactorNames: []string{"MKT"},
		Exposures: []factors.Exposure{
			{Symbol: "AAA", Betas: []float64{1.2}, ResidualVariance: 0.001},
			{Symbol: "BBB", Betas: []float64{0.8}, ResidualVariance: 0.002},
		},
	}
	mkt := []float64{0.01, -0.02, 0.015, 0.005, -0.01, 0.02, -0.005, 0.012}
	factorPanel := testPanel(t, []string{"MKT"}, map[string][]float64{"MKT": mkt})

	est := NewEstimator(Config{Method: MethodFactor}, zerolog.Nop())
	m, err := est.EstimateFromFactors(set, factorPanel)
	require.NoError(t, err)

	factorVar := stat.Variance(mkt, nil)
	assert.Equal(t, []string{"AAA", "BBB"}, m.Symbols)
	assert.InDelta(t, 1.2*1.2*factorVar+0.001, m.At(0, 0), 1e-10)
	assert.InDelta(t, 0.8*0.8*factorVar+0.002, m.At(1, 1), 1e-10)
	assert.InDelta(t, 1.2*0.8*factorVar, m.At(0, 1), 1e-10)
	assert.GreaterOrEqual(t, minEigenvalue(t, m), 0.0)
}

func TestEstimate_RejectsDegenerateInput(t *testing.T) {
	est := NewEstimator(Config{Method: MethodSample}, zerolog.Nop())

	// Too few observations.
	short := testPanel(t, []string{"AAA"}, map[string][]float64{"AAA": {0.01}})
	_, err := est.Estimate(short)
	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)

	// Constant series.
	flat := testPanel(t, []string{"AAA", "BBB"}, map[string][]float64{
		"AAA": {0.01, 0.01, 0.01},
		"BBB": {0.02, -0.01, 0.005},
	})
	_, err = est.Estimate(flat)
	var singularErr *domain.SingularInputError
	require.ErrorAs(t, err, &singularErr)

	// Non-finite observation.
	bad := testPanel(t, []string{"AAA", "BBB"}, map[string][]float64{
		"AAA": {0.01, math.NaN(), 0.02},
		"BBB": {0.02, -0.01, 0.005},
	})
	_, err = est.Estimate(bad)
	require.ErrorAs(t, err, &singularErr)
}

func TestEstimate_FactorMethodNeedsExposures(t *testing.T) {
	panel := randomishPanel(t)
	est := NewEstimator(Config{Method: MethodFactor}, zerolog.Nop())
	_, err := est.Estimate(panel)
	var singularErr *domain.SingularInputError
	require.ErrorAs(t, err, &singularErr)
}
