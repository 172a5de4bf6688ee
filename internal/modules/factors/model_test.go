package factors

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

func makePanel(t *testing.T, symbols []string, data map[string][]float64) timeseries.Panel {
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

func TestEstimateExposures_ExactLinearFit(t *testing.T) {
	factor := []float64{0.01, -0.02, 0.03, 0.005, -0.015, 0.02, -0.01, 0.025}

	// Asset is exactly alpha + 2*factor, so the regression must recover the
	// coefficients with zero residual variance and R² of 1.
	asset := make([]float64, len(factor))
	for i, f := range factor {
		asset[i] = 0.001 + 2*f
	}

	assets := makePanel(t, []string{"AAA"}, map[string][]float64{"AAA": asset})
	factorPanel := makePanel(t, []string{"MKT"}, map[string][]float64{"MKT": factor})

	model := NewModel(zerolog.Nop())
	set, err := model.EstimateExposures(assets, factorPanel)
	require.NoError(t, err)
	require.Len(t, set.Exposures, 1)

	exp := set.Exposures[0]
	assert.Equal(t, "AAA", exp.Symbol)
	assert.InDelta(t, 0.001, exp.Alpha, 1e-10)
	require.Len(t, exp.Betas, 1)
	assert.InDelta(t, 2.0, exp.Betas[0], 1e-10)
	assert.InDelta(t, 0.0, exp.ResidualVariance, 1e-12)
	assert.InDelta(t, 1.0, exp.RSquared, 1e-10)
}

func TestEstimateExposures_TwoFactors(t *testing.T) {
	mkt := []float64{0.01, -0.02, 0.03, 0.005, -0.015, 0.02, -0.01, 0.025, 0.012, -0.008}
	smb := []float64{0.005, 0.01, -0.02, 0.015, 0.002, -0.012, 0.008, -0.005, 0.01, 0.004}

	asset := make([]float64, len(mkt))
	for i := range mkt {
		asset[i] = 1.5*mkt[i] - 0.5*smb[i]
	}

	assets := makePanel(t, []string{"AAA"}, map[string][]float64{"AAA": asset})
	factorPanel := makePanel(t, []string{"MKT", "SMB"}, map[string][]float64{"MKT": mkt, "SMB": smb})

	set, err := NewModel(zerolog.Nop()).EstimateExposures(assets, factorPanel)
	require.NoError(t, err)
	assert.Equal(t, []string{"MKT", "SMB"}, set.FactorNames)

	exp := set.Exposures[0]
	assert.InDelta(t, 1.5, exp.Betas[0], 1e-9)
	assert.InDelta(t, -0.5, exp.Betas[1], 1e-9)
}

func TestEstimateExposures_PanelMismatch(t *testing.T) {
	assets := makePanel(t, []string{"AAA"}, map[string][]float64{"AAA": {0.01, 0.02, 0.03}})
	factorPanel := makePanel(t, []string{"MKT"}, map[string][]float64{"MKT": {0.01, 0.02}})

	_, err := NewModel(zerolog.Nop()).EstimateExposures(assets, factorPanel)
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestEstimateExposures_TooFewObservations(t *testing.T) {
	// Two factors need at least three observations (two betas plus the
	// intercept); two must fail.
	assets := makePanel(t, []string{"AAA"}, map[string][]float64{"AAA": {0.01, 0.02}})
	factorPanel := makePanel(t, []string{"MKT", "SMB"}, map[string][]float64{
		"MKT": {0.01, 0.02},
		"SMB": {0.03, 0.04},
	})

	_, err := NewModel(zerolog.Nop()).EstimateExposures(assets, factorPanel)
	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 3, insufficientErr.Need)
	assert.Equal(t, 2, insufficientErr.Got)
}

func TestEstimateExposures_NonFiniteReturns(t *testing.T) {
	asset := []float64{0.01, 0.02, math.Inf(1), 0.04}

	assets := makePanel(t, []string{"AAA"}, map[string][]float64{"AAA": asset})
	factorPanel := makePanel(t, []string{"MKT"}, map[string][]float64{
		"MKT": {0.01, -0.01, 0.02, -0.02},
	})

	_, err := NewModel(zerolog.Nop()).EstimateExposures(assets, factorPanel)
	var singularErr *domain.SingularInputError
	require.ErrorAs(t, err, &singularErr)
}

func TestExposureSet_BetasMatrix(t *testing.T) {
	set := ExposureSet{
		FactorNames: []string{"MKT", "SMB"},
		Exposures: []Exposure{
			{Symbol: "AAA", Betas: []float64{1.1, 0.2}, ResidualVariance: 0.01},
			{Symbol: "BBB", Betas: []float64{0.9, -0.3}, ResidualVariance: 0.02},
		},
	}

	b := set.Betas()
	rows, cols := b.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 1.1, b.At(0, 0))
	assert.Equal(t, -0.3, b.At(1, 1))
	assert.Equal(t, []float64{0.01, 0.02}, set.ResidualVariances())
}
