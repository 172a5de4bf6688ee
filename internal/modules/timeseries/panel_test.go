package timeseries

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjeshnu/quantfolio/internal/domain"
)

func TestNew_ValidatesSeriesLengths(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-02"}

	_, err := New(dates, []string{"AAA"}, map[string][]float64{
		"AAA": {0.01},
	})
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
	assert.Equal(t, 2, alignErr.Want)
	assert.Equal(t, 1, alignErr.Got)

	_, err = New(dates, []string{"AAA", "BBB"}, map[string][]float64{
		"AAA": {0.01, 0.02},
	})
	require.ErrorAs(t, err, &alignErr)
}

func TestPanel_WindowCopies(t *testing.T) {
	panel, err := New(
		[]string{"d1", "d2", "d3", "d4"},
		[]string{"AAA"},
		map[string][]float64{"AAA": {0.01, 0.02, 0.03, 0.04}},
	)
	require.NoError(t, err)

	window := panel.Window(1, 3)
	assert.Equal(t, []string{"d2", "d3"}, window.Dates)
	assert.Equal(t, []float64{0.02, 0.03}, window.Data["AAA"])

	// Mutating the window must not touch the source.
	window.Data["AAA"][0] = 99
	assert.Equal(t, 0.02, panel.Data["AAA"][1])
}

func TestPanel_Row(t *testing.T) {
	panel, err := New(
		[]string{"d1", "d2"},
		[]string{"AAA", "BBB"},
		map[string][]float64{
			"AAA": {0.01, 0.02},
			"BBB": {0.03, 0.04},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.02, 0.04}, panel.Row(1))
}

func TestAlign_CommonDates(t *testing.T) {
	a, err := New(
		[]string{"d1", "d2", "d3"},
		[]string{"AAA"},
		map[string][]float64{"AAA": {0.1, 0.2, 0.3}},
	)
	require.NoError(t, err)
	b, err := New(
		[]string{"d2", "d3", "d4"},
		[]string{"BBB"},
		map[string][]float64{"BBB": {0.4, 0.5, 0.6}},
	)
	require.NoError(t, err)

	alignedA, alignedB, err := Align(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3"}, alignedA.Dates)
	assert.Equal(t, []float64{0.2, 0.3}, alignedA.Data["AAA"])
	assert.Equal(t, []float64{0.4, 0.5}, alignedB.Data["BBB"])
}

func TestAlign_NoOverlap(t *testing.T) {
	a, _ := New([]string{"d1"}, []string{"AAA"}, map[string][]float64{"AAA": {0.1}})
	b, _ := New([]string{"d2"}, []string{"BBB"}, map[string][]float64{"BBB": {0.2}})

	_, _, err := Align(a, b)
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestPanel_MissingCount(t *testing.T) {
	panel, err := New(
		[]string{"d1", "d2"},
		[]string{"AAA"},
		map[string][]float64{"AAA": {math.NaN(), 0.02}},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, panel.MissingCount())
}

func TestPanel_Excess(t *testing.T) {
	panel, err := New(
		[]string{"d1", "d2"},
		[]string{"AAA"},
		map[string][]float64{"AAA": {0.05, 0.03}},
	)
	require.NoError(t, err)

	excess, err := panel.Excess([]float64{0.01, 0.01})
	require.NoError(t, err)
	assert.InDelta(t, 0.04, excess.Data["AAA"][0], 1e-12)
	assert.InDelta(t, 0.02, excess.Data["AAA"][1], 1e-12)

	_, err = panel.Excess([]float64{0.01})
	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
}
