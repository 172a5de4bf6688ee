package factors

import (
	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// Spread names a return-differential factor built from two traded series,
// e.g. Term = long-duration minus short-duration treasuries, or
// Credit = high-yield minus investment-grade.
type Spread struct {
	Name  string
	Long  string
	Short string
}

// BuildSpreadFactor computes Long − Short per period from a return panel.
func BuildSpreadFactor(panel timeseries.Panel, spread Spread) ([]float64, error) {
	long, okLong := panel.Data[spread.Long]
	short, okShort := panel.Data[spread.Short]
	if !okLong || !okShort {
		missing := spread.Long
		if okLong {
			missing = spread.Short
		}
		return nil, &domain.DataAlignmentError{
			Context: "spread factor " + spread.Name + ": missing series " + missing,
			Want:    panel.Len(),
			Got:     0,
		}
	}

	out := make([]float64, panel.Len())
	for t := range out {
		out[t] = long[t] - short[t]
	}
	return out, nil
}

// BuildCustomFactors appends the configured spread factors and any level
// factors (series used directly, e.g. a commodity index) to a factor panel.
func BuildCustomFactors(source timeseries.Panel, spreads []Spread, levels []string) (timeseries.Panel, error) {
	dates := append([]string(nil), source.Dates...)
	symbols := make([]string, 0, len(spreads)+len(levels))
	data := make(map[string][]float64, len(spreads)+len(levels))

	for _, spread := range spreads {
		series, err := BuildSpreadFactor(source, spread)
		if err != nil {
			return timeseries.Panel{}, err
		}
		symbols = append(symbols, spread.Name)
		data[spread.Name] = series
	}

	for _, name := range levels {
		series, ok := source.Data[name]
		if !ok {
			return timeseries.Panel{}, &domain.DataAlignmentError{
				Context: "level factor: missing series " + name,
				Want:    source.Len(),
				Got:     0,
			}
		}
		symbols = append(symbols, name)
		data[name] = append([]float64(nil), series...)
	}

	return timeseries.New(dates, symbols, data)
}

// Combine merges two factor panels on their common dates.
func Combine(a, b timeseries.Panel) (timeseries.Panel, error) {
	alignedA, alignedB, err := timeseries.Align(a, b)
	if err != nil {
		return timeseries.Panel{}, err
	}

	symbols := append(append([]string(nil), alignedA.Symbols...), alignedB.Symbols...)
	data := make(map[string][]float64, len(symbols))
	for _, s := range alignedA.Symbols {
		data[s] = alignedA.Data[s]
	}
	for _, s := range alignedB.Symbols {
		data[s] = alignedB.Data[s]
	}

	return timeseries.New(alignedA.Dates, symbols, data)
}
