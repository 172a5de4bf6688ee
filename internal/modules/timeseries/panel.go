// Package timeseries provides the time-indexed return panels consumed by the
// estimation pipeline. A panel keeps a stable symbol order and an explicit
// date index; missing observations are NaN and are never silently
// zero-filled.
package timeseries

import (
	"math"
	"sort"

	"github.com/anjeshnu/quantfolio/internal/domain"
)

// Panel is an ordered sequence of per-period returns per symbol.
type Panel struct {
	Dates   []string             `json:"dates"`
	Symbols []string             `json:"symbols"`
	Data    map[string][]float64 `json:"data"`
}

// New builds a panel and validates that every series has one observation per
// date.
func New(dates []string, symbols []string, data map[string][]float64) (Panel, error) {
	for _, symbol := range symbols {
		series, ok := data[symbol]
		if !ok {
			return Panel{}, &domain.DataAlignmentError{
				Context: "missing series for symbol " + symbol,
				Want:    len(dates),
				Got:     0,
			}
		}
		if len(series) != len(dates) {
			return Panel{}, &domain.DataAlignmentError{
				Context: "series length for symbol " + symbol,
				Want:    len(dates),
				Got:     len(series),
			}
		}
	}

	return Panel{Dates: dates, Symbols: symbols, Data: data}, nil
}

// Len returns the number of periods in the panel.
func (p Panel) Len() int { return len(p.Dates) }

// Series returns the return series for one symbol.
func (p Panel) Series(symbol string) []float64 { return p.Data[symbol] }

// Window returns a copy of the panel restricted to [start, end).
func (p Panel) Window(start, end int) Panel {
	if start < 0 {
		start = 0
	}
	if end > len(p.Dates) {
		end = len(p.Dates)
	}

	out := Panel{
		Dates:   append([]string(nil), p.Dates[start:end]...),
		Symbols: append([]string(nil), p.Symbols...),
		Data:    make(map[string][]float64, len(p.Symbols)),
	}
	for _, symbol := range p.Symbols {
		out.Data[symbol] = append([]float64(nil), p.Data[symbol][start:end]...)
	}
	return out
}

// Row returns the cross-section of returns at period index i, in symbol
// order.
func (p Panel) Row(i int) []float64 {
	row := make([]float64, len(p.Symbols))
	for j, symbol := range p.Symbols {
		row[j] = p.Data[symbol][i]
	}
	return row
}

// MissingCount counts NaN observations across all series.
func (p Panel) MissingCount() int {
	count := 0
	for _, symbol := range p.Symbols {
		for _, v := range p.Data[symbol] {
			if math.IsNaN(v) {
				count++
			}
		}
	}
	return count
}

// Align restricts both panels to their common dates, preserving order.
// Fails when no dates overlap.
func Align(a, b Panel) (Panel, Panel, error) {
	inB := make(map[string]int, len(b.Dates))
	for i, d := range b.Dates {
		inB[d] = i
	}

	var common []string
	var idxA, idxB []int
	for i, d := range a.Dates {
		if j, ok := inB[d]; ok {
			common = append(common, d)
			idxA = append(idxA, i)
			idxB = append(idxB, j)
		}
	}

	if len(common) == 0 {
		return Panel{}, Panel{}, &domain.DataAlignmentError{
			Context: "no overlapping dates between panels",
			Want:    len(a.Dates),
			Got:     0,
		}
	}

	return a.take(common, idxA), b.take(common, idxB), nil
}

func (p Panel) take(dates []string, idx []int) Panel {
	out := Panel{
		Dates:   dates,
		Symbols: append([]string(nil), p.Symbols...),
		Data:    make(map[string][]float64, len(p.Symbols)),
	}
	for _, symbol := range p.Symbols {
		src := p.Data[symbol]
		series := make([]float64, len(idx))
		for i, j := range idx {
			series[i] = src[j]
		}
		out.Data[symbol] = series
	}
	return out
}

// Excess subtracts the per-period risk-free rate from every series,
// producing an excess-return panel. The rate series must match the panel's
// date index length.
func (p Panel) Excess(riskFree []float64) (Panel, error) {
	if len(riskFree) != len(p.Dates) {
		return Panel{}, &domain.DataAlignmentError{
			Context: "risk-free rate series",
			Want:    len(p.Dates),
			Got:     len(riskFree),
		}
	}

	out := Panel{
		Dates:   append([]string(nil), p.Dates...),
		Symbols: append([]string(nil), p.Symbols...),
		Data:    make(map[string][]float64, len(p.Symbols)),
	}
	for _, symbol := range p.Symbols {
		src := p.Data[symbol]
		series := make([]float64, len(src))
		for i, v := range src {
			series[i] = v - riskFree[i]
		}
		out.Data[symbol] = series
	}
	return out, nil
}

// SortedSymbols returns the panel's symbols in lexical order without
// modifying the panel.
func (p Panel) SortedSymbols() []string {
	out := append([]string(nil), p.Symbols...)
	sort.Strings(out)
	return out
}
