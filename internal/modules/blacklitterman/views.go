// Package blacklitterman combines prior return estimates with investor
// views to produce posterior return and covariance estimates.
package blacklitterman

import (
	"fmt"
)

// View is an investor opinion that knows how to express itself as one row
// of the view-mapping matrix P and one entry of the view-return vector q.
type View interface {
	// Row returns the P-matrix row for this view over the given symbol
	// order.
	Row(symbols []string) ([]float64, error)
	// Target returns the q-vector entry: the expected return (absolute) or
	// return differential (relative).
	Target() float64
	// Confidence is the view confidence in (0, 1].
	Confidence() float64
}

// AbsoluteView states that one asset will return Return.
type AbsoluteView struct {
	Symbol string
	Return float64
	Conf   float64
}

func (v AbsoluteView) Row(symbols []string) ([]float64, error) {
	row := make([]float64, len(symbols))
	idx := indexOf(symbols, v.Symbol)
	if idx < 0 {
		return nil, fmt.Errorf("view references unknown asset %s", v.Symbol)
	}
	row[idx] = 1.0
	return row, nil
}

func (v AbsoluteView) Target() float64     { return v.Return }
func (v AbsoluteView) Confidence() float64 { return v.Conf }

// RelativeView states that Outperformer will beat Underperformer by
// Differential.
type RelativeView struct {
	Outperformer   string
	Underperformer string
	Differential   float64
	Conf           float64
}

func (v RelativeView) Row(symbols []string) ([]float64, error) {
	row := make([]float64, len(symbols))
	long := indexOf(symbols, v.Outperformer)
	short := indexOf(symbols, v.Underperformer)
	if long < 0 {
		return nil, fmt.Errorf("view references unknown asset %s", v.Outperformer)
	}
	if short < 0 {
		return nil, fmt.Errorf("view references unknown asset %s", v.Underperformer)
	}
	row[long] = 1.0
	row[short] = -1.0
	return row, nil
}

func (v RelativeView) Target() float64     { return v.Differential }
func (v RelativeView) Confidence() float64 { return v.Conf }

// CombinationView states that a weighted combination of assets will return
// Return. Weights may be any signs; a long/short combination expresses a
// multi-asset relative view.
type CombinationView struct {
	Weights map[string]float64
	Return  float64
	Conf    float64
}

func (v CombinationView) Row(symbols []string) ([]float64, error) {
	row := make([]float64, len(symbols))
	for symbol, w := range v.Weights {
		idx := indexOf(symbols, symbol)
		if idx < 0 {
			return nil, fmt.Errorf("view references unknown asset %s", symbol)
		}
		row[idx] = w
	}
	return row, nil
}

func (v CombinationView) Target() float64     { return v.Return }
func (v CombinationView) Confidence() float64 { return v.Conf }

// Spec is the serializable form of a view, used by the HTTP API and the
// strategy configuration file.
type Spec struct {
	Type           string             `json:"type" yaml:"type"` // absolute, relative, combination
	Symbol         string             `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Outperformer   string             `json:"outperformer,omitempty" yaml:"outperformer,omitempty"`
	Underperformer string             `json:"underperformer,omitempty" yaml:"underperformer,omitempty"`
	Weights        map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Return         float64            `json:"return" yaml:"return"`
	Confidence     float64            `json:"confidence" yaml:"confidence"`
}

// View converts the spec to its concrete view.
func (s Spec) View() (View, error) {
	switch s.Type {
	case "absolute":
		return AbsoluteView{Symbol: s.Symbol, Return: s.Return, Conf: s.Confidence}, nil
	case "relative":
		return RelativeView{
			Outperformer:   s.Outperformer,
			Underperformer: s.Underperformer,
			Differential:   s.Return,
			Conf:           s.Confidence,
		}, nil
	case "combination":
		return CombinationView{Weights: s.Weights, Return: s.Return, Conf: s.Confidence}, nil
	default:
		return nil, fmt.Errorf("unknown view type %q", s.Type)
	}
}

// ParseSpecs converts a slice of specs to views.
func ParseSpecs(specs []Spec) ([]View, error) {
	views := make([]View, 0, len(specs))
	for i, s := range specs {
		v, err := s.View()
		if err != nil {
			return nil, fmt.Errorf("view %d: %w", i, err)
		}
		views = append(views, v)
	}
	return views, nil
}

func indexOf(symbols []string, symbol string) int {
	for i, s := range symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}
