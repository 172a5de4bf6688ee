// Package optimization solves constrained portfolio weight problems over a
// return estimate and a covariance matrix.
package optimization

import (
	"encoding/json"
	"fmt"
)

// ObjectiveKind selects the optimization objective.
type ObjectiveKind string

const (
	ObjectiveMeanVariance ObjectiveKind = "mean_variance"
	ObjectiveMaxSharpe    ObjectiveKind = "max_sharpe"
	ObjectiveMinVariance  ObjectiveKind = "min_variance"
	ObjectiveRiskParity   ObjectiveKind = "risk_parity"
)

// DefaultRiskAversion is the mean-variance risk aversion used when the
// objective does not specify one.
const DefaultRiskAversion = 2.5

// Objective is the tagged objective configuration. Kind decides which of
// the parameter fields apply.
type Objective struct {
	Kind ObjectiveKind `json:"kind" yaml:"kind"`
	// RiskAversion applies to mean_variance. Zero means DefaultRiskAversion.
	RiskAversion float64 `json:"risk_aversion,omitempty" yaml:"risk_aversion,omitempty"`
	// RiskFreeRate applies to max_sharpe, per period.
	RiskFreeRate float64 `json:"risk_free_rate,omitempty" yaml:"risk_free_rate,omitempty"`
	// RiskBudgets applies to risk_parity: target risk contribution shares
	// per symbol. Empty means equal contributions.
	RiskBudgets map[string]float64 `json:"risk_budgets,omitempty" yaml:"risk_budgets,omitempty"`
	// MaxIterations caps the numerical solver's iterations. Zero selects
	// the per-solver default.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// Validate rejects unknown kinds and out-of-range parameters.
func (o Objective) Validate() error {
	if o.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be non-negative, got %d", o.MaxIterations)
	}
	switch o.Kind {
	case ObjectiveMeanVariance:
		if o.RiskAversion < 0 {
			return fmt.Errorf("risk aversion must be non-negative, got %v", o.RiskAversion)
		}
	case ObjectiveMaxSharpe, ObjectiveMinVariance:
	case ObjectiveRiskParity:
		for symbol, budget := range o.RiskBudgets {
			if budget <= 0 {
				return fmt.Errorf("risk budget for %s must be positive, got %v", symbol, budget)
			}
		}
	default:
		return fmt.Errorf("unknown objective kind %q", o.Kind)
	}
	return nil
}

// Bounds is a per-asset weight interval.
type Bounds struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// GroupConstraint bounds the total weight of a group of assets, e.g. a
// sector or an asset class.
type GroupConstraint struct {
	Name string `json:"name" yaml:"name"`
	// Mapper assigns each symbol to this group when true.
	Symbols []string `json:"symbols" yaml:"symbols"`
	Lower   float64  `json:"lower" yaml:"lower"`
	Upper   float64  `json:"upper" yaml:"upper"`
}

// Constraints describes the feasible region. The budget constraint
// Σw = 1 always applies. The zero value is a fully invested long-only
// portfolio.
type Constraints struct {
	// AllowShort permits negative weights. When false, every weight is
	// floored at zero and negative lower bounds are ignored.
	AllowShort bool `json:"allow_short" yaml:"allow_short"`
	// AssetBounds are per-symbol weight intervals. Symbols without an entry
	// are bounded by [-1, 1] when AllowShort, [0, 1] otherwise.
	AssetBounds map[string]Bounds `json:"asset_bounds,omitempty" yaml:"asset_bounds,omitempty"`
	// Groups are group total-weight bounds.
	Groups []GroupConstraint `json:"groups,omitempty" yaml:"groups,omitempty"`
	// MaxLeverage bounds the gross exposure Σ|w|. Zero means unbounded.
	// Must be at least 1, since the budget forces Σw = 1. Only binds when
	// AllowShort, since long-only gross exposure equals the budget.
	MaxLeverage float64 `json:"max_leverage,omitempty" yaml:"max_leverage,omitempty"`
}

// Result is a solved portfolio.
type Result struct {
	Symbols        []string  `json:"symbols"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	// SharpeRatio is nil when volatility is zero.
	SharpeRatio *float64 `json:"sharpe_ratio,omitempty"`
	// Objective records which objective produced the weights.
	Objective ObjectiveKind `json:"objective"`
	// Solver is "closed_form", "penalty", or "risk_parity_iteration".
	Solver string `json:"solver"`
}

// WeightMap returns the weights keyed by symbol.
func (r Result) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(r.Symbols))
	for i, symbol := range r.Symbols {
		m[symbol] = r.Weights[i]
	}
	return m
}

// UnmarshalJSON validates the objective kind on decode so malformed API
// payloads fail early.
func (o *Objective) UnmarshalJSON(data []byte) error {
	type plain Objective
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Objective(p)
	return o.Validate()
}
