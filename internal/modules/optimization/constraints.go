package optimization

import (
	"fmt"
	"math"

	"github.com/anjeshnu/quantfolio/internal/domain"
)

// boundsTolerance is the slack allowed when verifying a solved portfolio
// against its constraints.
const boundsTolerance = 1e-6

// effectiveBounds resolves the per-asset intervals in symbol order,
// applying the long-only floor and the [0, 1] / [-1, 1] defaults.
func effectiveBounds(symbols []string, c Constraints) ([]float64, []float64) {
	lower := make([]float64, len(symbols))
	upper := make([]float64, len(symbols))
	for i, symbol := range symbols {
		lo, hi := 0.0, 1.0
		if c.AllowShort {
			lo = -1.0
		}
		if b, ok := c.AssetBounds[symbol]; ok {
			lo, hi = b.Lower, b.Upper
			if !c.AllowShort && lo < 0 {
				lo = 0
			}
		}
		lower[i] = lo
		upper[i] = hi
	}
	return lower, upper
}

// validateConstraints rejects constraint sets with an empty feasible
// region before any solving happens.
func validateConstraints(symbols []string, c Constraints) error {
	lower, upper := effectiveBounds(symbols, c)

	sumLower, sumUpper := 0.0, 0.0
	for i := range symbols {
		if lower[i] > upper[i] {
			return &domain.InfeasibleConstraintsError{
				Reason: fmt.Sprintf("asset %s: lower bound %v exceeds upper bound %v",
					symbols[i], lower[i], upper[i]),
			}
		}
		sumLower += lower[i]
		sumUpper += upper[i]
	}
	if sumLower > 1+boundsTolerance {
		return &domain.InfeasibleConstraintsError{
			Reason: fmt.Sprintf("lower bounds sum to %v, budget of 1 cannot be met", sumLower),
		}
	}
	if sumUpper < 1-boundsTolerance {
		return &domain.InfeasibleConstraintsError{
			Reason: fmt.Sprintf("upper bounds sum to %v, budget of 1 cannot be met", sumUpper),
		}
	}

	if c.MaxLeverage != 0 && c.MaxLeverage < 1-boundsTolerance {
		return &domain.InfeasibleConstraintsError{
			Reason: fmt.Sprintf("leverage bound %v below the fully invested budget of 1", c.MaxLeverage),
		}
	}

	index := make(map[string]int, len(symbols))
	for i, symbol := range symbols {
		index[symbol] = i
	}

	for _, g := range c.Groups {
		if g.Lower > g.Upper {
			return &domain.InfeasibleConstraintsError{
				Reason: fmt.Sprintf("group %s: lower bound %v exceeds upper bound %v",
					g.Name, g.Lower, g.Upper),
			}
		}

		// The group's reachable weight range under the asset bounds.
		groupMin, groupMax := 0.0, 0.0
		for _, symbol := range g.Symbols {
			i, ok := index[symbol]
			if !ok {
				return &domain.InfeasibleConstraintsError{
					Reason: fmt.Sprintf("group %s references unknown asset %s", g.Name, symbol),
				}
			}
			groupMin += lower[i]
			groupMax += upper[i]
		}
		if groupMax < g.Lower-boundsTolerance {
			return &domain.InfeasibleConstraintsError{
				Reason: fmt.Sprintf("group %s: maximum reachable weight %v below group lower bound %v",
					g.Name, groupMax, g.Lower),
			}
		}
		if groupMin > g.Upper+boundsTolerance {
			return &domain.InfeasibleConstraintsError{
				Reason: fmt.Sprintf("group %s: minimum reachable weight %v above group upper bound %v",
					g.Name, groupMin, g.Upper),
			}
		}
	}
	return nil
}

// satisfiesConstraints reports whether weights sit inside the feasible
// region up to boundsTolerance.
func satisfiesConstraints(symbols []string, weights []float64, c Constraints) bool {
	return constraintViolation(symbols, weights, c) == ""
}

// constraintViolation describes the first violated constraint, empty when
// the weights are feasible.
func constraintViolation(symbols []string, weights []float64, c Constraints) string {
	lower, upper := effectiveBounds(symbols, c)

	sum, gross := 0.0, 0.0
	for i, w := range weights {
		if w < lower[i]-boundsTolerance {
			return fmt.Sprintf("asset %s weight %v below lower bound %v", symbols[i], w, lower[i])
		}
		if w > upper[i]+boundsTolerance {
			return fmt.Sprintf("asset %s weight %v above upper bound %v", symbols[i], w, upper[i])
		}
		sum += w
		gross += math.Abs(w)
	}
	if math.Abs(sum-1) > boundsTolerance {
		return fmt.Sprintf("weights sum to %v", sum)
	}
	if c.MaxLeverage > 0 && gross > c.MaxLeverage+boundsTolerance {
		return fmt.Sprintf("gross exposure %v exceeds leverage bound %v", gross, c.MaxLeverage)
	}

	index := make(map[string]int, len(symbols))
	for i, symbol := range symbols {
		index[symbol] = i
	}
	for _, g := range c.Groups {
		total := 0.0
		for _, symbol := range g.Symbols {
			if i, ok := index[symbol]; ok {
				total += weights[i]
			}
		}
		if total < g.Lower-boundsTolerance || total > g.Upper+boundsTolerance {
			return fmt.Sprintf("group %s weight %v outside [%v, %v]", g.Name, total, g.Lower, g.Upper)
		}
	}
	return ""
}
