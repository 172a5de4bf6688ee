package backtest

import (
	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
	"github.com/anjeshnu/quantfolio/pkg/formulas"
)

// summarize aggregates the per-period records into run statistics.
func summarize(records []Record, rebalances, skipped int, cfg Config) Summary {
	returns := make([]float64, len(records))
	totalCost, totalTurnover := 0.0, 0.0
	for i, rec := range records {
		returns[i] = rec.NetReturn
		totalCost += rec.Cost
		if rec.Rebalanced {
			totalTurnover += rec.Turnover
		}
	}

	equity := formulas.EquityCurve(returns)
	totalReturn := 0.0
	if len(equity) > 0 {
		totalReturn = equity[len(equity)-1] - 1
	}

	avgTurnover := 0.0
	if rebalances > 0 {
		avgTurnover = totalTurnover / float64(rebalances)
	}

	annualized := formulas.AnnualizedReturn(returns, cfg.PeriodsPerYear)
	maxDrawdown := formulas.MaxDrawdown(equity)

	return Summary{
		Periods:            len(records),
		Rebalances:         rebalances,
		SkippedWindows:     skipped,
		TotalReturn:        totalReturn,
		AnnualizedReturn:   annualized,
		Volatility:         formulas.AnnualizedVolatility(returns, cfg.PeriodsPerYear),
		DownsideVolatility: formulas.DownsideVolatility(returns, cfg.PeriodsPerYear),
		SharpeRatio:        formulas.SharpeRatio(returns, cfg.RiskFreeRate, cfg.PeriodsPerYear),
		SortinoRatio:       formulas.SortinoRatio(returns, cfg.RiskFreeRate, 0, cfg.PeriodsPerYear),
		CalmarRatio:        formulas.CalmarRatio(annualized, maxDrawdown),
		MaxDrawdown:        maxDrawdown,
		WinRate:            formulas.WinRate(returns),
		TotalCost:          totalCost,
		AvgTurnover:        avgTurnover,
	}
}

// EquitySeries returns the cumulative growth of one unit of capital at
// each record date.
func (r *RunResult) EquitySeries() []float64 {
	return formulas.EquityCurve(r.NetReturns())
}

// DrawdownSeries returns the drawdown from the running equity peak at
// each record date. Values are zero or negative.
func (r *RunResult) DrawdownSeries() []float64 {
	return formulas.DrawdownSeries(r.EquitySeries())
}

// Attribution is the cumulative gross return contributed by one asset.
type Attribution struct {
	Symbol       string  `json:"symbol"`
	Contribution float64 `json:"contribution"`
	AvgWeight    float64 `json:"avg_weight"`
}

// Attributions decomposes the gross performance by asset, matching each
// record to the panel row with the same date. The records cover only the
// out-of-sample tail of the panel, so positional indexing would pair
// weights with the wrong returns. Contributions sum to the total gross
// return over the run (arithmetically, before compounding and costs).
func (r *RunResult) Attributions(panel timeseries.Panel) ([]Attribution, error) {
	rowIndex := make(map[string]int, panel.Len())
	for t, date := range panel.Dates {
		rowIndex[date] = t
	}

	contributions := make([]float64, len(r.Symbols))
	weightSums := make([]float64, len(r.Symbols))
	for _, rec := range r.Records {
		t, ok := rowIndex[rec.Date]
		if !ok {
			return nil, &domain.DataAlignmentError{
				Context: "attribution: record date " + rec.Date + " missing from panel",
				Want:    len(r.Records),
				Got:     0,
			}
		}
		for j, symbol := range r.Symbols {
			series, ok := panel.Data[symbol]
			if !ok {
				return nil, &domain.DataAlignmentError{
					Context: "attribution: missing series " + symbol,
					Want:    len(r.Symbols),
					Got:     0,
				}
			}
			if j < len(rec.Weights) {
				contributions[j] += rec.Weights[j] * series[t]
				weightSums[j] += rec.Weights[j]
			}
		}
	}

	out := make([]Attribution, len(r.Symbols))
	for j, symbol := range r.Symbols {
		avg := 0.0
		if len(r.Records) > 0 {
			avg = weightSums[j] / float64(len(r.Records))
		}
		out[j] = Attribution{Symbol: symbol, Contribution: contributions[j], AvgWeight: avg}
	}
	return out, nil
}

// RollingSharpe computes the Sharpe ratio over a trailing window at each
// record date. Entries before the window fills are nil.
func (r *RunResult) RollingSharpe(window, periodsPerYear int, riskFreeRate float64) []*float64 {
	returns := r.NetReturns()
	out := make([]*float64, len(returns))
	for i := window; i <= len(returns); i++ {
		out[i-1] = formulas.SharpeRatio(returns[i-window:i], riskFreeRate, periodsPerYear)
	}
	return out
}

// Comparison is one strategy's row in a side-by-side report.
type Comparison struct {
	Strategy         string   `json:"strategy"`
	RunID            string   `json:"run_id"`
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Volatility       float64  `json:"volatility"`
	SharpeRatio      *float64 `json:"sharpe_ratio,omitempty"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	SkippedWindows   int      `json:"skipped_windows"`
}

// CompareStrategies builds a side-by-side summary across runs, in input
// order.
func CompareStrategies(results []*RunResult) []Comparison {
	out := make([]Comparison, len(results))
	for i, r := range results {
		out[i] = Comparison{
			Strategy:         r.Strategy,
			RunID:            r.RunID,
			TotalReturn:      r.Summary.TotalReturn,
			AnnualizedReturn: r.Summary.AnnualizedReturn,
			Volatility:       r.Summary.Volatility,
			SharpeRatio:      r.Summary.SharpeRatio,
			MaxDrawdown:      r.Summary.MaxDrawdown,
			SkippedWindows:   r.Summary.SkippedWindows,
		}
	}
	return out
}
