// Package backtest replays a strategy over historical return panels with
// rolling estimation windows and periodic rebalancing.
package backtest

import "time"

// Record is one period of backtest output.
type Record struct {
	Date string `json:"date"`
	// Weights held during the period, in run symbol order.
	Weights []float64 `json:"weights"`
	// GrossReturn is the weighted portfolio return before costs.
	GrossReturn float64 `json:"gross_return"`
	// NetReturn subtracts the transaction cost charged this period.
	NetReturn float64 `json:"net_return"`
	// Turnover is the L1 weight change at a rebalance, zero otherwise.
	Turnover float64 `json:"turnover"`
	// Cost is the transaction cost charged this period.
	Cost float64 `json:"cost"`
	// Rebalanced marks periods where the optimizer ran successfully.
	Rebalanced bool `json:"rebalanced"`
	// Skipped marks rebalance periods where the optimizer failed and the
	// previous weights were carried forward.
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// RunResult is a completed backtest run.
type RunResult struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	Symbols   []string  `json:"symbols"`
	StartedAt time.Time `json:"started_at"`
	// Records covers every out-of-sample period, in date order.
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

// Summary aggregates run performance.
type Summary struct {
	Periods          int     `json:"periods"`
	Rebalances       int     `json:"rebalances"`
	SkippedWindows   int     `json:"skipped_windows"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	// DownsideVolatility is the annualized deviation of the negative
	// periods only.
	DownsideVolatility float64  `json:"downside_volatility"`
	SharpeRatio        *float64 `json:"sharpe_ratio,omitempty"`
	SortinoRatio       *float64 `json:"sortino_ratio,omitempty"`
	CalmarRatio        *float64 `json:"calmar_ratio,omitempty"`
	MaxDrawdown        float64  `json:"max_drawdown"`
	WinRate            float64  `json:"win_rate"`
	TotalCost          float64  `json:"total_cost"`
	AvgTurnover        float64  `json:"avg_turnover"`
}

// NetReturns extracts the net return series in date order.
func (r *RunResult) NetReturns() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.NetReturn
	}
	return out
}

// Dates extracts the record dates.
func (r *RunResult) Dates() []string {
	out := make([]string, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Date
	}
	return out
}
