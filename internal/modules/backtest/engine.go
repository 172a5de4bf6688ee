package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/blacklitterman"
	"github.com/anjeshnu/quantfolio/internal/modules/factors"
	"github.com/anjeshnu/quantfolio/internal/modules/optimization"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults for the rolling backtest loop.
const (
	DefaultLookback       = 60
	DefaultRebalanceEvery = 21
	DefaultPeriodsPerYear = 252
)

// Config describes one backtest strategy.
type Config struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	// Lookback is the estimation window length in periods.
	Lookback int `json:"lookback" yaml:"lookback"`
	// RebalanceEvery is the number of periods between rebalances.
	RebalanceEvery int `json:"rebalance_every" yaml:"rebalance_every"`
	// CostRate is the proportional transaction cost per unit of L1
	// turnover. The first rebalance out of cash is free.
	CostRate       float64 `json:"cost_rate" yaml:"cost_rate"`
	PeriodsPerYear int     `json:"periods_per_year" yaml:"periods_per_year"`
	// RiskFreeRate is per period.
	RiskFreeRate float64 `json:"risk_free_rate" yaml:"risk_free_rate"`

	Covariance  risk.Config              `json:"-" yaml:"-"`
	Objective   optimization.Objective   `json:"objective" yaml:"objective"`
	Constraints optimization.Constraints `json:"constraints" yaml:"constraints"`

	// Views are static view specs applied at every rebalance.
	Views []blacklitterman.Spec `json:"views,omitempty" yaml:"views,omitempty"`
	// MomentumViews enables RSI-derived views on each window.
	MomentumViews bool `json:"momentum_views" yaml:"momentum_views"`
	RSILength     int  `json:"rsi_length,omitempty" yaml:"rsi_length,omitempty"`

	// Tau is the Black-Litterman prior-uncertainty scalar.
	Tau float64 `json:"tau,omitempty" yaml:"tau,omitempty"`
	// MarketWeights switches the prior from window means to equilibrium
	// implied returns when set.
	MarketWeights map[string]float64 `json:"market_weights,omitempty" yaml:"market_weights,omitempty"`
	// RiskAversion scales the implied-return prior.
	RiskAversion float64 `json:"risk_aversion,omitempty" yaml:"risk_aversion,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.RebalanceEvery <= 0 {
		c.RebalanceEvery = DefaultRebalanceEvery
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if c.RiskAversion <= 0 {
		c.RiskAversion = optimization.DefaultRiskAversion
	}
}

// Engine runs rolling-window backtests.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the strategy over the panel. Each scheduled rebalance
// estimates over the trailing lookback window and re-optimizes; the
// resulting weights are held until the next rebalance. Optimizer failures
// skip the window and carry the previous weights forward; estimation
// failures abort the run.
func (e *Engine) Run(ctx context.Context, panel timeseries.Panel, cfg Config) (*RunResult, error) {
	return e.run(ctx, panel, nil, cfg)
}

// RunWithFactors replays the strategy with a factor return panel sliced
// alongside the asset panel, enabling the factor-structured covariance
// mode. The factor panel must share the asset panel's date index.
func (e *Engine) RunWithFactors(ctx context.Context, panel, factorPanel timeseries.Panel, cfg Config) (*RunResult, error) {
	if factorPanel.Len() != panel.Len() {
		return nil, &domain.DataAlignmentError{
			Context: "backtest factor panel",
			Want:    panel.Len(),
			Got:     factorPanel.Len(),
		}
	}
	for i, date := range panel.Dates {
		if factorPanel.Dates[i] != date {
			return nil, &domain.DataAlignmentError{
				Context: "backtest factor panel dates",
				Want:    panel.Len(),
				Got:     i,
			}
		}
	}
	return e.run(ctx, panel, &factorPanel, cfg)
}

func (e *Engine) run(ctx context.Context, panel timeseries.Panel, factorPanel *timeseries.Panel, cfg Config) (*RunResult, error) {
	cfg.applyDefaults()

	if panel.Len() <= cfg.Lookback {
		return nil, &domain.InsufficientDataError{
			Context: "backtest",
			Need:    cfg.Lookback + 1,
			Got:     panel.Len(),
		}
	}
	if cfg.Covariance.Method == risk.MethodFactor && factorPanel == nil {
		return nil, &domain.SingularInputError{
			Matrix: "covariance",
			Reason: "factor covariance method requires a factor panel",
		}
	}

	estimator := risk.NewEstimator(cfg.Covariance, e.log)
	blEngine := blacklitterman.NewEngine(cfg.Tau, e.log)
	optimizer := optimization.NewOptimizer(e.log)
	var viewGen *blacklitterman.MomentumViewGenerator
	if cfg.MomentumViews {
		viewGen = blacklitterman.NewMomentumViewGenerator(cfg.RSILength, e.log)
	}

	staticViews, err := blacklitterman.ParseSpecs(cfg.Views)
	if err != nil {
		return nil, err
	}

	n := len(panel.Symbols)
	weights := make([]float64, n) // all cash until the first rebalance
	invested := false

	records := make([]Record, 0, panel.Len()-cfg.Lookback)
	rebalances, skipped := 0, 0

	for t := cfg.Lookback; t < panel.Len(); t++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec := Record{Date: panel.Dates[t]}

		if (t-cfg.Lookback)%cfg.RebalanceEvery == 0 {
			window := panel.Window(t-cfg.Lookback, t)
			var factorWindow *timeseries.Panel
			if factorPanel != nil {
				fw := factorPanel.Window(t-cfg.Lookback, t)
				factorWindow = &fw
			}

			newWeights, err := e.rebalance(window, factorWindow, cfg, estimator, blEngine, optimizer, viewGen, staticViews)
			if err != nil {
				if isRecoverable(err) {
					rec.Skipped = true
					rec.SkipReason = err.Error()
					skipped++
					e.log.Warn().
						Str("date", rec.Date).
						Err(err).
						Msg("Rebalance skipped, carrying previous weights forward")
				} else {
					return nil, err
				}
			} else {
				rec.Turnover = floats.Distance(newWeights, weights, 1)
				if invested {
					rec.Cost = cfg.CostRate * rec.Turnover
				}
				rec.Rebalanced = true
				weights = newWeights
				invested = true
				rebalances++
			}
		}

		row := panel.Row(t)
		gross := floats.Dot(weights, row)
		rec.GrossReturn = gross
		rec.NetReturn = gross - rec.Cost
		rec.Weights = append([]float64(nil), weights...)
		records = append(records, rec)
	}

	result := &RunResult{
		RunID:     uuid.NewString(),
		Strategy:  cfg.Strategy,
		Symbols:   append([]string(nil), panel.Symbols...),
		StartedAt: time.Now().UTC(),
		Records:   records,
	}
	result.Summary = summarize(records, rebalances, skipped, cfg)

	e.log.Info().
		Str("run_id", result.RunID).
		Str("strategy", cfg.Strategy).
		Int("periods", len(records)).
		Int("rebalances", rebalances).
		Int("skipped", skipped).
		Float64("total_return", result.Summary.TotalReturn).
		Msg("Backtest complete")
	return result, nil
}

// RunAll replays every config against the panel, one goroutine per
// strategy. A non-nil factorPanel enables the factor covariance mode.
// Result i corresponds to cfgs[i] and is nil when that strategy failed;
// the returned error joins the per-strategy failures. Windows inside each
// strategy stay strictly sequential.
func (e *Engine) RunAll(ctx context.Context, panel timeseries.Panel, factorPanel *timeseries.Panel, cfgs []Config) ([]*RunResult, error) {
	results := make([]*RunResult, len(cfgs))
	errs := make([]error, len(cfgs))

	var wg sync.WaitGroup
	for i := range cfgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if factorPanel != nil {
				results[i], errs[i] = e.RunWithFactors(ctx, panel, *factorPanel, cfgs[i])
			} else {
				results[i], errs[i] = e.Run(ctx, panel, cfgs[i])
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			errs[i] = fmt.Errorf("strategy %s: %w", cfgs[i].Strategy, err)
		}
	}
	return results, errors.Join(errs...)
}

// rebalance estimates over one window and solves for new weights.
func (e *Engine) rebalance(
	window timeseries.Panel,
	factorWindow *timeseries.Panel,
	cfg Config,
	estimator *risk.Estimator,
	blEngine *blacklitterman.Engine,
	optimizer *optimization.Optimizer,
	viewGen *blacklitterman.MomentumViewGenerator,
	staticViews []blacklitterman.View,
) ([]float64, error) {
	var (
		cov risk.Matrix
		err error
	)
	if cfg.Covariance.Method == risk.MethodFactor {
		set, ferr := factors.NewModel(e.log).EstimateExposures(window, *factorWindow)
		if ferr != nil {
			return nil, ferr
		}
		cov, err = estimator.EstimateFromFactors(set, *factorWindow)
	} else {
		cov, err = estimator.Estimate(window)
	}
	if err != nil {
		return nil, err
	}

	prior, err := e.prior(window, cov, cfg, blEngine)
	if err != nil {
		return nil, err
	}

	views := append([]blacklitterman.View(nil), staticViews...)
	if viewGen != nil {
		views = append(views, viewGen.GenerateViews(window, prior)...)
	}

	mu := prior
	if len(views) > 0 {
		posterior, err := blEngine.ComputePosterior(prior, cov, views)
		if err != nil {
			return nil, err
		}
		mu = posterior.Returns
		cov = posterior.Covariance
	}

	result, err := optimizer.Solve(mu, cov, cfg.Objective, cfg.Constraints)
	if err != nil {
		return nil, err
	}
	return result.Weights, nil
}

// prior computes the return prior: equilibrium implied returns when market
// weights are configured, trailing window means otherwise.
func (e *Engine) prior(window timeseries.Panel, cov risk.Matrix, cfg Config, blEngine *blacklitterman.Engine) ([]float64, error) {
	if len(cfg.MarketWeights) > 0 {
		mw := make([]float64, len(window.Symbols))
		for i, symbol := range window.Symbols {
			mw[i] = cfg.MarketWeights[symbol]
		}
		return blEngine.ImpliedReturns(mw, cov, cfg.RiskAversion)
	}

	mu := make([]float64, len(window.Symbols))
	for i, symbol := range window.Symbols {
		mu[i] = stat.Mean(window.Data[symbol], nil)
	}
	return mu, nil
}

// isRecoverable reports whether a rebalance failure should skip the window
// rather than abort the run. Solver failures and infeasible constraint
// sets are recoverable; estimation failures are not.
func isRecoverable(err error) bool {
	var optErr *domain.OptimizationError
	var infErr *domain.InfeasibleConstraintsError
	return errors.As(err, &optErr) || errors.As(err, &infErr)
}
