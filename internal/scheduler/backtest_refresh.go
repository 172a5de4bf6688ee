package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/modules/backtest"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// keepRunsPerStrategy bounds the stored history per strategy; older runs
// are pruned after each refresh.
const keepRunsPerStrategy = 20

// BacktestRefreshJob re-runs every configured strategy against the
// current return panel and persists the results.
type BacktestRefreshJob struct {
	strategiesPath string
	returnsPath    string
	factorsPath    string
	engine         *backtest.Engine
	store          *backtest.Store
	timeout        time.Duration
	log            zerolog.Logger
}

// NewBacktestRefreshJob creates the refresh job. factorsPath may be empty
// when no strategy uses the factor covariance method.
func NewBacktestRefreshJob(strategiesPath, returnsPath, factorsPath string, engine *backtest.Engine, store *backtest.Store, log zerolog.Logger) *BacktestRefreshJob {
	return &BacktestRefreshJob{
		strategiesPath: strategiesPath,
		returnsPath:    returnsPath,
		factorsPath:    factorsPath,
		engine:         engine,
		store:          store,
		timeout:        30 * time.Minute,
		log:            log.With().Str("component", "backtest_refresh").Logger(),
	}
}

// Name returns the job name.
func (j *BacktestRefreshJob) Name() string { return "backtest_refresh" }

// Run reloads the strategies and panel from disk and replays every
// strategy concurrently. A single failing strategy does not stop the
// others.
func (j *BacktestRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	configs, err := backtest.LoadStrategies(j.strategiesPath)
	if err != nil {
		return fmt.Errorf("failed to load strategies: %w", err)
	}
	panel, err := timeseries.LoadCSV(j.returnsPath)
	if err != nil {
		return fmt.Errorf("failed to load returns: %w", err)
	}

	var factorPanel *timeseries.Panel
	if j.factorsPath != "" {
		fp, err := timeseries.LoadCSV(j.factorsPath)
		if err != nil {
			return fmt.Errorf("failed to load factors: %w", err)
		}
		factorPanel = &fp
	}

	results, runErr := j.engine.RunAll(ctx, panel, factorPanel, configs)
	if runErr != nil {
		j.log.Error().Err(runErr).Msg("Strategy backtests failed")
	}

	failures := 0
	for i, result := range results {
		if result == nil {
			failures++
			continue
		}
		if err := j.store.Save(ctx, result); err != nil {
			j.log.Error().
				Err(err).
				Str("strategy", configs[i].Strategy).
				Msg("Failed to save backtest run")
			failures++
			continue
		}
		if _, err := j.store.Prune(ctx, configs[i].Strategy, keepRunsPerStrategy); err != nil {
			j.log.Warn().
				Err(err).
				Str("strategy", configs[i].Strategy).
				Msg("Failed to prune old backtest runs")
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d strategies failed", failures, len(configs))
	}
	return nil
}
