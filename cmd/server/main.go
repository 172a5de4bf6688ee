// Package main is the entry point for the quantfolio analytical service.
// It exposes the estimation, optimization, and backtesting pipeline over
// HTTP and keeps stored backtest runs fresh on a cron schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjeshnu/quantfolio/internal/config"
	"github.com/anjeshnu/quantfolio/internal/database"
	"github.com/anjeshnu/quantfolio/internal/modules/backtest"
	"github.com/anjeshnu/quantfolio/internal/scheduler"
	"github.com/anjeshnu/quantfolio/internal/server"
	"github.com/anjeshnu/quantfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet, write directly.
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting quantfolio")

	db, err := database.New(database.Config{Path: cfg.DatabasePath()})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	sched := scheduler.New(log)
	if cfg.StrategiesPath != "" {
		job := scheduler.NewBacktestRefreshJob(
			cfg.StrategiesPath,
			cfg.ReturnsPath,
			cfg.FactorsPath,
			backtest.NewEngine(log),
			backtest.NewStore(db, log),
			log,
		)
		if err := sched.AddJob(cfg.RefreshSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backtest refresh job")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Log:  log,
		DB:   db,
		Port: cfg.Port,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
