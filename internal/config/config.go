// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// DataDir is the base directory for the results database and strategy
	// files. Always absolute.
	DataDir string
	// StrategiesPath is the YAML strategies file for scheduled backtests.
	// Empty disables the scheduled refresh.
	StrategiesPath string
	// ReturnsPath is the CSV return panel consumed by scheduled backtests.
	ReturnsPath string
	// FactorsPath is the CSV factor return panel, required only by
	// strategies using the factor covariance method.
	FactorsPath string
	// RefreshSchedule is the cron expression for the backtest refresh job.
	RefreshSchedule string
	LogLevel        string
	Pretty          bool
	Port            int
}

// Load reads configuration from the environment, with an optional .env
// file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QUANTFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		StrategiesPath:  getEnv("QUANTFOLIO_STRATEGIES", ""),
		ReturnsPath:     getEnv("QUANTFOLIO_RETURNS", ""),
		FactorsPath:     getEnv("QUANTFOLIO_FACTORS", ""),
		RefreshSchedule: getEnv("QUANTFOLIO_REFRESH_SCHEDULE", "0 2 * * *"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Pretty:          getEnvAsBool("LOG_PRETTY", false),
		Port:            getEnvAsInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.StrategiesPath != "" && c.ReturnsPath == "" {
		return fmt.Errorf("QUANTFOLIO_STRATEGIES is set but QUANTFOLIO_RETURNS is not")
	}
	return nil
}

// DatabasePath returns the results database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "quantfolio.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
