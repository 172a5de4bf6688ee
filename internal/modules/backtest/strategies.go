package backtest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anjeshnu/quantfolio/internal/modules/risk"
)

// CovarianceSpec is the serializable covariance configuration inside a
// strategy file.
type CovarianceSpec struct {
	Method    string   `json:"method" yaml:"method"`
	Halflife  int      `json:"halflife,omitempty" yaml:"halflife,omitempty"`
	Shrinkage *float64 `json:"shrinkage,omitempty" yaml:"shrinkage,omitempty"`
}

func (s CovarianceSpec) config() risk.Config {
	return risk.Config{
		Method:            risk.Method(s.Method),
		Halflife:          s.Halflife,
		ShrinkageOverride: s.Shrinkage,
	}
}

// StrategySpec is one entry of a strategies file: a backtest Config plus
// its covariance spec.
type StrategySpec struct {
	Config  `yaml:",inline"`
	CovSpec CovarianceSpec `yaml:"covariance"`
}

// strategiesFile is the top-level document.
type strategiesFile struct {
	Strategies []StrategySpec `yaml:"strategies"`
}

// LoadStrategies reads a YAML strategies file and resolves each entry to
// a runnable Config. Strategy names must be unique and non-empty.
func LoadStrategies(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file: %w", err)
	}

	var file strategiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategies file: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategies file %s defines no strategies", path)
	}

	seen := make(map[string]bool, len(file.Strategies))
	out := make([]Config, 0, len(file.Strategies))
	for i, spec := range file.Strategies {
		if spec.Strategy == "" {
			return nil, fmt.Errorf("strategy %d has no name", i)
		}
		if seen[spec.Strategy] {
			return nil, fmt.Errorf("duplicate strategy name %q", spec.Strategy)
		}
		seen[spec.Strategy] = true

		cfg := spec.Config
		cfg.Covariance = spec.CovSpec.config()
		if err := cfg.Objective.Validate(); err != nil {
			return nil, fmt.Errorf("strategy %q: %w", spec.Strategy, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}
