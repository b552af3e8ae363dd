// Package config loads the process configuration from YAML with
// defaults and validation applied in separate passes.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ctacore/internal/ledger"
)

// Load reads, defaults and validates the config at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCommissions reads the per-commodity fee table.
func LoadCommissions(path string) (ledger.CommissionTable, error) {
	if path == "" {
		return ledger.CommissionTable{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading commissions file failed: %w", err)
	}
	var file struct {
		Commissions ledger.CommissionTable `yaml:"commissions"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing commissions file failed: %w", err)
	}
	if file.Commissions == nil {
		file.Commissions = ledger.CommissionTable{}
	}
	return file.Commissions, nil
}
