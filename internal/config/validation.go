package config

import (
	"fmt"

	"ctacore/internal/pkg/symbol"
	"ctacore/internal/types"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch c.Store.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("store.driver must be file or sqlite, got %q", c.Store.Driver)
	}

	if c.Paper.Enabled && c.Paper.ContractsFile == "" {
		return fmt.Errorf("paper.contracts_file is required when the paper gateway is enabled")
	}

	seen := make(map[string]bool)
	for _, s := range c.Strategies {
		if err := validateInstance(s.Class, s.Name, []string{s.VtSymbol}, seen); err != nil {
			return fmt.Errorf("strategies.%s: %w", s.Name, err)
		}
	}
	for _, p := range c.Portfolios {
		if err := validateInstance(p.Class, p.Name, p.VtSymbols, seen); err != nil {
			return fmt.Errorf("portfolios.%s: %w", p.Name, err)
		}
	}

	for commodity, vt := range c.Market.HotContracts {
		sym, exch, err := types.ExtractVtSymbol(vt)
		if err != nil {
			return fmt.Errorf("market.hot_contracts.%s: %w", commodity, err)
		}
		if !symbol.Validate(sym, exch) {
			return fmt.Errorf("market.hot_contracts.%s: contract code %q does not match the %s format", commodity, sym, exch)
		}
	}
	return nil
}

func validateInstance(class, name string, vtSymbols []string, seen map[string]bool) error {
	if class == "" {
		return fmt.Errorf("class is required")
	}
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if seen[name] {
		return fmt.Errorf("duplicate strategy name")
	}
	seen[name] = true

	if len(vtSymbols) == 0 {
		return fmt.Errorf("at least one vt_symbol is required")
	}
	for _, vt := range vtSymbols {
		sym, exch, err := types.ExtractVtSymbol(vt)
		if err != nil {
			return err
		}
		if !types.ValidExchange(exch) {
			return fmt.Errorf("unknown venue %q in %s", exch, vt)
		}
		if !symbol.Validate(sym, exch) {
			return fmt.Errorf("contract code %q does not match the %s format", sym, exch)
		}
	}
	return nil
}
