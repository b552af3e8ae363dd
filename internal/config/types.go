package config

// Config is the root of the YAML configuration.
type Config struct {
	App        AppConfig         `yaml:"app"`
	Store      StoreConfig       `yaml:"store"`
	Paper      PaperConfig       `yaml:"paper"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Market     MarketConfig      `yaml:"market"`
	Strategies []StrategyConfig  `yaml:"strategies"`
	Portfolios []PortfolioConfig `yaml:"portfolios"`
}

// AppConfig 进程级配置。
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
	// TimerIntervalSec is the event-loop timer period in seconds.
	TimerIntervalSec int `yaml:"timer_interval_sec"`
	// AutoStart inits and starts every configured strategy on boot.
	AutoStart bool `yaml:"auto_start"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlite"
	Path   string `yaml:"path"`
}

// PaperConfig configures the simulated gateway.
type PaperConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ContractsFile string `yaml:"contracts_file"`
}

// LedgerConfig configures PnL tracking.
type LedgerConfig struct {
	// TimerInterval is how many timer events between PnL refreshes.
	TimerInterval   int    `yaml:"timer_interval"`
	CommissionsFile string `yaml:"commissions_file"`
}

// MarketConfig carries venue-level reference data.
type MarketConfig struct {
	// HotContracts maps commodity code to its dominant contract,
	// e.g. RB -> rb2510.SHFE.
	HotContracts map[string]string `yaml:"hot_contracts"`
	// CutoverHour is the trading-date rollover hour (default 20).
	CutoverHour int `yaml:"cutover_hour"`
}

// StrategyConfig declares one single-instrument strategy instance.
type StrategyConfig struct {
	Class    string         `yaml:"class"`
	Name     string         `yaml:"name"`
	VtSymbol string         `yaml:"vt_symbol"`
	Gateway  string         `yaml:"gateway"`
	Setting  map[string]any `yaml:"setting"`
}

// PortfolioConfig declares one multi-instrument strategy instance.
type PortfolioConfig struct {
	Class     string         `yaml:"class"`
	Name      string         `yaml:"name"`
	VtSymbols []string       `yaml:"vt_symbols"`
	Gateway   string         `yaml:"gateway"`
	Setting   map[string]any `yaml:"setting"`
}
