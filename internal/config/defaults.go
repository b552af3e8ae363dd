package config

// 默认值常量
const (
	defaultLogLevel      = "info"
	defaultTimerInterval = 1
	defaultStoreDriver   = "file"
	defaultStorePath     = "data"
	defaultLedgerTimer   = 5
	defaultCutoverHour   = 20
	defaultGateway       = "PAPER"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultLogLevel
	}
	if c.App.TimerIntervalSec <= 0 {
		c.App.TimerIntervalSec = defaultTimerInterval
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Ledger.TimerInterval <= 0 {
		c.Ledger.TimerInterval = defaultLedgerTimer
	}
	if c.Market.CutoverHour <= 0 {
		c.Market.CutoverHour = defaultCutoverHour
	}
	for i := range c.Strategies {
		if c.Strategies[i].Gateway == "" {
			c.Strategies[i].Gateway = defaultGateway
		}
	}
	for i := range c.Portfolios {
		if c.Portfolios[i].Gateway == "" {
			c.Portfolios[i].Gateway = defaultGateway
		}
	}
}
