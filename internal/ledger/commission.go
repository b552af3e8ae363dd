package ledger

import (
	"github.com/shopspring/decimal"

	"ctacore/internal/pkg/symbol"
	"ctacore/internal/types"
)

// CommissionSchedule is the per-commodity fee table. Each tier can charge
// either a proportional rate on turnover or a flat per-lot fee; the rate
// wins when both are set.
type CommissionSchedule struct {
	OpenRate       float64 `json:"open_rate" yaml:"open_rate" mapstructure:"open_rate"`
	OpenFlat       float64 `json:"open_flat" yaml:"open_flat" mapstructure:"open_flat"`
	CloseTodayRate float64 `json:"close_today_rate" yaml:"close_today_rate" mapstructure:"close_today_rate"`
	CloseTodayFlat float64 `json:"close_today_flat" yaml:"close_today_flat" mapstructure:"close_today_flat"`
	CloseRate      float64 `json:"close_rate" yaml:"close_rate" mapstructure:"close_rate"`
	CloseFlat      float64 `json:"close_flat" yaml:"close_flat" mapstructure:"close_flat"`
}

// CommissionTable maps commodity code (RB, TA, ...) to its schedule.
type CommissionTable map[string]CommissionSchedule

// Calculate returns the fee for one fill, rounded to fen. Unknown
// commodities cost nothing.
func (t CommissionTable) Calculate(trade *types.Trade, multiplier float64) float64 {
	commodity := symbol.ExtractCommodity(trade.Symbol)
	if commodity == "" {
		return 0
	}
	sched, ok := t[commodity]
	if !ok {
		return 0
	}

	var rate, flat float64
	switch trade.Offset {
	case types.OffsetOpen:
		rate, flat = sched.OpenRate, sched.OpenFlat
	case types.OffsetCloseToday:
		rate, flat = sched.CloseTodayRate, sched.CloseTodayFlat
	default:
		// close-yesterday and plain close share the third tier
		rate, flat = sched.CloseRate, sched.CloseFlat
	}

	var fee decimal.Decimal
	if rate != 0 {
		fee = decimal.NewFromFloat(rate).
			Mul(decimal.NewFromFloat(trade.Price)).
			Mul(decimal.NewFromFloat(trade.Volume)).
			Mul(decimal.NewFromFloat(multiplier))
	} else {
		fee = decimal.NewFromFloat(flat).Mul(decimal.NewFromFloat(trade.Volume))
	}
	f, _ := fee.Round(2).Float64()
	return f
}
