// Package strategies holds the built-in strategy classes. Register
// installs them into a strategy engine; deployments pick classes by
// name in the config.
package strategies

import (
	"fmt"

	"ctacore/internal/bars"
	"ctacore/internal/cta"
	"ctacore/internal/types"
)

// DoubleMaParams configures the moving-average crossover strategy.
type DoubleMaParams struct {
	FastWindow int     `mapstructure:"fast_window"`
	SlowWindow int     `mapstructure:"slow_window"`
	Volume     float64 `mapstructure:"volume"`
	Period     string  `mapstructure:"period"`
}

func (p *DoubleMaParams) Validate() error {
	if p.FastWindow <= 0 || p.SlowWindow <= 0 {
		return fmt.Errorf("ma windows must be positive")
	}
	if p.FastWindow >= p.SlowWindow {
		return fmt.Errorf("fast window %d must be below slow window %d", p.FastWindow, p.SlowWindow)
	}
	if p.Volume <= 0 {
		return fmt.Errorf("volume must be positive")
	}
	if _, err := bars.ParsePeriod(p.Period); err != nil {
		return err
	}
	return nil
}

// DoubleMaStrategy goes long when the fast average crosses above the
// slow one and flips short on the opposite cross.
type DoubleMaStrategy struct {
	cta.BaseStrategy
	params DoubleMaParams

	gen    *bars.Generator
	series *bars.Series
}

// NewDoubleMa is the factory registered under class "DoubleMa".
func NewDoubleMa(engine *cta.Engine, name, vtSymbol, gateway string) cta.Strategy {
	s := &DoubleMaStrategy{
		BaseStrategy: cta.NewBaseStrategy(engine, name, "DoubleMa", vtSymbol, gateway),
		params: DoubleMaParams{
			FastWindow: 10,
			SlowWindow: 20,
			Volume:     1,
			Period:     "1m",
		},
	}
	s.BindParams(&s.params)
	return s
}

func (s *DoubleMaStrategy) OnInit() {
	period, _ := bars.ParsePeriod(s.params.Period)
	s.series = bars.NewSeries(s.params.SlowWindow + 2)
	s.gen = bars.NewGenerator(period, s.onMinuteBar, s.onPeriodBar)
	s.WriteLog("init")
}

func (s *DoubleMaStrategy) OnStop() {
	s.WriteLog("stop")
}

func (s *DoubleMaStrategy) OnTick(tick *types.Tick) {
	s.gen.UpdateTick(tick)
}

func (s *DoubleMaStrategy) OnBar(bar *types.Bar) {
	s.gen.UpdateBar(bar)
}

// onMinuteBar routes the 1x bars built from ticks into the window
// aggregation.
func (s *DoubleMaStrategy) onMinuteBar(bar *types.Bar) {
	s.gen.UpdateBar(bar)
}

func (s *DoubleMaStrategy) onPeriodBar(bar *types.Bar) {
	s.series.Update(bar)
	if !s.series.Inited() {
		return
	}

	fastPrev, fastLast := s.series.SmaSeries(s.params.FastWindow)
	slowPrev, slowLast := s.series.SmaSeries(s.params.SlowWindow)

	crossOver := fastLast > slowLast && fastPrev <= slowPrev
	crossBelow := fastLast < slowLast && fastPrev >= slowPrev

	switch {
	case crossOver:
		if s.Pos < 0 {
			s.Cover(bar.ClosePrice, -s.Pos, false, false, false)
		}
		if s.Pos <= 0 {
			s.Buy(bar.ClosePrice, s.params.Volume, false, false, false)
		}
	case crossBelow:
		if s.Pos > 0 {
			s.Sell(bar.ClosePrice, s.Pos, false, false, false)
		}
		if s.Pos >= 0 {
			s.Short(bar.ClosePrice, s.params.Volume, false, false, false)
		}
	}
	s.PutEvent()
}
