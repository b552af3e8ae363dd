package strategies

import (
	"fmt"

	"ctacore/internal/bars"
	"ctacore/internal/cta"
	"ctacore/internal/types"
)

// MacdParams configures the MACD histogram strategy.
type MacdParams struct {
	FastPeriod   int     `mapstructure:"fast_period"`
	SlowPeriod   int     `mapstructure:"slow_period"`
	SignalPeriod int     `mapstructure:"signal_period"`
	Volume       float64 `mapstructure:"volume"`
	Period       string  `mapstructure:"period"`
	StopPercent  float64 `mapstructure:"stop_percent"`
}

func (p *MacdParams) Validate() error {
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 || p.SignalPeriod <= 0 {
		return fmt.Errorf("macd periods must be positive")
	}
	if p.FastPeriod >= p.SlowPeriod {
		return fmt.Errorf("fast period %d must be below slow period %d", p.FastPeriod, p.SlowPeriod)
	}
	if p.Volume <= 0 {
		return fmt.Errorf("volume must be positive")
	}
	if p.StopPercent < 0 || p.StopPercent >= 1 {
		return fmt.Errorf("stop_percent must be in [0, 1)")
	}
	if _, err := bars.ParsePeriod(p.Period); err != nil {
		return err
	}
	return nil
}

// MacdState is persisted across restarts alongside pos and hot.
type MacdState struct {
	EntryPrice float64 `mapstructure:"entry_price"`
}

// MacdStrategy trades MACD histogram sign flips and protects each entry
// with a stop order a fixed percentage away.
type MacdStrategy struct {
	cta.BaseStrategy
	params MacdParams
	state  MacdState

	gen    *bars.Generator
	series *bars.Series
}

// NewMacd is the factory registered under class "Macd".
func NewMacd(engine *cta.Engine, name, vtSymbol, gateway string) cta.Strategy {
	s := &MacdStrategy{
		BaseStrategy: cta.NewBaseStrategy(engine, name, "Macd", vtSymbol, gateway),
		params: MacdParams{
			FastPeriod:   12,
			SlowPeriod:   26,
			SignalPeriod: 9,
			Volume:       1,
			Period:       "1m",
			StopPercent:  0.02,
		},
	}
	s.BindParams(&s.params)
	s.BindState(&s.state)
	return s
}

func (s *MacdStrategy) OnInit() {
	period, _ := bars.ParsePeriod(s.params.Period)
	s.series = bars.NewSeries(s.params.SlowPeriod + s.params.SignalPeriod + 10)
	s.gen = bars.NewGenerator(period, s.onMinuteBar, s.onPeriodBar)
	s.WriteLog("init")
}

func (s *MacdStrategy) OnTick(tick *types.Tick) {
	s.gen.UpdateTick(tick)
}

func (s *MacdStrategy) OnBar(bar *types.Bar) {
	s.gen.UpdateBar(bar)
}

func (s *MacdStrategy) onMinuteBar(bar *types.Bar) {
	s.gen.UpdateBar(bar)
}

func (s *MacdStrategy) onPeriodBar(bar *types.Bar) {
	s.series.Update(bar)
	if !s.series.Inited() {
		return
	}

	prevHist, lastHist := s.series.MacdSeries(
		s.params.FastPeriod, s.params.SlowPeriod, s.params.SignalPeriod)

	flippedUp := lastHist > 0 && prevHist <= 0
	flippedDown := lastHist < 0 && prevHist >= 0

	switch {
	case flippedUp && s.Pos <= 0:
		s.CancelAll()
		if s.Pos < 0 {
			s.Cover(bar.ClosePrice, -s.Pos, false, false, false)
		}
		s.Buy(bar.ClosePrice, s.params.Volume, false, false, false)
	case flippedDown && s.Pos >= 0:
		s.CancelAll()
		if s.Pos > 0 {
			s.Sell(bar.ClosePrice, s.Pos, false, false, false)
		}
		s.Short(bar.ClosePrice, s.params.Volume, false, false, false)
	}
	s.PutEvent()
}

// OnTrade places the protective stop once an opening fill lands.
func (s *MacdStrategy) OnTrade(trade *types.Trade) {
	if trade.Offset != types.OffsetOpen || s.params.StopPercent == 0 {
		return
	}
	s.state.EntryPrice = trade.Price

	if trade.Direction == types.DirectionLong {
		stopPrice := trade.Price * (1 - s.params.StopPercent)
		s.Sell(stopPrice, trade.Volume, true, false, false)
	} else {
		stopPrice := trade.Price * (1 + s.params.StopPercent)
		s.Cover(stopPrice, trade.Volume, true, false, false)
	}
	s.SyncData()
}
