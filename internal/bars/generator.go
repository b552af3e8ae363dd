// Package bars synthesises OHLCV bars out of tick streams and aggregates
// 1x bars into larger windows.
package bars

import (
	"time"

	"ctacore/internal/market"
	"ctacore/internal/types"
)

// OnBarFunc receives finished 1x-period bars.
type OnBarFunc func(*types.Bar)

// OnWindowBarFunc receives finished window bars.
type OnWindowBarFunc func(*types.Bar)

// Generator turns ticks into 1-minute (or N-second) bars and optionally
// aggregates those into N-minute, daily or multi-day windows.
//
// Volume and turnover on ticks are cumulative day counters; the generator
// accumulates their deltas, clamping negatives to zero so counter resets
// at session boundaries cannot produce negative bar volume.
type Generator struct {
	onBar       OnBarFunc
	onWindowBar OnWindowBarFunc
	period      Period
	cutoverHour int

	bar      *types.Bar
	lastTick *types.Tick

	windowBar   *types.Bar
	windowStart int // minutes since midnight of the open window

	dailyBar  *types.Bar
	dailyDate string // trading date of the open daily bar
	dayCount  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithCutoverHour overrides the 20:00 trading-date cut-over used for
// daily and multi-day windows.
func WithCutoverHour(hour int) Option {
	return func(g *Generator) { g.cutoverHour = hour }
}

// NewGenerator builds a generator for the given period. onBar gets every
// finished 1x bar; onWindowBar (may be nil) gets finished window bars for
// minute-window, daily and multi-day periods.
func NewGenerator(period Period, onBar OnBarFunc, onWindowBar OnWindowBarFunc, opts ...Option) *Generator {
	g := &Generator{
		onBar:       onBar,
		onWindowBar: onWindowBar,
		period:      period,
		cutoverHour: 20,
		windowStart: -1,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// UpdateTick feeds one tick. Zero last price means an empty pre-open
// snapshot and is ignored.
func (g *Generator) UpdateTick(tick *types.Tick) {
	if tick.LastPrice == 0 {
		return
	}
	if g.period.SecondWindow > 0 {
		g.updateTickSecond(tick)
	} else {
		g.updateTickMinute(tick)
	}
}

func (g *Generator) updateTickSecond(tick *types.Tick) {
	start := secondWindowStart(tick.Datetime, g.period.SecondWindow)

	if g.bar != nil && start.After(g.bar.Datetime) {
		g.finishBar()
	}
	if g.bar == nil {
		g.bar = newBarFromTick(tick, start)
	} else {
		mergeTick(g.bar, tick)
	}
	g.accumulateDeltas(tick)
	g.lastTick = tick
}

func (g *Generator) updateTickMinute(tick *types.Tick) {
	start := tick.Datetime.Truncate(time.Minute)

	if g.bar != nil && !start.Equal(g.bar.Datetime) {
		g.finishBar()
	}
	if g.bar == nil {
		g.bar = newBarFromTick(tick, start)
	} else {
		mergeTick(g.bar, tick)
	}
	g.accumulateDeltas(tick)
	g.lastTick = tick
}

func (g *Generator) accumulateDeltas(tick *types.Tick) {
	if g.lastTick == nil || g.bar == nil {
		return
	}
	if dv := tick.Volume - g.lastTick.Volume; dv > 0 {
		g.bar.Volume += dv
	}
	if dt := tick.Turnover - g.lastTick.Turnover; dt > 0 {
		g.bar.Turnover += dt
	}
}

func (g *Generator) finishBar() {
	bar := g.bar
	g.bar = nil
	if g.onBar != nil {
		g.onBar(bar)
	}
}

// UpdateBar feeds one finished 1-minute bar into the window aggregation.
// Call it from the OnBar callback, or directly when replaying history.
func (g *Generator) UpdateBar(bar *types.Bar) {
	switch {
	case g.period.Days > 0:
		g.updateDaily(bar)
	case g.period.Window > 1:
		g.updateWindow(bar)
	default:
		// 1-minute period, the 1x bar is the window bar
		if g.onWindowBar != nil {
			g.onWindowBar(bar)
		}
	}
}

func (g *Generator) updateWindow(bar *types.Bar) {
	total := bar.Datetime.Hour()*60 + bar.Datetime.Minute()
	start := total / g.period.Window * g.period.Window

	// Gap guard: a bar from a different window means the open window can
	// never be completed (session break or dropped feed), so close it as-is.
	if g.windowBar != nil && start != g.windowStart {
		g.finishWindowBar()
	}

	if g.windowBar == nil {
		g.windowStart = start
		wb := *bar
		wb.Datetime = bar.Datetime.Add(-time.Duration(total-start) * time.Minute)
		g.windowBar = &wb
	} else {
		mergeBar(g.windowBar, bar)
	}

	if (total+1)%g.period.Window == 0 {
		g.finishWindowBar()
	}
}

func (g *Generator) updateDaily(bar *types.Bar) {
	date := market.TradingDateAt(bar.Datetime, g.cutoverHour)

	if g.dailyBar != nil && date != g.dailyDate {
		g.dayCount++
		if g.dayCount >= g.period.Days {
			g.finishDailyBar()
		}
	}

	if g.dailyBar == nil {
		db := *bar
		db.Interval = types.IntervalDaily
		g.dailyBar = &db
		g.dailyDate = date
		g.dayCount = 0
	} else {
		mergeBar(g.dailyBar, bar)
		g.dailyDate = date
	}
}

func (g *Generator) finishWindowBar() {
	wb := g.windowBar
	g.windowBar = nil
	g.windowStart = -1
	if wb != nil && g.onWindowBar != nil {
		g.onWindowBar(wb)
	}
}

func (g *Generator) finishDailyBar() {
	db := g.dailyBar
	g.dailyBar = nil
	g.dayCount = 0
	if db != nil && g.onWindowBar != nil {
		g.onWindowBar(db)
	}
}

// Generate flushes the in-progress 1x bar, if any, and returns it. Used
// on shutdown and resubscribe so the tail of the stream is not lost.
func (g *Generator) Generate() *types.Bar {
	bar := g.bar
	if bar != nil {
		g.finishBar()
	}
	return bar
}

func secondWindowStart(dt time.Time, window int) time.Time {
	sec := dt.Hour()*3600 + dt.Minute()*60 + dt.Second()
	start := sec / window * window
	midnight := time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, dt.Location())
	return midnight.Add(time.Duration(start) * time.Second)
}

func newBarFromTick(tick *types.Tick, start time.Time) *types.Bar {
	return &types.Bar{
		Symbol:       tick.Symbol,
		Exchange:     tick.Exchange,
		Interval:     types.IntervalMinute,
		Datetime:     start,
		OpenPrice:    tick.LastPrice,
		HighPrice:    tick.LastPrice,
		LowPrice:     tick.LastPrice,
		ClosePrice:   tick.LastPrice,
		OpenInterest: tick.OpenInterest,
	}
}

func mergeTick(bar *types.Bar, tick *types.Tick) {
	if tick.LastPrice > bar.HighPrice {
		bar.HighPrice = tick.LastPrice
	}
	if tick.LastPrice < bar.LowPrice {
		bar.LowPrice = tick.LastPrice
	}
	bar.ClosePrice = tick.LastPrice
	bar.OpenInterest = tick.OpenInterest
}

func mergeBar(dst, src *types.Bar) {
	if src.HighPrice > dst.HighPrice {
		dst.HighPrice = src.HighPrice
	}
	if src.LowPrice < dst.LowPrice {
		dst.LowPrice = src.LowPrice
	}
	dst.ClosePrice = src.ClosePrice
	dst.Volume += src.Volume
	dst.Turnover += src.Turnover
	dst.OpenInterest = src.OpenInterest
}
