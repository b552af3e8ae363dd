package bars

import (
	"time"

	"ctacore/internal/types"
)

// OnBarsFunc receives one synchronised slice of 1-minute bars keyed by
// vt_symbol.
type OnBarsFunc func(map[string]*types.Bar)

// SliceGenerator builds per-symbol 1-minute bars from a mixed tick stream
// and emits them together when the minute rolls over, so multi-leg
// strategies always see one aligned slice. Window aggregation counts
// emitted slices rather than wall-clock minutes.
type SliceGenerator struct {
	onBars       OnBarsFunc
	window       int
	onWindowBars OnBarsFunc

	minute    time.Time
	bars      map[string]*types.Bar
	lastTicks map[string]*types.Tick

	windowBars map[string]*types.Bar
	count      int
}

func NewSliceGenerator(onBars OnBarsFunc, window int, onWindowBars OnBarsFunc) *SliceGenerator {
	return &SliceGenerator{
		onBars:       onBars,
		window:       window,
		onWindowBars: onWindowBars,
		bars:         make(map[string]*types.Bar),
		lastTicks:    make(map[string]*types.Tick),
		windowBars:   make(map[string]*types.Bar),
	}
}

// UpdateTick feeds one tick of any subscribed symbol.
func (g *SliceGenerator) UpdateTick(tick *types.Tick) {
	if tick.LastPrice == 0 {
		return
	}

	minute := tick.Datetime.Truncate(time.Minute)
	if !g.minute.IsZero() && !minute.Equal(g.minute) && len(g.bars) > 0 {
		g.flushSlice()
	}
	g.minute = minute

	vt := tick.VtSymbol()
	bar, ok := g.bars[vt]
	if !ok {
		g.bars[vt] = newBarFromTick(tick, minute)
		bar = g.bars[vt]
	} else {
		mergeTick(bar, tick)
	}

	if last, ok := g.lastTicks[vt]; ok {
		if dv := tick.Volume - last.Volume; dv > 0 {
			bar.Volume += dv
		}
		if dt := tick.Turnover - last.Turnover; dt > 0 {
			bar.Turnover += dt
		}
	}
	g.lastTicks[vt] = tick
}

// Generate flushes the in-progress slice, if any.
func (g *SliceGenerator) Generate() {
	if len(g.bars) > 0 {
		g.flushSlice()
	}
}

func (g *SliceGenerator) flushSlice() {
	slice := g.bars
	g.bars = make(map[string]*types.Bar)

	if g.onBars != nil {
		g.onBars(slice)
	}
	if g.window > 1 {
		g.updateWindow(slice)
	}
}

func (g *SliceGenerator) updateWindow(slice map[string]*types.Bar) {
	for vt, bar := range slice {
		wb, ok := g.windowBars[vt]
		if !ok {
			cp := *bar
			g.windowBars[vt] = &cp
		} else {
			mergeBar(wb, bar)
		}
	}

	g.count++
	if g.count%g.window == 0 {
		finished := g.windowBars
		g.windowBars = make(map[string]*types.Bar)
		if g.onWindowBars != nil {
			g.onWindowBars(finished)
		}
	}
}
