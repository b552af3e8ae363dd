// Package portfolio runs strategies that trade several instruments as
// one unit, on time-aligned bar slices.
package portfolio

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"ctacore/internal/bars"
	"ctacore/internal/types"
)

// Strategy is a multi-instrument strategy. OnBars receives one aligned
// slice per minute (or per window), keyed by vt_symbol.
type Strategy interface {
	Base() *BaseStrategy

	OnInit()
	OnStart()
	OnStop()

	OnTick(tick *types.Tick)
	OnBars(slice map[string]*types.Bar)
	OnOrder(order *types.Order)
	OnTrade(trade *types.Trade)
}

// Factory builds a strategy bound to the engine and its instruments.
type Factory func(engine *Engine, name string, vtSymbols []string, gateway string) Strategy

// BaseStrategy carries the shared plumbing. Pos tracks the signed net
// position per instrument, updated from fills before OnTrade runs.
type BaseStrategy struct {
	engine    *Engine
	name      string
	className string
	vtSymbols []string
	gateway   string

	inited  bool
	trading bool

	Pos map[string]float64

	sliceGen *bars.SliceGenerator
	params   any
}

// NewBaseStrategy is called by strategy factories.
func NewBaseStrategy(engine *Engine, name, className string, vtSymbols []string, gateway string) BaseStrategy {
	return BaseStrategy{
		engine:    engine,
		name:      name,
		className: className,
		vtSymbols: vtSymbols,
		gateway:   gateway,
		Pos:       make(map[string]float64),
	}
}

func (b *BaseStrategy) Base() *BaseStrategy { return b }

func (b *BaseStrategy) Name() string        { return b.name }
func (b *BaseStrategy) VtSymbols() []string { return b.vtSymbols }
func (b *BaseStrategy) Gateway() string     { return b.gateway }
func (b *BaseStrategy) Inited() bool        { return b.inited }
func (b *BaseStrategy) Trading() bool       { return b.trading }

// Default callbacks; OnInit and OnBars stay mandatory.
func (b *BaseStrategy) OnStart()             {}
func (b *BaseStrategy) OnStop()              {}
func (b *BaseStrategy) OnOrder(*types.Order) {}
func (b *BaseStrategy) OnTrade(*types.Trade) {}

// OnTick feeds the slice generator by default. Strategies needing raw
// ticks override this and call UpdateTick themselves.
func (b *BaseStrategy) OnTick(tick *types.Tick) { b.UpdateTick(tick) }

// InitSliceGenerator must be called from OnInit. window > 1 aggregates
// the 1-minute slices before they reach OnBars.
func (b *BaseStrategy) InitSliceGenerator(window int) {
	s := b.self()
	if window > 1 {
		b.sliceGen = bars.NewSliceGenerator(nil, window, s.OnBars)
	} else {
		b.sliceGen = bars.NewSliceGenerator(s.OnBars, 0, nil)
	}
}

// UpdateTick routes one tick into the slice generator.
func (b *BaseStrategy) UpdateTick(tick *types.Tick) {
	if b.sliceGen != nil {
		b.sliceGen.UpdateTick(tick)
	}
}

// BindParams registers the parameter struct pointer for setting decode.
func (b *BaseStrategy) BindParams(params any) { b.params = params }

// UpdateSetting applies a setting map onto the bound parameters.
func (b *BaseStrategy) UpdateSetting(setting map[string]any) error {
	if b.params != nil && setting != nil {
		if err := mapstructure.WeakDecode(setting, b.params); err != nil {
			return fmt.Errorf("decode setting: %w", err)
		}
	}
	if v, ok := b.params.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid setting: %w", err)
		}
	}
	return nil
}

// ParamsMap snapshots the bound parameters.
func (b *BaseStrategy) ParamsMap() map[string]any {
	out := map[string]any{}
	if b.params != nil {
		if err := mapstructure.Decode(b.params, &out); err != nil {
			return map[string]any{}
		}
	}
	return out
}

// StateMap snapshots the per-instrument positions for persistence.
func (b *BaseStrategy) StateMap() map[string]any {
	pos := make(map[string]any, len(b.Pos))
	for vt, p := range b.Pos {
		pos[vt] = p
	}
	return map[string]any{"pos": pos}
}

// LoadState restores a persisted blob.
func (b *BaseStrategy) LoadState(data map[string]any) error {
	if data == nil {
		return nil
	}
	var blob struct {
		Pos map[string]float64 `mapstructure:"pos"`
	}
	if err := mapstructure.WeakDecode(data, &blob); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	for vt, p := range blob.Pos {
		b.Pos[vt] = p
	}
	return nil
}

// Buy opens a long position on one instrument.
func (b *BaseStrategy) Buy(vtSymbol string, price, volume float64) []string {
	return b.sendOrder(vtSymbol, types.DirectionLong, types.OffsetOpen, price, volume)
}

// Sell closes a long position on one instrument.
func (b *BaseStrategy) Sell(vtSymbol string, price, volume float64) []string {
	return b.sendOrder(vtSymbol, types.DirectionShort, types.OffsetClose, price, volume)
}

// Short opens a short position on one instrument.
func (b *BaseStrategy) Short(vtSymbol string, price, volume float64) []string {
	return b.sendOrder(vtSymbol, types.DirectionShort, types.OffsetOpen, price, volume)
}

// Cover closes a short position on one instrument.
func (b *BaseStrategy) Cover(vtSymbol string, price, volume float64) []string {
	return b.sendOrder(vtSymbol, types.DirectionLong, types.OffsetClose, price, volume)
}

func (b *BaseStrategy) sendOrder(vtSymbol string, direction types.Direction, offset types.Offset, price, volume float64) []string {
	if !b.trading {
		return nil
	}
	return b.engine.sendOrder(b.self(), vtSymbol, direction, offset, price, volume)
}

// CancelAll cancels every active order of this strategy.
func (b *BaseStrategy) CancelAll() {
	if b.trading {
		b.engine.cancelAll(b.self())
	}
}

// LoadBars replays aligned history into OnBars, if a history source is
// configured on the engine.
func (b *BaseStrategy) LoadBars(count int) {
	b.engine.loadBars(b.self(), count)
}

// WriteLog emits a strategy-scoped log line.
func (b *BaseStrategy) WriteLog(msg string) {
	b.engine.writeLog(fmt.Sprintf("[%s] %s", b.name, msg))
}

// SyncData persists the strategy state blob.
func (b *BaseStrategy) SyncData() {
	b.engine.syncStrategyData(b.self())
}

func (b *BaseStrategy) self() Strategy {
	return b.engine.strategies[b.name]
}
