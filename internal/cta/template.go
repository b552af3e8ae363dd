package cta

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"ctacore/internal/types"
)

// Strategy is implemented by concrete trading strategies. Embed
// BaseStrategy to get the plumbing and no-op defaults; OnInit is the
// only callback without a default.
type Strategy interface {
	Base() *BaseStrategy

	OnInit()
	OnStart()
	OnTrading()
	OnStop()
	OnReset()

	OnTick(tick *types.Tick)
	OnBar(bar *types.Bar)
	OnOrder(order *types.Order)
	OnTrade(trade *types.Trade)
	OnStopOrder(stopOrder *StopOrder)
}

// Factory builds a strategy instance bound to the engine. Registered
// per class name via Engine.RegisterClass.
type Factory func(engine *Engine, name, vtSymbol, gateway string) Strategy

// Validator is implemented by parameter structs that want their values
// checked when a setting is applied.
type Validator interface {
	Validate() error
}

// BaseStrategy carries the runtime plumbing every strategy shares. The
// engine owns the lifecycle flags; strategies read them through the
// accessors.
type BaseStrategy struct {
	engine    *Engine
	name      string
	className string
	vtSymbol  string
	gateway   string

	inited  bool
	trading bool
	rolling bool

	// Pos is the signed net position, updated from fills before OnTrade
	// runs. Hot is the mapped hot contract recorded at init.
	Pos float64
	Hot string

	params any
	state  any
}

// NewBaseStrategy is called by strategy factories.
func NewBaseStrategy(engine *Engine, name, className, vtSymbol, gateway string) BaseStrategy {
	return BaseStrategy{
		engine:    engine,
		name:      name,
		className: className,
		vtSymbol:  vtSymbol,
		gateway:   gateway,
	}
}

func (b *BaseStrategy) Base() *BaseStrategy { return b }

func (b *BaseStrategy) Name() string      { return b.name }
func (b *BaseStrategy) ClassName() string { return b.className }
func (b *BaseStrategy) VtSymbol() string  { return b.vtSymbol }
func (b *BaseStrategy) Gateway() string   { return b.gateway }
func (b *BaseStrategy) Inited() bool      { return b.inited }
func (b *BaseStrategy) Trading() bool     { return b.trading }

// Default callbacks. OnInit is intentionally absent so every strategy
// must implement it.
func (b *BaseStrategy) OnStart()               {}
func (b *BaseStrategy) OnTrading()             {}
func (b *BaseStrategy) OnStop()                {}
func (b *BaseStrategy) OnReset()               {}
func (b *BaseStrategy) OnTick(*types.Tick)     {}
func (b *BaseStrategy) OnBar(*types.Bar)       {}
func (b *BaseStrategy) OnOrder(*types.Order)   {}
func (b *BaseStrategy) OnTrade(*types.Trade)   {}
func (b *BaseStrategy) OnStopOrder(*StopOrder) {}

// BindParams registers the strategy's parameter struct pointer so
// settings can be decoded into it.
func (b *BaseStrategy) BindParams(params any) { b.params = params }

// BindState registers the strategy's extra persisted state, merged with
// pos and hot in the data blob. Optional.
func (b *BaseStrategy) BindState(state any) { b.state = state }

// UpdateSetting applies a setting map onto the bound parameters and
// validates the result.
func (b *BaseStrategy) UpdateSetting(setting map[string]any) error {
	if b.params != nil && setting != nil {
		if err := mapstructure.WeakDecode(setting, b.params); err != nil {
			return fmt.Errorf("decode setting: %w", err)
		}
	}
	if v, ok := b.params.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid setting: %w", err)
		}
	}
	return nil
}

// ParamsMap snapshots the bound parameters for events and persistence.
func (b *BaseStrategy) ParamsMap() map[string]any {
	out := map[string]any{}
	if b.params != nil {
		if err := mapstructure.Decode(b.params, &out); err != nil {
			return map[string]any{}
		}
	}
	return out
}

// StateMap snapshots pos, hot and the bound extra state.
func (b *BaseStrategy) StateMap() map[string]any {
	out := map[string]any{}
	if b.state != nil {
		if err := mapstructure.Decode(b.state, &out); err != nil {
			out = map[string]any{}
		}
	}
	out["pos"] = b.Pos
	out["hot"] = b.Hot
	return out
}

// LoadState restores a persisted data blob.
func (b *BaseStrategy) LoadState(data map[string]any) error {
	if data == nil {
		return nil
	}
	if b.state != nil {
		if err := mapstructure.WeakDecode(data, b.state); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}
	}
	var core struct {
		Pos float64 `mapstructure:"pos"`
		Hot string  `mapstructure:"hot"`
	}
	if err := mapstructure.WeakDecode(data, &core); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	b.Pos = core.Pos
	b.Hot = core.Hot
	return nil
}

// Buy opens a long position.
func (b *BaseStrategy) Buy(price, volume float64, stop, lock, net bool) []string {
	return b.sendOrder(types.DirectionLong, types.OffsetOpen, price, volume, stop, lock, net)
}

// Sell closes a long position.
func (b *BaseStrategy) Sell(price, volume float64, stop, lock, net bool) []string {
	return b.sendOrder(types.DirectionShort, types.OffsetClose, price, volume, stop, lock, net)
}

// Short opens a short position.
func (b *BaseStrategy) Short(price, volume float64, stop, lock, net bool) []string {
	return b.sendOrder(types.DirectionShort, types.OffsetOpen, price, volume, stop, lock, net)
}

// Cover closes a short position.
func (b *BaseStrategy) Cover(price, volume float64, stop, lock, net bool) []string {
	return b.sendOrder(types.DirectionLong, types.OffsetClose, price, volume, stop, lock, net)
}

func (b *BaseStrategy) sendOrder(direction types.Direction, offset types.Offset, price, volume float64, stop, lock, net bool) []string {
	if !b.trading {
		return nil
	}
	// during a rollover only closing orders may go out on the old contract
	if b.rolling && offset == types.OffsetOpen {
		b.WriteLog("rollover in progress, open order blocked")
		return nil
	}
	return b.engine.sendOrder(b.self(), direction, offset, price, volume, stop, lock, net)
}

// CancelOrder cancels one of this strategy's orders by vt_orderid or
// local stop-order id.
func (b *BaseStrategy) CancelOrder(vtOrderID string) {
	if !b.trading {
		return
	}
	b.engine.cancelOrder(b.self(), vtOrderID)
}

// CancelAll cancels every active order of this strategy.
func (b *BaseStrategy) CancelAll() {
	if !b.trading {
		return
	}
	b.engine.cancelAll(b.self())
}

// ActiveOrderIDs lists this strategy's outstanding order ids.
func (b *BaseStrategy) ActiveOrderIDs() []string {
	return b.engine.activeOrderIDs(b.name)
}

// Contract returns the traded contract, or nil before the gateway has
// pushed it.
func (b *BaseStrategy) Contract() *types.Contract {
	return b.engine.contracts[b.vtSymbol]
}

// LastTick returns the latest tick of the traded symbol.
func (b *BaseStrategy) LastTick() *types.Tick {
	return b.engine.ticks[b.vtSymbol]
}

// WriteLog emits a strategy-scoped log line.
func (b *BaseStrategy) WriteLog(msg string) {
	b.engine.writeLog(fmt.Sprintf("[%s] %s", b.name, msg))
}

// SyncData persists the strategy state blob.
func (b *BaseStrategy) SyncData() {
	if b.trading || b.inited {
		b.engine.syncStrategyData(b.self())
	}
}

// PutEvent pushes a strategy snapshot onto the event loop for any UI.
func (b *BaseStrategy) PutEvent() {
	b.engine.putStrategyEvent(b.self())
}

// NeedRollover reports whether the traded contract is no longer the hot
// contract while a position is still open.
func (b *BaseStrategy) NeedRollover() bool {
	if b.Hot == "" {
		return false
	}
	return b.Hot != b.vtSymbol && b.Pos != 0
}

// BeginRollover blocks opening orders until CompleteRollover.
func (b *BaseStrategy) BeginRollover() {
	b.rolling = true
	b.WriteLog("rollover started")
}

// CompleteRollover lifts the open-order block.
func (b *BaseStrategy) CompleteRollover() {
	b.rolling = false
	b.WriteLog("rollover completed")
}

// self resolves the engine's full Strategy value for this base. The
// engine indexes strategies by name; the base only knows its name.
func (b *BaseStrategy) self() Strategy {
	return b.engine.strategies[b.name]
}
