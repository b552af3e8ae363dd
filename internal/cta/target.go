package cta

import (
	"ctacore/internal/types"
)

// TargetPosTemplate lets a strategy declare the position it wants
// instead of issuing orders. Embed it, feed UpdateTick/UpdateOrder from
// the callbacks and call SetTargetPos; the template chases the target
// by cancelling stale orders and re-quoting against the book.
type TargetPosTemplate struct {
	BaseStrategy

	// TickAdd is how many price units beyond the touch new orders are
	// priced to get filled quickly.
	TickAdd float64

	targetPos float64
	lastTick  *types.Tick
	activeIDs map[string]bool
}

// NewTargetPosTemplate is called by the embedding strategy's factory.
func NewTargetPosTemplate(engine *Engine, name, className, vtSymbol, gateway string, tickAdd float64) TargetPosTemplate {
	return TargetPosTemplate{
		BaseStrategy: NewBaseStrategy(engine, name, className, vtSymbol, gateway),
		TickAdd:      tickAdd,
		activeIDs:    make(map[string]bool),
	}
}

// TargetPos returns the current target.
func (t *TargetPosTemplate) TargetPos() float64 { return t.targetPos }

// SetTargetPos updates the target and immediately starts chasing it.
func (t *TargetPosTemplate) SetTargetPos(target float64) {
	t.targetPos = target
	t.trade()
}

// UpdateTick must be called from the strategy's OnTick.
func (t *TargetPosTemplate) UpdateTick(tick *types.Tick) {
	t.lastTick = tick
}

// UpdateOrder must be called from the strategy's OnOrder. Once the last
// working order finishes, the chase resumes if the target is not
// reached yet.
func (t *TargetPosTemplate) UpdateOrder(order *types.Order) {
	id := order.VtOrderID()
	if order.IsActive() {
		t.activeIDs[id] = true
		return
	}
	delete(t.activeIDs, id)
	if len(t.activeIDs) == 0 && t.Pos != t.targetPos {
		t.trade()
	}
}

// trade cancels whatever is working and, once nothing is, sends fresh
// orders toward the target.
func (t *TargetPosTemplate) trade() {
	if !t.Trading() {
		return
	}
	if len(t.activeIDs) > 0 {
		t.CancelAll()
		return
	}
	t.sendNewOrders()
}

func (t *TargetPosTemplate) sendNewOrders() {
	posChange := t.targetPos - t.Pos
	if posChange == 0 || t.lastTick == nil {
		return
	}
	tick := t.lastTick

	if posChange > 0 {
		// quote through the ask, but never beyond the price limit
		price := tick.AskPrice1 + t.TickAdd
		if tick.LimitUp > 0 && price > tick.LimitUp {
			price = tick.LimitUp
		}

		// flatten the short leg before opening the long one
		remaining := posChange
		if t.Pos < 0 {
			coverVolume := min(remaining, -t.Pos)
			t.track(t.Cover(price, coverVolume, false, false, false))
			remaining -= coverVolume
		}
		if remaining > 0 {
			t.track(t.Buy(price, remaining, false, false, false))
		}
		return
	}

	price := tick.BidPrice1 - t.TickAdd
	if tick.LimitDown > 0 && price < tick.LimitDown {
		price = tick.LimitDown
	}

	remaining := -posChange
	if t.Pos > 0 {
		sellVolume := min(remaining, t.Pos)
		t.track(t.Sell(price, sellVolume, false, false, false))
		remaining -= sellVolume
	}
	if remaining > 0 {
		t.track(t.Short(price, remaining, false, false, false))
	}
}

func (t *TargetPosTemplate) track(ids []string) {
	for _, id := range ids {
		t.activeIDs[id] = true
	}
}
