package cta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/event"
	"ctacore/internal/types"
)

type targetStrategy struct {
	TargetPosTemplate
}

func newTargetStrategy(e *Engine, name, vtSymbol, gw string) Strategy {
	return &targetStrategy{
		TargetPosTemplate: NewTargetPosTemplate(e, name, "Target", vtSymbol, gw, 5),
	}
}

func (s *targetStrategy) OnInit() {}

func (s *targetStrategy) OnTick(tick *types.Tick) { s.UpdateTick(tick) }

func (s *targetStrategy) OnOrder(order *types.Order) { s.UpdateOrder(order) }

func setupTarget(t *testing.T) (*Engine, *testGateway, *targetStrategy) {
	t.Helper()
	e, gw := newTestEngine(t, nil)
	e.RegisterClass("Target", newTargetStrategy)
	feedContract(e, false)

	require.NoError(t, e.AddStrategy("Target", "tp", "rb2505.SHFE", "TEST", nil))
	s := e.strategies["tp"].(*targetStrategy)
	initStrategy(e, s)
	require.NoError(t, e.StartStrategy("tp"))

	feedTick(e, 3500) // ask1 3501, bid1 3499, limits 4000/3000
	return e, gw, s
}

func TestTargetPosBuy(t *testing.T) {
	_, gw, s := setupTarget(t)

	s.SetTargetPos(2)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, types.DirectionLong, gw.requests[0].Direction)
	assert.Equal(t, types.OffsetOpen, gw.requests[0].Offset)
	assert.Equal(t, 2.0, gw.requests[0].Volume)
	assert.Equal(t, 3506.0, gw.requests[0].Price, "ask1 plus tick add")
}

func orderEvent(orderID string, status types.Status) event.Event {
	return event.Event{Data: &types.Order{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		OrderID: orderID, Status: status, Gateway: "TEST",
	}}
}

func TestTargetPosPriceCappedAtLimit(t *testing.T) {
	e, gw, s := setupTarget(t)

	// ask1 lands at 3999; adding 5 ticks would pierce the limit
	feedTick(e, 3998)
	s.SetTargetPos(1)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, 4000.0, gw.requests[0].Price)
}

func TestTargetPosCoverThenBuy(t *testing.T) {
	e, gw, s := setupTarget(t)
	s.Pos = -1
	e.holding("rb2505.SHFE").shortTd = 1

	s.SetTargetPos(2)
	require.Len(t, gw.requests, 2)
	assert.Equal(t, types.DirectionLong, gw.requests[0].Direction)
	assert.True(t, gw.requests[0].Offset.IsClose())
	assert.Equal(t, 1.0, gw.requests[0].Volume)
	assert.Equal(t, types.DirectionLong, gw.requests[1].Direction)
	assert.Equal(t, types.OffsetOpen, gw.requests[1].Offset)
	assert.Equal(t, 2.0, gw.requests[1].Volume)
}

func TestTargetPosSellThenShort(t *testing.T) {
	e, gw, s := setupTarget(t)
	s.Pos = 1
	e.holding("rb2505.SHFE").longTd = 1

	s.SetTargetPos(-2)
	require.Len(t, gw.requests, 2)
	assert.Equal(t, types.DirectionShort, gw.requests[0].Direction)
	assert.Equal(t, 1.0, gw.requests[0].Volume)
	assert.Equal(t, types.OffsetOpen, gw.requests[1].Offset)
	assert.Equal(t, 2.0, gw.requests[1].Volume)
	assert.Equal(t, 3494.0, gw.requests[0].Price, "bid1 minus tick add")
}

func TestTargetPosCancelsBeforeResend(t *testing.T) {
	e, gw, s := setupTarget(t)

	s.SetTargetPos(1)
	require.Len(t, gw.requests, 1)

	// a new target first cancels the working order
	s.SetTargetPos(3)
	assert.Len(t, gw.cancels, 1)
	assert.Len(t, gw.requests, 1, "no new order while one is working")

	// once the cancel lands, the chase resumes
	e.processOrder(orderEvent("1", types.StatusCancelled))
	require.Len(t, gw.requests, 2)
	assert.Equal(t, 3.0, gw.requests[1].Volume)
}

func TestTargetPosIgnoredWhileStopped(t *testing.T) {
	e, gw, s := setupTarget(t)
	require.NoError(t, e.StopStrategy("tp"))

	s.SetTargetPos(2)
	assert.Empty(t, gw.requests)
}
