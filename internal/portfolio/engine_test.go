package portfolio

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/notify"
	"ctacore/internal/store/filestore"
	"ctacore/internal/types"
)

type testGateway struct {
	requests []types.OrderRequest
	cancels  []types.CancelRequest
	subs     []types.SubscribeRequest
	nextID   int
}

func (g *testGateway) Name() string   { return "TEST" }
func (g *testGateway) Connect() error { return nil }
func (g *testGateway) Close() error   { return nil }

func (g *testGateway) Subscribe(req types.SubscribeRequest) error {
	g.subs = append(g.subs, req)
	return nil
}

func (g *testGateway) SendOrder(req types.OrderRequest) string {
	g.nextID++
	g.requests = append(g.requests, req)
	return fmt.Sprintf("TEST.%d", g.nextID)
}

func (g *testGateway) CancelOrder(req types.CancelRequest) error {
	g.cancels = append(g.cancels, req)
	return nil
}

// spreadStrategy records slices and buys the first leg on the first one.
type spreadStrategy struct {
	BaseStrategy
	slices     []map[string]*types.Bar
	posOnTrade float64
}

func newSpreadStrategy(e *Engine, name string, vtSymbols []string, gw string) Strategy {
	return &spreadStrategy{BaseStrategy: NewBaseStrategy(e, name, "Spread", vtSymbols, gw)}
}

func (s *spreadStrategy) OnInit() {
	s.InitSliceGenerator(1)
}

func (s *spreadStrategy) OnBars(slice map[string]*types.Bar) {
	s.slices = append(s.slices, slice)
}

func (s *spreadStrategy) OnTrade(trade *types.Trade) {
	s.posOnTrade = s.Pos[trade.VtSymbol()]
}

func newTestEngine(t *testing.T) (*Engine, *testGateway) {
	t.Helper()
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	gw := &testGateway{}
	e := NewEngine(event.NewEngine(time.Hour), st, map[string]gateway.Gateway{"TEST": gw}, notify.Nop{})
	e.RegisterClass("Spread", newSpreadStrategy)
	return e, gw
}

func addRunning(t *testing.T, e *Engine) *spreadStrategy {
	t.Helper()
	require.NoError(t, e.AddStrategy("Spread", "sp", []string{"rb2505.SHFE", "hc2505.SHFE"}, "TEST", nil))
	require.NoError(t, e.InitStrategy("sp"))
	require.NoError(t, e.StartStrategy("sp"))
	return e.strategies["sp"].(*spreadStrategy)
}

func feedContract(e *Engine, symbol string) {
	e.processContract(event.Event{Data: &types.Contract{
		Symbol: symbol, Exchange: types.ExchangeSHFE,
		Multiplier: 10, PriceTick: 1, MinVolume: 1, Gateway: "TEST",
	}})
}

func tickAt(symbol string, minute int, price float64) event.Event {
	return event.Event{Data: &types.Tick{
		Symbol: symbol, Exchange: types.ExchangeSHFE,
		Datetime:  time.Date(2025, 6, 4, 9, 30+minute, 1, 0, time.UTC),
		LastPrice: price,
	}}
}

func TestAddStrategyGuards(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.AddStrategy("Spread", "sp", []string{"rb2505.SHFE"}, "TEST", nil))

	assert.Error(t, e.AddStrategy("Spread", "sp", []string{"rb2505.SHFE"}, "TEST", nil))
	assert.Error(t, e.AddStrategy("Nope", "x", []string{"rb2505.SHFE"}, "TEST", nil))
	assert.Error(t, e.AddStrategy("Spread", "y", nil, "TEST", nil))
	assert.Error(t, e.AddStrategy("Spread", "z", []string{"rb2505"}, "TEST", nil))
}

func TestInitSubscribesEveryLeg(t *testing.T) {
	e, gw := newTestEngine(t)
	addRunning(t, e)
	require.Len(t, gw.subs, 2)
	assert.Equal(t, "rb2505", gw.subs[0].Symbol)
	assert.Equal(t, "hc2505", gw.subs[1].Symbol)
}

func TestAlignedSliceDispatch(t *testing.T) {
	e, _ := newTestEngine(t)
	s := addRunning(t, e)

	// both legs tick in minute 0; the minute rollover emits one slice
	e.processTick(tickAt("rb2505", 0, 3500))
	e.processTick(tickAt("hc2505", 0, 3300))
	e.processTick(tickAt("rb2505", 1, 3501))

	require.Len(t, s.slices, 1)
	slice := s.slices[0]
	require.Contains(t, slice, "rb2505.SHFE")
	require.Contains(t, slice, "hc2505.SHFE")
	assert.Equal(t, 3500.0, slice["rb2505.SHFE"].ClosePrice)
	assert.Equal(t, 3300.0, slice["hc2505.SHFE"].ClosePrice)
}

func TestOrderRoutingAndPos(t *testing.T) {
	e, gw := newTestEngine(t)
	feedContract(e, "rb2505")
	s := addRunning(t, e)

	ids := s.Buy("rb2505.SHFE", 3500.4, 2)
	require.Len(t, ids, 1)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, 3500.0, gw.requests[0].Price)
	assert.Equal(t, "portfolio_sp", gw.requests[0].Reference)

	e.processTrade(event.Event{Data: &types.Trade{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		OrderID: "1", TradeID: "t1",
		Direction: types.DirectionLong, Offset: types.OffsetOpen,
		Price: 3500, Volume: 2, Gateway: "TEST",
	}})
	assert.Equal(t, 2.0, s.Pos["rb2505.SHFE"])
	assert.Equal(t, 2.0, s.posOnTrade, "OnTrade sees the updated position")
}

func TestStatePersistsPerInstrument(t *testing.T) {
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	e := NewEngine(event.NewEngine(time.Hour), st, map[string]gateway.Gateway{"TEST": &testGateway{}}, notify.Nop{})
	e.RegisterClass("Spread", newSpreadStrategy)
	s := addRunning(t, e)
	s.Pos["rb2505.SHFE"] = 2
	s.SyncData()

	// rebuild on the same store and restore
	e2 := NewEngine(event.NewEngine(time.Hour), st, map[string]gateway.Gateway{"TEST": &testGateway{}}, notify.Nop{})
	e2.RegisterClass("Spread", newSpreadStrategy)
	e2.LoadStrategies()
	require.Contains(t, e2.strategies, "sp")
	require.NoError(t, e2.InitStrategy("sp"))
	assert.Equal(t, 2.0, e2.strategies["sp"].Base().Pos["rb2505.SHFE"])
}

func TestLoadBarsAligned(t *testing.T) {
	e, _ := newTestEngine(t)
	s := addRunning(t, e)

	t0 := time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC)
	bar := func(sym string, minute int, c float64) *types.Bar {
		return &types.Bar{
			Symbol: sym, Exchange: types.ExchangeSHFE,
			Datetime: t0.Add(time.Duration(minute) * time.Minute), ClosePrice: c,
			OpenPrice: c, HighPrice: c, LowPrice: c, Volume: 5,
		}
	}
	e.SetHistory(func(vt string, count int) []*types.Bar {
		if vt == "rb2505.SHFE" {
			return []*types.Bar{bar("rb2505", 0, 3500), bar("rb2505", 1, 3501), bar("rb2505", 2, 3502)}
		}
		return []*types.Bar{bar("hc2505", 0, 3300), bar("hc2505", 2, 3302)}
	})

	s.LoadBars(3)
	require.Len(t, s.slices, 3)

	// the second leg missed minute 1: its gap bar holds the previous
	// close with zero volume
	gap := s.slices[1]["hc2505.SHFE"]
	require.NotNil(t, gap)
	assert.Equal(t, 3300.0, gap.ClosePrice)
	assert.Zero(t, gap.Volume)
	assert.Equal(t, 3501.0, s.slices[1]["rb2505.SHFE"].ClosePrice)
}

func TestRemoveRefusedWhileTrading(t *testing.T) {
	e, _ := newTestEngine(t)
	addRunning(t, e)
	assert.Error(t, e.RemoveStrategy("sp"))
	require.NoError(t, e.StopStrategy("sp"))
	require.NoError(t, e.RemoveStrategy("sp"))
	assert.Empty(t, e.strategies)
}
