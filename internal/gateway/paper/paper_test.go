package paper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/event"
	"ctacore/internal/market"
	"ctacore/internal/types"
)

const testContracts = `
contracts:
  - symbol: rb2505
    exchange: SHFE
    name: rebar 2505
    multiplier: 10
    price_tick: 1
    min_volume: 1
  - symbol: IF2412
    exchange: CFFEX
    name: index 2412
    multiplier: 300
    price_tick: 0.2
    stop_supported: true
  - symbol: bad
    exchange: NOPE
    multiplier: 1
    price_tick: 1
`

func newTestGateway(t *testing.T) (*Gateway, *event.Engine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testContracts), 0o644))

	events := event.NewEngine(time.Hour)
	events.Start()
	t.Cleanup(events.Stop)

	g := New(events, path)
	require.NoError(t, g.Connect())
	t.Cleanup(func() { _ = g.Close() })
	return g, events
}

func TestConnectLoadsContracts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testContracts), 0o644))

	events := event.NewEngine(time.Hour)
	contracts := make(chan *types.Contract, 8)
	events.Register(event.TypeContract, func(evt event.Event) {
		contracts <- evt.Data.(*types.Contract)
	})
	events.Start()
	defer events.Stop()

	g := New(events, path)
	require.NoError(t, g.Connect())
	defer g.Close()

	seen := map[string]*types.Contract{}
	for len(seen) < 2 {
		select {
		case c := <-contracts:
			seen[c.VtSymbol()] = c
		case <-time.After(time.Second):
			t.Fatalf("only %d contract events", len(seen))
		}
	}
	// the entry with an unknown venue is dropped
	require.Len(t, seen, 2)
	assert.Equal(t, 10.0, seen["rb2505.SHFE"].Multiplier)
	assert.True(t, seen["IF2412.CFFEX"].StopSupported)
	assert.Equal(t, 1.0, seen["rb2505.SHFE"].MinVolume, "min_volume defaults to 1")
}

func TestSendOrderFillsImmediately(t *testing.T) {
	g, events := newTestGateway(t)

	orders := make(chan *types.Order, 4)
	trades := make(chan *types.Trade, 4)
	events.Register(event.TypeOrder, func(evt event.Event) { orders <- evt.Data.(*types.Order) })
	events.Register(event.TypeTrade, func(evt event.Event) { trades <- evt.Data.(*types.Trade) })

	vtOrderID := g.SendOrder(types.OrderRequest{
		Symbol:    "rb2505",
		Exchange:  types.ExchangeSHFE,
		Direction: types.DirectionLong,
		Offset:    types.OffsetOpen,
		Type:      types.OrderTypeLimit,
		Price:     3500,
		Volume:    2,
		Reference: "demo",
	})
	require.NotEmpty(t, vtOrderID)

	first := <-orders
	assert.Equal(t, types.StatusNotTraded, first.Status)
	second := <-orders
	assert.Equal(t, types.StatusAllTraded, second.Status)
	assert.Equal(t, 2.0, second.Traded)

	trade := <-trades
	assert.Equal(t, 3500.0, trade.Price)
	assert.Equal(t, "demo", trade.Reference)
	assert.Equal(t, second.OrderID, trade.OrderID)
}

func TestSendOrderRejectsUnknownContract(t *testing.T) {
	g, _ := newTestGateway(t)
	id := g.SendOrder(types.OrderRequest{
		Symbol: "xx9999", Exchange: types.ExchangeSHFE,
		Direction: types.DirectionLong, Type: types.OrderTypeLimit,
		Price: 1, Volume: 1,
	})
	assert.Empty(t, id)
}

func TestCancelInactiveOrder(t *testing.T) {
	g, _ := newTestGateway(t)
	err := g.CancelOrder(types.CancelRequest{Symbol: "rb2505", Exchange: types.ExchangeSHFE, OrderID: "missing"})
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	g, events := newTestGateway(t)

	ticks := make(chan *types.Tick, 2)
	events.Register(event.TypeTick, func(evt event.Event) { ticks <- evt.Data.(*types.Tick) })

	require.Error(t, g.Subscribe(types.SubscribeRequest{Symbol: "xx9999", Exchange: types.ExchangeSHFE}))
	require.NoError(t, g.Subscribe(types.SubscribeRequest{Symbol: "rb2505", Exchange: types.ExchangeSHFE}))

	// unsubscribed symbols are dropped
	g.PushTick(&types.Tick{Symbol: "IF2412", Exchange: types.ExchangeCFFEX, LastPrice: 4000})
	g.PushTick(&types.Tick{Symbol: "rb2505", Exchange: types.ExchangeSHFE, LastPrice: 3500})

	tick := <-ticks
	assert.Equal(t, "rb2505.SHFE", tick.VtSymbol())
	select {
	case extra := <-ticks:
		t.Fatalf("unexpected tick %s", extra.VtSymbol())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContractCodesNormalized(t *testing.T) {
	const table = `
contracts:
  - symbol: RB2505
    exchange: SHFE
    multiplier: 10
    price_tick: 1
  - symbol: TA505
    exchange: CZCE
    multiplier: 5
    price_tick: 2
`
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))

	g := New(event.NewEngine(time.Hour), path)
	require.NoError(t, g.Connect())
	defer g.Close()

	// canonical codes become venue-native, native codes pass through
	c, ok := g.table.get("rb2505.SHFE")
	require.True(t, ok)
	assert.Equal(t, "rb2505", c.Symbol)
	_, ok = g.table.get("TA505.CZCE")
	assert.True(t, ok)
	_, ok = g.table.get("RB2505.SHFE")
	assert.False(t, ok)
}

func TestPushTickSessionGate(t *testing.T) {
	const table = `
contracts:
  - symbol: rb2505
    exchange: SHFE
    multiplier: 10
    price_tick: 1
    night: "23:00"
`
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))

	events := event.NewEngine(time.Hour)
	ticks := make(chan *types.Tick, 8)
	events.Register(event.TypeTick, func(evt event.Event) { ticks <- evt.Data.(*types.Tick) })
	events.Start()
	defer events.Stop()

	g := New(events, path)
	require.NoError(t, g.Connect())
	defer g.Close()
	require.NoError(t, g.Subscribe(types.SubscribeRequest{Symbol: "rb2505", Exchange: types.ExchangeSHFE}))

	push := func(last float64, hour, minute int) {
		g.PushTick(&types.Tick{
			Symbol: "rb2505", Exchange: types.ExchangeSHFE, LastPrice: last,
			Datetime: time.Date(2026, 3, 2, hour, minute, 0, 0, market.Beijing),
		})
	}

	push(3500, 12, 0) // lunch break, dropped
	push(3501, 10, 0) // morning session
	push(3502, 22, 0) // night session
	g.PushTick(&types.Tick{Symbol: "rb2505", Exchange: types.ExchangeSHFE, LastPrice: 3503})

	for _, want := range []float64{3501, 3502, 3503} {
		select {
		case tick := <-ticks:
			assert.Equal(t, want, tick.LastPrice)
		case <-time.After(time.Second):
			t.Fatalf("tick %v never delivered", want)
		}
	}
}
