package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/event"
	"ctacore/internal/market"
	"ctacore/internal/store/filestore"
	"ctacore/internal/types"
)

var testCommissions = CommissionTable{
	"RB": {OpenRate: 0.0001, CloseTodayRate: 0.0003, CloseFlat: 2},
}

func newTestEngine(t *testing.T, st *filestore.Store) *Engine {
	t.Helper()
	if st == nil {
		var err error
		st, err = filestore.New(t.TempDir())
		require.NoError(t, err)
	}
	events := event.NewEngine(time.Hour)
	e := NewEngine(events, st, testCommissions, 5)
	e.Register()
	return e
}

func feedContract(e *Engine, multiplier float64) {
	e.processContract(event.Event{Data: &types.Contract{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		Multiplier: multiplier, PriceTick: 1, MinVolume: 1, Gateway: "PAPER",
	}})
}

func feedTick(e *Engine, last, preClose float64) {
	e.processTick(event.Event{Data: &types.Tick{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		LastPrice: last, PreClose: preClose,
	}})
}

func feedTrade(e *Engine, tradeID string, dir types.Direction, offset types.Offset, price, volume float64) {
	e.processOrder(event.Event{Data: &types.Order{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		OrderID: "o-" + tradeID, Reference: "demo", Gateway: "PAPER",
	}})
	e.processTrade(event.Event{Data: &types.Trade{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		OrderID: "o-" + tradeID, TradeID: tradeID,
		Direction: dir, Offset: offset,
		Price: price, Volume: volume, Gateway: "PAPER",
	}})
}

func TestTradingPnl(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)

	// buy 1 lot at 3500, price rises 10 points, multiplier 10 => +100
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 1)
	feedTick(e, 3510, 3500)
	e.Recalculate()

	results := e.Results()
	require.Len(t, results, 1)
	assert.InDelta(t, 100.0, results[0].TradingPnl, 1e-9)
	assert.Equal(t, 1.0, results[0].LastPos)
}

func TestShortTradingPnl(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)

	feedTrade(e, "t1", types.DirectionShort, types.OffsetOpen, 3500, 2)
	feedTick(e, 3480, 3500)
	e.Recalculate()

	results := e.Results()
	require.Len(t, results, 1)
	// short 2 lots, 20 points in our favour, multiplier 10 => +400
	assert.InDelta(t, 400.0, results[0].TradingPnl, 1e-9)
	assert.Equal(t, -2.0, results[0].LastPos)
}

func TestHoldingPnl(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)

	key := resultKey{Reference: "demo", VtSymbol: "rb2505.SHFE", Gateway: "PAPER"}
	e.results[key] = NewContractResult("demo", "rb2505.SHFE", "PAPER", 3, 0)

	feedTick(e, 3520, 3500)
	e.Recalculate()

	// (3520-3500) x 3 lots x multiplier 10
	assert.InDelta(t, 600.0, e.results[key].HoldingPnl, 1e-9)
	assert.InDelta(t, 600.0, e.results[key].TotalPnl, 1e-9)
}

func TestPnlSkippedWithoutTick(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 1)

	e.Recalculate() // no tick yet, must not panic or move PnL
	assert.Zero(t, e.Results()[0].TradingPnl)
}

func TestTradeDedup(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)

	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 1)
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 1)

	results := e.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].LastPos, "replayed fill must not double-count")
}

func TestTradeWithoutOwnerIgnored(t *testing.T) {
	e := newTestEngine(t, nil)
	e.processTrade(event.Event{Data: &types.Trade{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		OrderID: "orphan", TradeID: "t9", Direction: types.DirectionLong,
		Price: 1, Volume: 1, Gateway: "PAPER",
	}})
	assert.Empty(t, e.Results())
}

func TestCommissionTiers(t *testing.T) {
	trade := func(offset types.Offset) *types.Trade {
		return &types.Trade{Symbol: "rb2505", Offset: offset, Price: 3500, Volume: 2}
	}

	// proportional: rate x price x volume x multiplier
	assert.InDelta(t, 7.0, testCommissions.Calculate(trade(types.OffsetOpen), 10), 1e-9)
	assert.InDelta(t, 21.0, testCommissions.Calculate(trade(types.OffsetCloseToday), 10), 1e-9)
	// flat per-lot fallback for the close tier
	assert.InDelta(t, 4.0, testCommissions.Calculate(trade(types.OffsetClose), 10), 1e-9)
	assert.InDelta(t, 4.0, testCommissions.Calculate(trade(types.OffsetCloseYesterday), 10), 1e-9)

	// unknown commodity is free
	unknown := &types.Trade{Symbol: "xx2505", Offset: types.OffsetOpen, Price: 100, Volume: 1}
	assert.Zero(t, testCommissions.Calculate(unknown, 10))
}

func TestPersistSameDay(t *testing.T) {
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2025, 6, 4, 10, 0, 0, 0, market.Beijing)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	e := newTestEngine(t, st)
	feedContract(e, 10)
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 2)
	e.Close()

	// reload within the same trading day
	e2 := newTestEngine(t, st)
	results := e2.Results()
	require.Len(t, results, 1)
	assert.Zero(t, results[0].OpenPos, "open_pos is kept, it was 0 at day start")
	assert.Positive(t, results[0].Commission, "commission carried within the day")

	// the order-owner map also survives the restart
	assert.Equal(t, "demo", e2.orderRefs["PAPER.o-t1"])
}

func TestPersistNewDayRollsPosition(t *testing.T) {
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	day1 := time.Date(2025, 6, 4, 10, 0, 0, 0, market.Beijing)
	nowFunc = func() time.Time { return day1 }
	defer func() { nowFunc = time.Now }()

	e := newTestEngine(t, st)
	feedContract(e, 10)
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 2)
	e.Close()

	// next trading day: last_pos becomes open_pos, commission resets
	nowFunc = func() time.Time { return day1.AddDate(0, 0, 1) }
	e2 := newTestEngine(t, st)
	results := e2.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 2.0, results[0].OpenPos)
	assert.Equal(t, 2.0, results[0].LastPos)
	assert.Zero(t, results[0].Commission)

	// stale order-owner map is discarded
	assert.Empty(t, e2.orderRefs)
}

func TestRemoveReference(t *testing.T) {
	e := newTestEngine(t, nil)
	feedContract(e, 10)
	feedTrade(e, "t1", types.DirectionLong, types.OffsetOpen, 3500, 1)
	require.Len(t, e.Results(), 1)

	e.RemoveReference("demo")
	assert.Empty(t, e.Results())
	assert.Empty(t, e.orderRefs)
}
