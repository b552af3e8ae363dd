package strategies

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/cta"
	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/notify"
	"ctacore/internal/store/filestore"
	"ctacore/internal/types"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []types.OrderRequest
	nextID   int
}

func (g *fakeGateway) Name() string                           { return "TEST" }
func (g *fakeGateway) Connect() error                         { return nil }
func (g *fakeGateway) Close() error                           { return nil }
func (g *fakeGateway) Subscribe(types.SubscribeRequest) error { return nil }
func (g *fakeGateway) CancelOrder(types.CancelRequest) error  { return nil }

func (g *fakeGateway) SendOrder(req types.OrderRequest) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.requests = append(g.requests, req)
	return fmt.Sprintf("TEST.%d", g.nextID)
}

func (g *fakeGateway) snapshot() []types.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.OrderRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

func TestDoubleMaCrossoverBuys(t *testing.T) {
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	events := event.NewEngine(time.Hour)
	events.Start()
	defer events.Stop()

	gw := &fakeGateway{}
	e := cta.NewEngine(events, st, map[string]gateway.Gateway{"TEST": gw}, notify.Nop{}, nil)
	Register(e)
	e.Start()

	inited := make(chan struct{}, 1)
	events.Register(event.TypeCtaStrategy, func(evt event.Event) {
		if d := evt.Data.(*cta.StrategyData); d.Inited && !d.Trading {
			select {
			case inited <- struct{}{}:
			default:
			}
		}
	})

	events.Put(event.Event{Type: event.TypeContract, Data: &types.Contract{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		Multiplier: 10, PriceTick: 1, MinVolume: 1, Gateway: "TEST",
	}})

	require.NoError(t, e.AddStrategy("DoubleMa", "dm", "rb2505.SHFE", "TEST", map[string]any{
		"fast_window": 2, "slow_window": 3, "volume": 1.0, "period": "1m",
	}))
	require.NoError(t, e.InitStrategy("dm"))
	select {
	case <-inited:
	case <-time.After(time.Second):
		t.Fatal("strategy never initialised")
	}
	require.NoError(t, e.StartStrategy("dm"))

	// five bars to warm the window, then a jump that crosses the fast
	// average over the slow one
	start := time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC)
	for i, c := range []float64{10, 10, 10, 9, 8, 12} {
		events.Put(event.Event{Type: event.TypeBar, Data: &types.Bar{
			Symbol: "rb2505", Exchange: types.ExchangeSHFE,
			Datetime:  start.Add(time.Duration(i) * time.Minute),
			OpenPrice: c, HighPrice: c, LowPrice: c, ClosePrice: c,
		}})
	}

	require.Eventually(t, func() bool {
		return len(gw.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	req := gw.snapshot()[0]
	assert.Equal(t, types.DirectionLong, req.Direction)
	assert.Equal(t, types.OffsetOpen, req.Offset)
	assert.Equal(t, 12.0, req.Price)
	assert.Equal(t, 1.0, req.Volume)
	assert.Equal(t, "cta_dm", req.Reference)
}

func TestDoubleMaParamsValidate(t *testing.T) {
	p := &DoubleMaParams{FastWindow: 10, SlowWindow: 20, Volume: 1, Period: "5m"}
	assert.NoError(t, p.Validate())

	bad := *p
	bad.FastWindow = 20
	assert.Error(t, bad.Validate(), "fast must stay below slow")

	bad = *p
	bad.Period = "5x"
	assert.Error(t, bad.Validate())

	bad = *p
	bad.Volume = 0
	assert.Error(t, bad.Validate())
}

func TestMacdParamsValidate(t *testing.T) {
	p := &MacdParams{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9, Volume: 1, Period: "15m", StopPercent: 0.02}
	assert.NoError(t, p.Validate())

	bad := *p
	bad.StopPercent = 1.5
	assert.Error(t, bad.Validate())

	bad = *p
	bad.SignalPeriod = 0
	assert.Error(t, bad.Validate())
}

func TestRegisterInstallsClasses(t *testing.T) {
	st, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	e := cta.NewEngine(event.NewEngine(time.Hour), st, nil, notify.Nop{}, nil)
	Register(e)
	assert.Equal(t, []string{"DoubleMa", "Macd"}, e.ClassNames())
}
