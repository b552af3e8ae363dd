// Package paper is a simulated counterparty: orders fill immediately at
// their limit price, contracts come from a yaml table, ids are uuids.
// It exists so the whole stack can run and be tested without a broker.
package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/logger"
	"ctacore/internal/market"
	"ctacore/internal/types"
)

const gatewayName = "PAPER"

type Gateway struct {
	gateway.Base

	contractPath string
	table        *contractTable

	mu            sync.Mutex
	subscriptions map[string]bool
	activeOrders  map[string]*types.Order // orderID -> order
	tradeSeq      int
}

// New builds a paper gateway reading its contract table from
// contractPath.
func New(events *event.Engine, contractPath string) *Gateway {
	return &Gateway{
		Base:          gateway.NewBase(gatewayName, events),
		contractPath:  contractPath,
		subscriptions: make(map[string]bool),
		activeOrders:  make(map[string]*types.Order),
	}
}

func (g *Gateway) Connect() error {
	table, err := newContractTable(g.contractPath, gatewayName, func(contracts []*types.Contract) {
		for _, c := range contracts {
			g.OnContract(c)
		}
	})
	if err != nil {
		return err
	}
	g.table = table

	if err := table.watch(gatewayName); err != nil {
		logger.Warnf("paper: contract hot reload unavailable: %v", err)
	}

	for _, c := range table.all() {
		g.OnContract(c)
	}
	logger.Infof("paper gateway connected")
	return nil
}

func (g *Gateway) Close() error {
	if g.table != nil {
		g.table.close()
	}
	return nil
}

func (g *Gateway) Subscribe(req types.SubscribeRequest) error {
	vt := req.VtSymbol()
	if _, ok := g.table.get(vt); !ok {
		return fmt.Errorf("paper: unknown contract %s", vt)
	}
	g.mu.Lock()
	g.subscriptions[vt] = true
	g.mu.Unlock()
	return nil
}

// SendOrder accepts the request and fills it in full at the limit price.
// Market orders fill at the limit-price field as well; the caller is
// expected to have substituted a realistic price already.
func (g *Gateway) SendOrder(req types.OrderRequest) string {
	if req.Volume <= 0 {
		logger.Warnf("paper: rejecting %s, volume %v", req.VtSymbol(), req.Volume)
		return ""
	}
	if _, ok := g.table.get(req.VtSymbol()); !ok {
		logger.Warnf("paper: rejecting %s, unknown contract", req.VtSymbol())
		return ""
	}

	orderID := uuid.NewString()
	order := req.CreateOrder(orderID, gatewayName)
	order.Datetime = time.Now()

	g.mu.Lock()
	g.activeOrders[orderID] = order
	g.tradeSeq++
	tradeID := fmt.Sprintf("%d", g.tradeSeq)
	g.mu.Unlock()

	// acknowledge, then fill
	ack := *order
	ack.Status = types.StatusNotTraded
	g.OnOrder(&ack)

	filled := *order
	filled.Status = types.StatusAllTraded
	filled.Traded = order.Volume
	g.OnOrder(&filled)

	g.mu.Lock()
	delete(g.activeOrders, orderID)
	g.mu.Unlock()

	g.OnTrade(&types.Trade{
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		OrderID:   orderID,
		TradeID:   tradeID,
		Direction: req.Direction,
		Offset:    req.Offset,
		Price:     req.Price,
		Volume:    req.Volume,
		Datetime:  time.Now(),
		Reference: req.Reference,
		Gateway:   gatewayName,
	})

	return order.VtOrderID()
}

func (g *Gateway) CancelOrder(req types.CancelRequest) error {
	g.mu.Lock()
	order, ok := g.activeOrders[req.OrderID]
	if ok {
		delete(g.activeOrders, req.OrderID)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("paper: order %s not active", req.OrderID)
	}
	cancelled := *order
	cancelled.Status = types.StatusCancelled
	g.OnOrder(&cancelled)
	return nil
}

// PushTick injects a market snapshot, e.g. from a replay driver. Ticks
// timestamped outside the instrument's trading sessions are dropped;
// ticks without a timestamp pass through.
func (g *Gateway) PushTick(tick *types.Tick) {
	vt := tick.VtSymbol()
	g.mu.Lock()
	subscribed := g.subscriptions[vt]
	g.mu.Unlock()
	if !subscribed {
		return
	}
	if !tick.Datetime.IsZero() &&
		!market.IsTradingTime(tick.Exchange, g.table.night(vt), tick.Datetime) {
		return
	}
	g.OnTick(tick)
}
