package cta

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ctacore/internal/event"
	"ctacore/internal/logger"
	"ctacore/internal/types"
)

// roundTo snaps value to the nearest multiple of target. Contracts
// quote prices in ticks and volumes in lots; anything else is rejected
// by the venue.
func roundTo(value, target float64) float64 {
	if target <= 0 {
		return value
	}
	t := decimal.NewFromFloat(target)
	out, _ := decimal.NewFromFloat(value).Div(t).Round(0).Mul(t).Float64()
	return out
}

// sendOrder is the single entry point for strategy orders. It
// normalises price and volume against the contract, then picks the
// path: server stop, local stop or plain limit.
func (e *Engine) sendOrder(s Strategy, direction types.Direction, offset types.Offset, price, volume float64, stop, lock, net bool) []string {
	b := s.Base()

	contract, ok := e.contracts[b.vtSymbol]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] send order failed, contract %s not found", b.name, b.vtSymbol))
		return nil
	}

	price = roundTo(price, contract.PriceTick)
	volume = roundTo(volume, contract.MinVolume)
	if volume <= 0 {
		e.writeLog(fmt.Sprintf("[%s] send order failed, volume rounds to zero", b.name))
		return nil
	}

	if stop {
		if contract.StopSupported {
			return e.sendServerStopOrder(s, contract, direction, offset, price, volume, lock, net)
		}
		return []string{e.sendLocalStopOrder(s, direction, offset, price, volume, lock, net)}
	}
	return e.sendLimitOrder(s, contract, direction, offset, price, volume, lock, net)
}

func (e *Engine) sendLimitOrder(s Strategy, contract *types.Contract, direction types.Direction, offset types.Offset, price, volume float64, lock, net bool) []string {
	return e.sendRequests(s, contract, types.OrderTypeLimit, direction, offset, price, volume, lock, net)
}

func (e *Engine) sendServerStopOrder(s Strategy, contract *types.Contract, direction types.Direction, offset types.Offset, price, volume float64, lock, net bool) []string {
	return e.sendRequests(s, contract, types.OrderTypeStop, direction, offset, price, volume, lock, net)
}

// sendRequests converts one logical order into gateway requests (offset
// conversion may split it) and submits them, indexing every resulting
// order id back to the strategy.
func (e *Engine) sendRequests(s Strategy, contract *types.Contract, orderType types.OrderType, direction types.Direction, offset types.Offset, price, volume float64, lock, net bool) []string {
	b := s.Base()
	gw, ok := e.gateways[b.gateway]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] send order failed, gateway %s not connected", b.name, b.gateway))
		return nil
	}

	req := types.OrderRequest{
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Direction: direction,
		Offset:    offset,
		Type:      orderType,
		Price:     price,
		Volume:    volume,
		Reference: reference(b.name),
	}

	var ids []string
	for _, converted := range e.convertRequest(req, lock, net) {
		vtOrderID := gw.SendOrder(converted)
		if vtOrderID == "" {
			e.writeLog(fmt.Sprintf("[%s] gateway rejected %s %s %v@%v", b.name, converted.Direction, converted.Offset, converted.Volume, converted.Price))
			continue
		}
		e.orderStrategies[vtOrderID] = s
		e.strategyOrders[b.name][vtOrderID] = true
		// cache the submitted order right away so it can be cancelled
		// before the first gateway ack arrives
		orderID := strings.TrimPrefix(vtOrderID, gw.Name()+".")
		e.orders[vtOrderID] = converted.CreateOrder(orderID, gw.Name())
		ids = append(ids, vtOrderID)
	}
	return ids
}

// convertRequest applies position-offset conversion. Lock mode is
// explicit; venues that charge today and yesterday legs differently get
// the net split even when the caller asked for a plain close.
func (e *Engine) convertRequest(req types.OrderRequest, lock, net bool) []types.OrderRequest {
	h := e.holding(req.VtSymbol())
	switch {
	case lock:
		return h.convertLock(req)
	case net || netVenues[req.Exchange]:
		return h.convertNet(req)
	default:
		return []types.OrderRequest{req}
	}
}

// sendLocalStopOrder books a stop order in the local book. It produces
// no gateway traffic until a tick crosses the trigger.
func (e *Engine) sendLocalStopOrder(s Strategy, direction types.Direction, offset types.Offset, price, volume float64, lock, net bool) string {
	b := s.Base()
	e.stopOrderCount++
	stopOrderID := fmt.Sprintf("%s.%d", StopOrderPrefix, e.stopOrderCount)

	so := &StopOrder{
		VtSymbol:     b.vtSymbol,
		Direction:    direction,
		Offset:       offset,
		Price:        price,
		Volume:       volume,
		StopOrderID:  stopOrderID,
		StrategyName: b.name,
		Datetime:     time.Now(),
		Gateway:      b.gateway,
		Lock:         lock,
		Net:          net,
		Status:       StopOrderWaiting,
	}
	e.stopOrders[stopOrderID] = so
	e.strategyOrders[b.name][stopOrderID] = true

	e.callStrategyFunc(s, func() { s.OnStopOrder(so) }, "OnStopOrder")
	e.putStopOrderEvent(so)
	return stopOrderID
}

// checkStopOrders scans the local stop book against a fresh tick. Runs
// before strategy OnTick so a trigger and the tick that caused it are
// observed in that order.
func (e *Engine) checkStopOrders(tick *types.Tick) {
	vt := tick.VtSymbol()
	for _, so := range e.stopOrders {
		if so.VtSymbol != vt {
			continue
		}

		longTriggered := so.Direction == types.DirectionLong && tick.LastPrice >= so.Price
		shortTriggered := so.Direction == types.DirectionShort && tick.LastPrice <= so.Price
		if !longTriggered && !shortTriggered {
			continue
		}

		s, ok := e.strategies[so.StrategyName]
		if !ok {
			delete(e.stopOrders, so.StopOrderID)
			continue
		}
		// a stopped strategy keeps its stop orders waiting
		if !s.Base().trading {
			continue
		}

		// cross the book aggressively so the fill is certain: the price
		// limit if the venue publishes one, else deep in the ladder
		var price float64
		if longTriggered {
			price = tick.LimitUp
			if price <= 0 {
				price = tick.AskPrice5
			}
		} else {
			price = tick.LimitDown
			if price <= 0 {
				price = tick.BidPrice5
			}
		}
		if price <= 0 {
			price = tick.LastPrice
		}

		contract, ok := e.contracts[vt]
		if !ok {
			continue
		}

		delete(e.stopOrders, so.StopOrderID)
		delete(e.strategyOrders[so.StrategyName], so.StopOrderID)

		ids := e.sendLimitOrder(s, contract, so.Direction, so.Offset, price, so.Volume, so.Lock, so.Net)
		so.Status = StopOrderTriggered
		so.VtOrderIDs = ids

		e.callStrategyFunc(s, func() { s.OnStopOrder(so) }, "OnStopOrder")
		e.putStopOrderEvent(so)
		e.writeLog(fmt.Sprintf("[%s] stop order %s triggered at %v", so.StrategyName, so.StopOrderID, tick.LastPrice))
	}
}

// cancelOrder routes a cancel by id shape: local stop ids never reach
// the gateway.
func (e *Engine) cancelOrder(s Strategy, vtOrderID string) {
	if strings.HasPrefix(vtOrderID, StopOrderPrefix) {
		e.cancelLocalStopOrder(s, vtOrderID)
		return
	}

	order, ok := e.orders[vtOrderID]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] cancel failed, order %s not found", s.Base().Name(), vtOrderID))
		return
	}
	gw, ok := e.gateways[order.Gateway]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] cancel failed, gateway %s not connected", s.Base().Name(), order.Gateway))
		return
	}
	if err := gw.CancelOrder(order.CancelRequest()); err != nil {
		logger.Errorf("cta: cancel %s: %v", vtOrderID, err)
	}
}

func (e *Engine) cancelLocalStopOrder(s Strategy, stopOrderID string) {
	so, ok := e.stopOrders[stopOrderID]
	if !ok {
		return
	}
	delete(e.stopOrders, stopOrderID)
	delete(e.strategyOrders[so.StrategyName], stopOrderID)

	so.Status = StopOrderCancelled
	e.callStrategyFunc(s, func() { s.OnStopOrder(so) }, "OnStopOrder")
	e.putStopOrderEvent(so)
}

// cancelAll cancels every outstanding order and stop order of one
// strategy.
func (e *Engine) cancelAll(s Strategy) {
	name := s.Base().Name()
	ids := make([]string, 0, len(e.strategyOrders[name]))
	for id := range e.strategyOrders[name] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		e.cancelOrder(s, id)
	}
}

func (e *Engine) putStopOrderEvent(so *StopOrder) {
	cp := *so
	e.events.Put(event.Event{Type: event.TypeCtaStopOrder, Data: &cp})
}
