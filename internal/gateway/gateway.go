// Package gateway defines the broker abstraction. Concrete gateways push
// market and trading callbacks into the event engine; nothing above this
// layer talks to a broker directly.
package gateway

import (
	"ctacore/internal/event"
	"ctacore/internal/types"
)

// Gateway is the trading counterparty interface.
type Gateway interface {
	Name() string
	Connect() error
	Close() error

	Subscribe(req types.SubscribeRequest) error

	// SendOrder submits the request and returns the vt_orderid
	// ("gateway.orderid"), or "" when submission failed.
	SendOrder(req types.OrderRequest) string

	CancelOrder(req types.CancelRequest) error
}

// Base carries the event plumbing shared by gateway implementations.
type Base struct {
	name   string
	events *event.Engine
}

func NewBase(name string, events *event.Engine) Base {
	return Base{name: name, events: events}
}

func (b *Base) Name() string { return b.name }

func (b *Base) OnTick(tick *types.Tick)           { b.events.Put(event.Event{Type: event.TypeTick, Data: tick}) }
func (b *Base) OnBar(bar *types.Bar)              { b.events.Put(event.Event{Type: event.TypeBar, Data: bar}) }
func (b *Base) OnOrder(order *types.Order)        { b.events.Put(event.Event{Type: event.TypeOrder, Data: order}) }
func (b *Base) OnTrade(trade *types.Trade)        { b.events.Put(event.Event{Type: event.TypeTrade, Data: trade}) }
func (b *Base) OnContract(contract *types.Contract) {
	b.events.Put(event.Event{Type: event.TypeContract, Data: contract})
}
