package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/logger"
	"ctacore/internal/notify"
	"ctacore/internal/store"
	"ctacore/internal/types"
)

const (
	appName    = "portfolio"
	settingKey = "portfolio_strategy_setting"
	dataKey    = "portfolio_strategy_data"
)

type strategySetting struct {
	ClassName string         `json:"class_name"`
	VtSymbols []string       `json:"vt_symbols"`
	Gateway   string         `json:"gateway"`
	Setting   map[string]any `json:"setting"`
}

// HistoryFunc supplies historical 1-minute bars for one instrument,
// oldest first. Optional; without it LoadBars is a no-op.
type HistoryFunc func(vtSymbol string, count int) []*types.Bar

// Engine runs multi-instrument strategies. It mirrors the
// single-instrument engine's lifecycle but dispatches every subscribed
// instrument's ticks to the strategy.
type Engine struct {
	events   *event.Engine
	store    store.Store
	notifier notify.Notifier
	gateways map[string]gateway.Gateway
	history  HistoryFunc

	classes    map[string]Factory
	strategies map[string]Strategy

	symbolStrategies map[string][]Strategy
	orderStrategies  map[string]Strategy
	strategyOrders   map[string]map[string]bool

	contracts map[string]*types.Contract
	orders    map[string]*types.Order
	tradeIDs  map[string]bool

	settings map[string]strategySetting
	data     map[string]map[string]any
}

func NewEngine(events *event.Engine, st store.Store, gateways map[string]gateway.Gateway, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		events:           events,
		store:            st,
		notifier:         notifier,
		gateways:         gateways,
		classes:          make(map[string]Factory),
		strategies:       make(map[string]Strategy),
		symbolStrategies: make(map[string][]Strategy),
		orderStrategies:  make(map[string]Strategy),
		strategyOrders:   make(map[string]map[string]bool),
		contracts:        make(map[string]*types.Contract),
		orders:           make(map[string]*types.Order),
		tradeIDs:         make(map[string]bool),
		settings:         make(map[string]strategySetting),
		data:             make(map[string]map[string]any),
	}
}

// RegisterClass makes a strategy class available to AddStrategy.
func (e *Engine) RegisterClass(className string, f Factory) {
	e.classes[className] = f
}

// SetHistory installs the bar history source used by LoadBars.
func (e *Engine) SetHistory(h HistoryFunc) { e.history = h }

// Start hooks the engine into the event loop.
func (e *Engine) Start() {
	e.events.Register(event.TypeTick, e.processTick)
	e.events.Register(event.TypeOrder, e.processOrder)
	e.events.Register(event.TypeTrade, e.processTrade)
	e.events.Register(event.TypeContract, e.processContract)
	logger.Infof("portfolio engine started, %d classes registered", len(e.classes))
}

// Close stops strategies and persists state.
func (e *Engine) Close() {
	e.StopAll()
	e.saveSettings()
	e.saveData()
}

// LoadStrategies restores strategies from the persisted setting blob.
// Classes must be registered first.
func (e *Engine) LoadStrategies() {
	var data map[string]map[string]any
	if _, err := e.store.LoadJSON(dataKey, &data); err != nil {
		logger.Errorf("portfolio: load data: %v", err)
	}
	if data != nil {
		e.data = data
	}

	var settings map[string]strategySetting
	ok, err := e.store.LoadJSON(settingKey, &settings)
	if err != nil {
		logger.Errorf("portfolio: load settings: %v", err)
		return
	}
	if !ok {
		return
	}
	for name, cfg := range settings {
		if err := e.AddStrategy(cfg.ClassName, name, cfg.VtSymbols, cfg.Gateway, cfg.Setting); err != nil {
			logger.Errorf("portfolio: restore strategy %s: %v", name, err)
		}
	}
	logger.Infof("portfolio: restored %d strategies", len(e.strategies))
}

// AddStrategy creates a strategy over a set of instruments.
func (e *Engine) AddStrategy(className, name string, vtSymbols []string, gatewayName string, setting map[string]any) error {
	if _, ok := e.strategies[name]; ok {
		err := fmt.Errorf("strategy %s already exists", name)
		logger.Errorf("portfolio: %v", err)
		return err
	}
	factory, ok := e.classes[className]
	if !ok {
		err := fmt.Errorf("unknown strategy class %s", className)
		logger.Errorf("portfolio: %v", err)
		return err
	}
	if len(vtSymbols) == 0 {
		err := fmt.Errorf("strategy %s has no instruments", name)
		logger.Errorf("portfolio: %v", err)
		return err
	}
	for _, vt := range vtSymbols {
		_, exch, err := types.ExtractVtSymbol(vt)
		if err != nil {
			logger.Errorf("portfolio: add %s: %v", name, err)
			return err
		}
		if !types.ValidExchange(exch) {
			err := fmt.Errorf("unknown venue %q in %s", exch, vt)
			logger.Errorf("portfolio: add %s: %v", name, err)
			return err
		}
	}

	s := factory(e, name, vtSymbols, gatewayName)
	if err := s.Base().UpdateSetting(setting); err != nil {
		logger.Errorf("portfolio: add %s: %v", name, err)
		return err
	}

	e.strategies[name] = s
	for _, vt := range vtSymbols {
		e.symbolStrategies[vt] = append(e.symbolStrategies[vt], s)
	}
	e.strategyOrders[name] = make(map[string]bool)

	e.settings[name] = strategySetting{
		ClassName: className,
		VtSymbols: vtSymbols,
		Gateway:   gatewayName,
		Setting:   setting,
	}
	e.saveSettings()
	return nil
}

// InitStrategy runs OnInit, restores state and subscribes every leg.
func (e *Engine) InitStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if b.inited {
		logger.Warnf("portfolio: %s already inited", name)
		return nil
	}

	gw, ok := e.gateways[b.gateway]
	if !ok {
		err := fmt.Errorf("gateway %s not connected", b.gateway)
		logger.Errorf("portfolio: init %s: %v", name, err)
		return err
	}

	if !e.callStrategyFunc(s, s.OnInit, "OnInit") {
		return fmt.Errorf("strategy %s OnInit failed", name)
	}

	if data, ok := e.data[name]; ok {
		if err := b.LoadState(data); err != nil {
			logger.Errorf("portfolio: %s restore state: %v", name, err)
		}
	}

	for _, vt := range b.vtSymbols {
		sym, exch, _ := types.ExtractVtSymbol(vt)
		if err := gw.Subscribe(types.SubscribeRequest{Symbol: sym, Exchange: exch}); err != nil {
			logger.Errorf("portfolio: %s subscribe %s: %v", name, vt, err)
		}
	}

	b.inited = true
	e.writeLog(fmt.Sprintf("[%s] init done", name))
	return nil
}

// StartStrategy turns trading on.
func (e *Engine) StartStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if !b.inited {
		err := fmt.Errorf("strategy %s not inited", name)
		logger.Errorf("portfolio: %v", err)
		return err
	}
	if b.trading {
		return nil
	}
	if !e.callStrategyFunc(s, s.OnStart, "OnStart") {
		return fmt.Errorf("strategy %s OnStart failed", name)
	}
	b.trading = true
	return nil
}

// StopStrategy turns trading off and cancels outstanding orders.
func (e *Engine) StopStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if !b.trading {
		return nil
	}
	e.callStrategyFunc(s, s.OnStop, "OnStop")
	b.trading = false
	e.cancelAll(s)
	e.syncStrategyData(s)
	return nil
}

// RemoveStrategy deletes a stopped strategy.
func (e *Engine) RemoveStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if b.trading {
		err := fmt.Errorf("cannot remove %s while trading", name)
		logger.Errorf("portfolio: %v", err)
		return err
	}

	delete(e.settings, name)
	e.saveSettings()
	delete(e.data, name)
	e.saveData()

	for _, vt := range b.vtSymbols {
		kept := e.symbolStrategies[vt][:0]
		for _, other := range e.symbolStrategies[vt] {
			if other != s {
				kept = append(kept, other)
			}
		}
		e.symbolStrategies[vt] = kept
	}
	for id := range e.strategyOrders[name] {
		delete(e.orderStrategies, id)
	}
	delete(e.strategyOrders, name)
	delete(e.strategies, name)
	return nil
}

// InitAll / StartAll / StopAll apply the operation to every strategy.
func (e *Engine) InitAll() {
	for name := range e.strategies {
		if err := e.InitStrategy(name); err != nil {
			logger.Errorf("portfolio: init %s: %v", name, err)
		}
	}
}

func (e *Engine) StartAll() {
	for name := range e.strategies {
		if err := e.StartStrategy(name); err != nil {
			logger.Errorf("portfolio: start %s: %v", name, err)
		}
	}
}

func (e *Engine) StopAll() {
	for name := range e.strategies {
		if err := e.StopStrategy(name); err != nil {
			logger.Errorf("portfolio: stop %s: %v", name, err)
		}
	}
}

func (e *Engine) processTick(evt event.Event) {
	tick := evt.Data.(*types.Tick)
	for _, s := range e.symbolStrategies[tick.VtSymbol()] {
		if s.Base().inited {
			e.callStrategyFunc(s, func() { s.OnTick(tick) }, "OnTick")
		}
	}
}

func (e *Engine) processContract(evt event.Event) {
	c := evt.Data.(*types.Contract)
	e.contracts[c.VtSymbol()] = c
}

func (e *Engine) processOrder(evt event.Event) {
	order := evt.Data.(*types.Order)
	vtOrderID := order.VtOrderID()
	e.orders[vtOrderID] = order

	s, ok := e.orderStrategies[vtOrderID]
	if !ok {
		return
	}
	if !order.IsActive() {
		delete(e.strategyOrders[s.Base().name], vtOrderID)
	}
	e.callStrategyFunc(s, func() { s.OnOrder(order) }, "OnOrder")
}

func (e *Engine) processTrade(evt event.Event) {
	trade := evt.Data.(*types.Trade)
	if e.tradeIDs[trade.VtTradeID()] {
		return
	}
	e.tradeIDs[trade.VtTradeID()] = true

	s, ok := e.orderStrategies[trade.VtOrderID()]
	if !ok {
		return
	}
	b := s.Base()

	if trade.Direction == types.DirectionLong {
		b.Pos[trade.VtSymbol()] += trade.Volume
	} else {
		b.Pos[trade.VtSymbol()] -= trade.Volume
	}

	e.callStrategyFunc(s, func() { s.OnTrade(trade) }, "OnTrade")
	e.syncStrategyData(s)
}

func (e *Engine) sendOrder(s Strategy, vtSymbol string, direction types.Direction, offset types.Offset, price, volume float64) []string {
	b := s.Base()

	contract, ok := e.contracts[vtSymbol]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] send order failed, contract %s not found", b.name, vtSymbol))
		return nil
	}
	gw, ok := e.gateways[b.gateway]
	if !ok {
		e.writeLog(fmt.Sprintf("[%s] send order failed, gateway %s not connected", b.name, b.gateway))
		return nil
	}

	price = roundTo(price, contract.PriceTick)
	volume = roundTo(volume, contract.MinVolume)
	if volume <= 0 {
		return nil
	}

	vtOrderID := gw.SendOrder(types.OrderRequest{
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Direction: direction,
		Offset:    offset,
		Type:      types.OrderTypeLimit,
		Price:     price,
		Volume:    volume,
		Reference: appName + "_" + b.name,
	})
	if vtOrderID == "" {
		return nil
	}
	e.orderStrategies[vtOrderID] = s
	e.strategyOrders[b.name][vtOrderID] = true
	return []string{vtOrderID}
}

func (e *Engine) cancelAll(s Strategy) {
	name := s.Base().name
	for id := range e.strategyOrders[name] {
		order, ok := e.orders[id]
		if !ok {
			continue
		}
		gw, ok := e.gateways[order.Gateway]
		if !ok {
			continue
		}
		if err := gw.CancelOrder(order.CancelRequest()); err != nil {
			logger.Errorf("portfolio: cancel %s: %v", id, err)
		}
	}
}

// loadBars replays aligned history into the strategy's OnBars.
func (e *Engine) loadBars(s Strategy, count int) {
	if e.history == nil {
		return
	}
	histories := make(map[string][]*types.Bar)
	for _, vt := range s.Base().vtSymbols {
		histories[vt] = e.history(vt, count)
	}
	for _, slice := range AlignBars(histories) {
		s.OnBars(slice)
	}
}

func (e *Engine) callStrategyFunc(s Strategy, fn func(), what string) (ok bool) {
	b := s.Base()
	defer func() {
		if r := recover(); r != nil {
			b.trading = false
			b.inited = false
			msg := fmt.Sprintf("strategy %s panic in %s: %v", b.name, what, r)
			logger.Errorf("portfolio: %s", msg)
			if err := e.notifier.SendText(msg); err != nil {
				logger.Errorf("portfolio: notify: %v", err)
			}
			ok = false
		}
	}()
	fn()
	return true
}

func (e *Engine) syncStrategyData(s Strategy) {
	e.data[s.Base().name] = s.Base().StateMap()
	e.saveData()
}

func (e *Engine) writeLog(msg string) {
	logger.Infof("portfolio: %s", msg)
	e.events.Put(event.Event{Type: event.TypeLog, Data: &types.Log{
		Message: msg,
		Source:  appName,
		Time:    time.Now(),
	}})
}

func (e *Engine) saveSettings() {
	if err := e.store.SaveJSON(settingKey, e.settings); err != nil {
		logger.Errorf("portfolio: save settings: %v", err)
	}
}

func (e *Engine) saveData() {
	if err := e.store.SaveJSON(dataKey, e.data); err != nil {
		logger.Errorf("portfolio: save data: %v", err)
	}
}

// roundTo snaps value to the nearest multiple of target.
func roundTo(value, target float64) float64 {
	if target <= 0 {
		return value
	}
	t := decimal.NewFromFloat(target)
	out, _ := decimal.NewFromFloat(value).Div(t).Round(0).Mul(t).Float64()
	return out
}
