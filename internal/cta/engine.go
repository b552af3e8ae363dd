package cta

import (
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/ledger"
	"ctacore/internal/logger"
	"ctacore/internal/market"
	"ctacore/internal/notify"
	"ctacore/internal/pkg/symbol"
	"ctacore/internal/store"
	"ctacore/internal/types"
)

const (
	settingKey = "cta_strategy_setting"
	dataKey    = "cta_strategy_data"
	holdingKey = "cta_holding_data"
)

// strategySetting is one row of the persisted strategy configuration.
type strategySetting struct {
	ClassName string         `json:"class_name"`
	VtSymbol  string         `json:"vt_symbol"`
	Gateway   string         `json:"gateway"`
	Setting   map[string]any `json:"setting"`
}

// Engine owns every strategy instance and routes market and trading
// events to them. All shared state is mutated on the event loop. The
// init worker only runs the blocking OnInit callback; everything else
// about initialization happens in the completion handler back on the
// loop.
type Engine struct {
	events   *event.Engine
	store    store.Store
	notifier notify.Notifier
	gateways map[string]gateway.Gateway
	ledger   *ledger.Engine

	classes    map[string]Factory
	strategies map[string]Strategy

	symbolStrategies map[string][]Strategy
	orderStrategies  map[string]Strategy
	strategyOrders   map[string]map[string]bool

	stopOrders     map[string]*StopOrder
	stopOrderCount int

	ticks     map[string]*types.Tick
	contracts map[string]*types.Contract
	orders    map[string]*types.Order
	tradeIDs  map[string]bool
	holdings  map[string]*holding

	hotContracts map[string]string // commodity -> hot vt_symbol

	settings map[string]strategySetting
	data     map[string]map[string]any

	cutoverHour int
	tradingDate string
	now         func() time.Time

	initCh chan Strategy
	stopCh chan struct{}
}

// initResult carries the outcome of the worker half of init back onto
// the loop, which owns the remaining state changes.
type initResult struct {
	strategy Strategy
	ok       bool
	reason   string
}

// NewEngine wires the strategy engine. The ledger may be nil when PnL
// tracking is disabled.
func NewEngine(events *event.Engine, st store.Store, gateways map[string]gateway.Gateway, notifier notify.Notifier, led *ledger.Engine) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	now := time.Now
	return &Engine{
		events:           events,
		store:            st,
		notifier:         notifier,
		gateways:         gateways,
		ledger:           led,
		classes:          make(map[string]Factory),
		strategies:       make(map[string]Strategy),
		symbolStrategies: make(map[string][]Strategy),
		orderStrategies:  make(map[string]Strategy),
		strategyOrders:   make(map[string]map[string]bool),
		stopOrders:       make(map[string]*StopOrder),
		ticks:            make(map[string]*types.Tick),
		contracts:        make(map[string]*types.Contract),
		orders:           make(map[string]*types.Order),
		tradeIDs:         make(map[string]bool),
		holdings:         make(map[string]*holding),
		hotContracts:     make(map[string]string),
		settings:         make(map[string]strategySetting),
		data:             make(map[string]map[string]any),
		cutoverHour:      defaultCutoverHour,
		tradingDate:      market.TradingDateAt(now(), defaultCutoverHour),
		now:              now,
		initCh:           make(chan Strategy, 64),
		stopCh:           make(chan struct{}),
	}
}

const defaultCutoverHour = 20

// SetCutoverHour changes the evening hour at which the trading date
// rolls over, before Start.
func (e *Engine) SetCutoverHour(hour int) {
	if hour <= 0 || hour > 23 {
		return
	}
	e.cutoverHour = hour
	e.tradingDate = market.TradingDateAt(e.now(), hour)
}

// RegisterClass makes a strategy class available to AddStrategy.
func (e *Engine) RegisterClass(className string, f Factory) {
	e.classes[className] = f
}

// ClassNames lists the registered strategy classes, sorted.
func (e *Engine) ClassNames() []string {
	names := make([]string, 0, len(e.classes))
	for name := range e.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetHotContracts installs the commodity to hot-contract mapping used
// to flag strategies that need a rollover.
func (e *Engine) SetHotContracts(hot map[string]string) {
	for commodity, vt := range hot {
		e.hotContracts[symbol.ExtractCommodity(commodity)] = vt
	}
}

// Start hooks the engine into the event loop and spawns the init worker.
func (e *Engine) Start() {
	e.events.Register(event.TypeTick, e.processTick)
	e.events.Register(event.TypeBar, e.processBar)
	e.events.Register(event.TypeOrder, e.processOrder)
	e.events.Register(event.TypeTrade, e.processTrade)
	e.events.Register(event.TypeContract, e.processContract)
	e.events.Register(event.TypeCtaInit, e.processInit)
	e.events.Register(event.TypeTimer, e.processTimer)
	go e.runInitWorker()
	logger.Infof("cta engine started, %d classes registered", len(e.classes))
}

// Close stops everything and persists settings and state.
func (e *Engine) Close() {
	e.StopAll()
	close(e.stopCh)
	e.saveSettings()
	e.saveData()
	e.saveHoldings()
}

// LoadStrategies restores strategies from the persisted setting blob.
// Classes must be registered first.
func (e *Engine) LoadStrategies() {
	var data map[string]map[string]any
	if _, err := e.store.LoadJSON(dataKey, &data); err != nil {
		logger.Errorf("cta: load data: %v", err)
	}
	if data != nil {
		e.data = data
	}

	e.loadHoldings()

	var settings map[string]strategySetting
	ok, err := e.store.LoadJSON(settingKey, &settings)
	if err != nil {
		logger.Errorf("cta: load settings: %v", err)
		return
	}
	if !ok {
		return
	}

	for name, cfg := range settings {
		if err := e.AddStrategy(cfg.ClassName, name, cfg.VtSymbol, cfg.Gateway, cfg.Setting); err != nil {
			logger.Errorf("cta: restore strategy %s: %v", name, err)
		}
	}
	logger.Infof("cta: restored %d strategies", len(e.strategies))
}

// AddStrategy creates a strategy instance and persists its setting.
func (e *Engine) AddStrategy(className, name, vtSymbol, gatewayName string, setting map[string]any) error {
	if _, ok := e.strategies[name]; ok {
		err := fmt.Errorf("strategy %s already exists", name)
		logger.Errorf("cta: %v", err)
		return err
	}

	factory, ok := e.classes[className]
	if !ok {
		err := fmt.Errorf("unknown strategy class %s", className)
		logger.Errorf("cta: %v", err)
		return err
	}

	_, exch, err := types.ExtractVtSymbol(vtSymbol)
	if err != nil {
		logger.Errorf("cta: add %s: %v", name, err)
		return err
	}
	if !types.ValidExchange(exch) {
		err := fmt.Errorf("unknown venue %q in %s", exch, vtSymbol)
		logger.Errorf("cta: add %s: %v", name, err)
		return err
	}

	s := factory(e, name, vtSymbol, gatewayName)
	if err := s.Base().UpdateSetting(setting); err != nil {
		logger.Errorf("cta: add %s: %v", name, err)
		return err
	}

	e.strategies[name] = s
	e.symbolStrategies[vtSymbol] = append(e.symbolStrategies[vtSymbol], s)
	e.strategyOrders[name] = make(map[string]bool)

	e.settings[name] = strategySetting{
		ClassName: className,
		VtSymbol:  vtSymbol,
		Gateway:   gatewayName,
		Setting:   setting,
	}
	e.saveSettings()
	e.putStrategyEvent(s)
	return nil
}

// InitStrategy queues the strategy for the init worker. Init work (bar
// preloading, state restore) can be slow, so it never runs on the loop.
func (e *Engine) InitStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	if s.Base().inited {
		logger.Warnf("cta: %s already inited", name)
		return nil
	}
	select {
	case e.initCh <- s:
		return nil
	default:
		return fmt.Errorf("init queue full, retry later")
	}
}

func (e *Engine) runInitWorker() {
	for {
		select {
		case s := <-e.initCh:
			e.events.Put(event.Event{Type: event.TypeCtaInit, Data: e.prepareInit(s)})
		case <-e.stopCh:
			return
		}
	}
}

// prepareInit is the worker half of init. It must stay off loop-owned
// state: the gateway map is immutable after construction, and OnInit
// only touches the strategy's own fields, which the loop ignores until
// the completion event flips inited.
func (e *Engine) prepareInit(s Strategy) *initResult {
	b := s.Base()
	if _, ok := e.gateways[b.gateway]; !ok {
		return &initResult{strategy: s, reason: fmt.Sprintf("gateway %s not connected", b.gateway)}
	}
	if !e.safeOnInit(s) {
		return &initResult{strategy: s, reason: "panic in OnInit"}
	}
	return &initResult{strategy: s, ok: true}
}

func (e *Engine) safeOnInit(s Strategy) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("cta: strategy %s panic in OnInit: %v", s.Base().name, r)
			debug.PrintStack()
			ok = false
		}
	}()
	s.OnInit()
	return true
}

func (e *Engine) processInit(evt event.Event) {
	e.finishInit(evt.Data.(*initResult))
}

// finishInit is the loop half of init: state restore, subscription and
// the inited flip all happen here.
func (e *Engine) finishInit(r *initResult) {
	s := r.strategy
	b := s.Base()
	if b.inited {
		logger.Warnf("cta: %s already inited", b.name)
		return
	}
	if !r.ok {
		e.initFailed(s, r.reason)
		return
	}

	gw := e.gateways[b.gateway]

	if data, ok := e.data[b.name]; ok {
		if err := b.LoadState(data); err != nil {
			logger.Errorf("cta: %s restore state: %v", b.name, err)
		}
	}

	sym, exch, _ := types.ExtractVtSymbol(b.vtSymbol)
	if err := gw.Subscribe(types.SubscribeRequest{Symbol: sym, Exchange: exch}); err != nil {
		e.initFailed(s, fmt.Sprintf("subscribe %s failed: %v", b.vtSymbol, err))
		return
	}

	if b.Hot == "" {
		if hot, ok := e.hotContracts[symbol.ExtractCommodity(sym)]; ok {
			b.Hot = hot
		} else {
			b.Hot = b.vtSymbol
		}
	}

	b.inited = true
	e.writeLog(fmt.Sprintf("[%s] init done", b.name))
	e.putStrategyEvent(s)
}

// initFailed surfaces an init failure. The strategy stays un-inited
// until the operator intervenes.
func (e *Engine) initFailed(s Strategy, reason string) {
	msg := fmt.Sprintf("strategy %s init failed: %s", s.Base().name, reason)
	logger.Errorf("cta: %s", msg)
	if err := e.notifier.SendText(msg); err != nil {
		logger.Errorf("cta: notify: %v", err)
	}
	e.putStrategyEvent(s)
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
		logger.Errorf("cta: %v", err)
		return err
	}
	if b.trading {
		logger.Warnf("cta: %s already trading", name)
		return nil
	}

	if !e.callStrategyFunc(s, s.OnStart, "OnStart") {
		return fmt.Errorf("strategy %s OnStart failed", name)
	}
	b.trading = true
	e.callStrategyFunc(s, s.OnTrading, "OnTrading")
	e.putStrategyEvent(s)
	return nil
}

// StopStrategy turns trading off and cancels everything outstanding.
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
	e.putStrategyEvent(s)
	return nil
}

// ResetStrategy clears the strategy position. Refused while trading.
func (e *Engine) ResetStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if b.trading {
		err := fmt.Errorf("cannot reset %s while trading", name)
		logger.Errorf("cta: %v", err)
		return err
	}

	e.callStrategyFunc(s, s.OnReset, "OnReset")
	b.Pos = 0
	e.syncStrategyData(s)
	e.putStrategyEvent(s)
	return nil
}

// EditStrategy applies a new setting map and re-persists it.
func (e *Engine) EditStrategy(name string, setting map[string]any) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	if err := s.Base().UpdateSetting(setting); err != nil {
		logger.Errorf("cta: edit %s: %v", name, err)
		return err
	}

	cfg := e.settings[name]
	cfg.Setting = setting
	e.settings[name] = cfg
	e.saveSettings()
	e.putStrategyEvent(s)
	return nil
}

// RemoveStrategy deletes a stopped strategy and all traces of it.
func (e *Engine) RemoveStrategy(name string) error {
	s, ok := e.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %s not found", name)
	}
	b := s.Base()
	if b.trading {
		err := fmt.Errorf("cannot remove %s while trading", name)
		logger.Errorf("cta: %v", err)
		return err
	}

	delete(e.settings, name)
	e.saveSettings()
	delete(e.data, name)
	e.saveData()

	kept := e.symbolStrategies[b.vtSymbol][:0]
	for _, other := range e.symbolStrategies[b.vtSymbol] {
		if other != s {
			kept = append(kept, other)
		}
	}
	e.symbolStrategies[b.vtSymbol] = kept

	for id := range e.strategyOrders[name] {
		delete(e.orderStrategies, id)
		delete(e.stopOrders, id)
	}
	delete(e.strategyOrders, name)
	delete(e.strategies, name)

	if e.ledger != nil {
		e.ledger.RemoveReference(reference(name))
	}
	e.writeLog(fmt.Sprintf("[%s] removed", name))
	return nil
}

// InitAll queues every strategy for init.
func (e *Engine) InitAll() {
	for name := range e.strategies {
		if err := e.InitStrategy(name); err != nil {
			logger.Errorf("cta: init %s: %v", name, err)
		}
	}
}

// StartAll starts every inited strategy.
func (e *Engine) StartAll() {
	for name := range e.strategies {
		if err := e.StartStrategy(name); err != nil {
			logger.Errorf("cta: start %s: %v", name, err)
		}
	}
}

// StopAll stops every trading strategy.
func (e *Engine) StopAll() {
	for name := range e.strategies {
		if err := e.StopStrategy(name); err != nil {
			logger.Errorf("cta: stop %s: %v", name, err)
		}
	}
}

// Strategies returns the strategy map, keyed by name.
func (e *Engine) Strategies() map[string]Strategy { return e.strategies }

func (e *Engine) processTick(evt event.Event) {
	tick := evt.Data.(*types.Tick)
	vt := tick.VtSymbol()
	e.ticks[vt] = tick

	e.checkStopOrders(tick)

	for _, s := range e.symbolStrategies[vt] {
		if s.Base().inited {
			e.callStrategyFunc(s, func() { s.OnTick(tick) }, "OnTick")
		}
	}
}

func (e *Engine) processBar(evt event.Event) {
	bar := evt.Data.(*types.Bar)
	for _, s := range e.symbolStrategies[bar.VtSymbol()] {
		if s.Base().inited {
			e.callStrategyFunc(s, func() { s.OnBar(bar) }, "OnBar")
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
		delete(e.strategyOrders[s.Base().Name()], vtOrderID)
	}

	// a server-side stop order surfaces to the strategy through the
	// stop-order callback, with its status translated
	if order.Type == types.OrderTypeStop {
		so := &StopOrder{
			VtSymbol:     order.VtSymbol(),
			Direction:    order.Direction,
			Offset:       order.Offset,
			Price:        order.Price,
			Volume:       order.Volume,
			StopOrderID:  vtOrderID,
			StrategyName: s.Base().Name(),
			Datetime:     order.Datetime,
			Gateway:      order.Gateway,
			VtOrderIDs:   []string{vtOrderID},
			Status:       serverStopStatus(order.Status),
		}
		e.callStrategyFunc(s, func() { s.OnStopOrder(so) }, "OnStopOrder")
	}

	e.callStrategyFunc(s, func() { s.OnOrder(order) }, "OnOrder")
}

func (e *Engine) processTrade(evt event.Event) {
	trade := evt.Data.(*types.Trade)
	if e.tradeIDs[trade.VtTradeID()] {
		return
	}
	e.tradeIDs[trade.VtTradeID()] = true

	e.holding(trade.VtSymbol()).updateTrade(trade)
	e.saveHoldings()

	s, ok := e.orderStrategies[trade.VtOrderID()]
	if !ok {
		return
	}
	b := s.Base()

	// position must reflect the fill before the callback runs
	if trade.Direction == types.DirectionLong {
		b.Pos += trade.Volume
	} else {
		b.Pos -= trade.Volume
	}

	e.callStrategyFunc(s, func() { s.OnTrade(trade) }, "OnTrade")
	e.syncStrategyData(s)
	e.putStrategyEvent(s)
}

// callStrategyFunc runs one strategy callback and quarantines the
// strategy if it panics: trading and inited are cleared so the loop
// stops feeding it, and the operator is alerted.
func (e *Engine) callStrategyFunc(s Strategy, fn func(), what string) (ok bool) {
	b := s.Base()
	defer func() {
		if r := recover(); r != nil {
			b.trading = false
			b.inited = false
			msg := fmt.Sprintf("strategy %s panic in %s: %v", b.name, what, r)
			logger.Errorf("cta: %s", msg)
			if err := e.notifier.SendText(msg); err != nil {
				logger.Errorf("cta: notify: %v", err)
			}
			e.putStrategyEvent(s)
			ok = false
		}
	}()
	fn()
	return true
}

// processTimer rolls today legs into yesterday when the trading date
// flips past the evening cut-over, so close splits stay correct across
// sessions.
func (e *Engine) processTimer(event.Event) {
	td := market.TradingDateAt(e.now(), e.cutoverHour)
	if td == e.tradingDate {
		return
	}
	e.tradingDate = td
	for _, h := range e.holdings {
		h.rollDay()
	}
	e.saveHoldings()
	logger.Infof("cta: holdings rolled to trading date %s", td)
}

func (e *Engine) holding(vtSymbol string) *holding {
	h, ok := e.holdings[vtSymbol]
	if !ok {
		h = &holding{}
		e.holdings[vtSymbol] = h
	}
	return h
}

// holdingBlob is the persisted form of the today/yesterday legs. The
// date tells a restarted engine whether the today legs are stale.
type holdingBlob struct {
	Date     string                     `json:"date"`
	Holdings map[string]holdingSnapshot `json:"holdings"`
}

type holdingSnapshot struct {
	LongTd  float64 `json:"long_td"`
	LongYd  float64 `json:"long_yd"`
	ShortTd float64 `json:"short_td"`
	ShortYd float64 `json:"short_yd"`
}

func (e *Engine) loadHoldings() {
	var blob holdingBlob
	ok, err := e.store.LoadJSON(holdingKey, &blob)
	if err != nil {
		logger.Errorf("cta: load holdings: %v", err)
		return
	}
	if !ok {
		return
	}

	stale := blob.Date != e.tradingDate
	for vt, snap := range blob.Holdings {
		h := &holding{
			longTd:  snap.LongTd,
			longYd:  snap.LongYd,
			shortTd: snap.ShortTd,
			shortYd: snap.ShortYd,
		}
		if stale {
			h.rollDay()
		}
		e.holdings[vt] = h
	}
	logger.Infof("cta: restored holdings for %d contracts (stale=%v)", len(blob.Holdings), stale)
}

func (e *Engine) saveHoldings() {
	blob := holdingBlob{
		Date:     e.tradingDate,
		Holdings: make(map[string]holdingSnapshot, len(e.holdings)),
	}
	for vt, h := range e.holdings {
		blob.Holdings[vt] = holdingSnapshot{
			LongTd:  h.longTd,
			LongYd:  h.longYd,
			ShortTd: h.shortTd,
			ShortYd: h.shortYd,
		}
	}
	if err := e.store.SaveJSON(holdingKey, blob); err != nil {
		logger.Errorf("cta: save holdings: %v", err)
	}
}

func (e *Engine) activeOrderIDs(name string) []string {
	ids := make([]string, 0, len(e.strategyOrders[name]))
	for id := range e.strategyOrders[name] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) syncStrategyData(s Strategy) {
	e.data[s.Base().Name()] = s.Base().StateMap()
	e.saveData()
}

func (e *Engine) putStrategyEvent(s Strategy) {
	b := s.Base()
	e.events.Put(event.Event{Type: event.TypeCtaStrategy, Data: &StrategyData{
		StrategyName: b.name,
		ClassName:    b.className,
		VtSymbol:     b.vtSymbol,
		Gateway:      b.gateway,
		Inited:       b.inited,
		Trading:      b.trading,
		Params:       b.ParamsMap(),
		State:        b.StateMap(),
	}})
}

func (e *Engine) writeLog(msg string) {
	logger.Infof("cta: %s", msg)
	e.events.Put(event.Event{Type: event.TypeLog, Data: &types.Log{
		Message: msg,
		Source:  AppName,
		Time:    time.Now(),
	}})
}

func (e *Engine) saveSettings() {
	if err := e.store.SaveJSON(settingKey, e.settings); err != nil {
		logger.Errorf("cta: save settings: %v", err)
	}
}

func (e *Engine) saveData() {
	if err := e.store.SaveJSON(dataKey, e.data); err != nil {
		logger.Errorf("cta: save data: %v", err)
	}
}

// reference tags orders with their owning strategy so the ledger can
// attribute fills.
func reference(name string) string {
	return AppName + "_" + name
}
