// Package ledger tracks fills per order-owner and computes trading and
// holding PnL on a timer, carrying positions across trading days.
package ledger

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"ctacore/internal/event"
	"ctacore/internal/logger"
	"ctacore/internal/market"
	"ctacore/internal/store"
	"ctacore/internal/types"
)

const (
	dataKey  = "portfolio_data"
	orderKey = "portfolio_order"
)

type resultKey struct {
	Reference string
	VtSymbol  string
	Gateway   string
}

type portfolioKey struct {
	Reference string
	Gateway   string
}

type persistedResult struct {
	OpenPos    float64 `json:"open_pos"`
	LastPos    float64 `json:"last_pos"`
	Commission float64 `json:"commission"`
}

type persistedData struct {
	Date    string                     `json:"date"`
	Results map[string]persistedResult `json:"results"`
}

type persistedOrders struct {
	Date string            `json:"date"`
	Data map[string]string `json:"data"`
}

// Engine is the position and commission ledger. All handlers run on the
// event loop; no internal locking is needed.
type Engine struct {
	events      *event.Engine
	store       store.Store
	commissions CommissionTable

	ticks     map[string]*types.Tick
	contracts map[string]*types.Contract

	orderRefs  map[string]string // vt_orderid -> reference
	results    map[resultKey]*ContractResult
	portfolios map[portfolioKey]*PortfolioResult

	timerCount    int
	timerInterval int
}

func NewEngine(events *event.Engine, st store.Store, commissions CommissionTable, timerInterval int) *Engine {
	if timerInterval <= 0 {
		timerInterval = 5
	}
	e := &Engine{
		events:        events,
		store:         st,
		commissions:   commissions,
		ticks:         make(map[string]*types.Tick),
		contracts:     make(map[string]*types.Contract),
		orderRefs:     make(map[string]string),
		results:       make(map[resultKey]*ContractResult),
		portfolios:    make(map[portfolioKey]*PortfolioResult),
		timerInterval: timerInterval,
	}
	e.loadData()
	e.loadOrders()
	return e
}

// Register hooks the ledger into the event loop.
func (e *Engine) Register() {
	e.events.Register(event.TypeTick, e.processTick)
	e.events.Register(event.TypeContract, e.processContract)
	e.events.Register(event.TypeOrder, e.processOrder)
	e.events.Register(event.TypeTrade, e.processTrade)
	e.events.Register(event.TypeTimer, e.processTimer)
}

func (e *Engine) processTick(evt event.Event) {
	tick := evt.Data.(*types.Tick)
	e.ticks[tick.VtSymbol()] = tick
}

func (e *Engine) processContract(evt event.Event) {
	c := evt.Data.(*types.Contract)
	e.contracts[c.VtSymbol()] = c
}

// processOrder pins the owner reference of each order id at first sight
// so later updates cannot reassign fills to another owner.
func (e *Engine) processOrder(evt event.Event) {
	order := evt.Data.(*types.Order)
	if order.Reference == "" {
		return
	}
	if _, ok := e.orderRefs[order.VtOrderID()]; !ok {
		e.orderRefs[order.VtOrderID()] = order.Reference
	}
}

func (e *Engine) processTrade(evt event.Event) {
	trade := evt.Data.(*types.Trade)

	reference := e.orderRefs[trade.VtOrderID()]
	if reference == "" {
		reference = trade.Reference
	}
	if reference == "" {
		return
	}

	key := resultKey{Reference: reference, VtSymbol: trade.VtSymbol(), Gateway: trade.Gateway}
	result, ok := e.results[key]
	if !ok {
		result = NewContractResult(reference, trade.VtSymbol(), trade.Gateway, 0, 0)
		e.results[key] = result
	}

	multiplier := 1.0
	if c, ok := e.contracts[trade.VtSymbol()]; ok {
		multiplier = c.Multiplier
	}
	fee := e.commissions.Calculate(trade, multiplier)
	if result.UpdateTrade(trade, fee) {
		e.events.Put(event.Event{Type: event.TypePmTrade, Data: trade})
	}
}

func (e *Engine) processTimer(event.Event) {
	e.timerCount++
	if e.timerCount < e.timerInterval {
		return
	}
	e.timerCount = 0
	e.Recalculate()
}

// Recalculate refreshes all PnL figures and pushes snapshot events.
func (e *Engine) Recalculate() {
	for _, p := range e.portfolios {
		p.ClearPnl()
	}

	for _, r := range e.results {
		r.CalculatePnl(e.contracts[r.VtSymbol], e.ticks[r.VtSymbol])

		p := e.portfolio(r.Reference, r.Gateway)
		p.TradingPnl += r.TradingPnl
		p.HoldingPnl += r.HoldingPnl
		p.TotalPnl += r.TotalPnl
		p.Commission += r.Commission

		e.events.Put(event.Event{Type: event.TypePmContract, Data: r.Data()})
	}

	for _, p := range e.portfolios {
		cp := *p
		e.events.Put(event.Event{Type: event.TypePmPortfolio, Data: &cp})
	}
}

func (e *Engine) portfolio(reference, gateway string) *PortfolioResult {
	key := portfolioKey{Reference: reference, Gateway: gateway}
	p, ok := e.portfolios[key]
	if !ok {
		p = &PortfolioResult{Reference: reference, Gateway: gateway}
		e.portfolios[key] = p
	}
	return p
}

// Results returns the live contract results, mainly for inspection.
func (e *Engine) Results() []*ContractResult {
	out := make([]*ContractResult, 0, len(e.results))
	for _, r := range e.results {
		out = append(out, r)
	}
	return out
}

// RemoveReference drops all ledger rows owned by reference. Called when
// a strategy is removed.
func (e *Engine) RemoveReference(reference string) {
	for key := range e.results {
		if key.Reference == reference {
			delete(e.results, key)
		}
	}
	for key := range e.portfolios {
		if key.Reference == reference {
			delete(e.portfolios, key)
		}
	}
	for id, ref := range e.orderRefs {
		if ref == reference {
			delete(e.orderRefs, id)
		}
	}
}

// Close persists the ledger.
func (e *Engine) Close() {
	e.saveData()
	e.saveOrders()
}

// loadData restores per-contract positions. Blobs from the same trading
// day keep open_pos and accrued commission; on a new trading day the
// previous last_pos becomes the new open_pos and commission resets.
func (e *Engine) loadData() {
	raw, ok, err := e.store.LoadRaw(dataKey)
	if err != nil {
		logger.Errorf("ledger: load data: %v", err)
		return
	}
	if !ok {
		return
	}

	today := market.TradingDate(nowFunc())
	sameDay := gjson.GetBytes(raw, "date").String() == today

	var data persistedData
	if _, err := e.store.LoadJSON(dataKey, &data); err != nil {
		logger.Errorf("ledger: decode data: %v", err)
		return
	}

	for keyStr, rec := range data.Results {
		parts := strings.Split(keyStr, ",")
		if len(parts) != 3 {
			logger.Warnf("ledger: skipping malformed key %q", keyStr)
			continue
		}
		key := resultKey{Reference: parts[0], VtSymbol: parts[1], Gateway: parts[2]}

		pos := rec.OpenPos
		commission := rec.Commission
		if !sameDay {
			pos = rec.LastPos
			commission = 0
		}
		e.results[key] = NewContractResult(key.Reference, key.VtSymbol, key.Gateway, pos, commission)
	}

	if !sameDay {
		e.saveData()
	}
	logger.Infof("ledger: restored %d contract results (same_day=%v)", len(e.results), sameDay)
}

func (e *Engine) saveData() {
	data := persistedData{
		Date:    market.TradingDate(nowFunc()),
		Results: make(map[string]persistedResult, len(e.results)),
	}
	for key, r := range e.results {
		k := fmt.Sprintf("%s,%s,%s", key.Reference, key.VtSymbol, key.Gateway)
		data.Results[k] = persistedResult{
			OpenPos:    r.OpenPos,
			LastPos:    r.LastPos,
			Commission: r.Commission,
		}
	}
	if err := e.store.SaveJSON(dataKey, data); err != nil {
		logger.Errorf("ledger: save data: %v", err)
	}
}

// loadOrders restores the order-owner map, valid only within one
// trading day.
func (e *Engine) loadOrders() {
	var orders persistedOrders
	ok, err := e.store.LoadJSON(orderKey, &orders)
	if err != nil {
		logger.Errorf("ledger: load orders: %v", err)
		return
	}
	if !ok {
		return
	}
	if orders.Date == market.TradingDate(nowFunc()) && orders.Data != nil {
		e.orderRefs = orders.Data
	}
}

func (e *Engine) saveOrders() {
	orders := persistedOrders{
		Date: market.TradingDate(nowFunc()),
		Data: e.orderRefs,
	}
	if err := e.store.SaveJSON(orderKey, orders); err != nil {
		logger.Errorf("ledger: save orders: %v", err)
	}
}
