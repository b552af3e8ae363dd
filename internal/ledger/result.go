package ledger

import (
	"ctacore/internal/types"
)

// ContractResult tracks fills and PnL for one (reference, vt_symbol,
// gateway) combination. reference is the order-owner tag, normally the
// strategy name.
type ContractResult struct {
	Reference string
	VtSymbol  string
	Gateway   string

	OpenPos float64 // position carried into the trading day
	LastPos float64 // position after all fills seen so far

	TradingPnl float64
	HoldingPnl float64
	TotalPnl   float64
	Commission float64

	LongVolume  float64
	ShortVolume float64
	LongCost    float64
	ShortCost   float64

	tradeIDs  map[string]bool
	newTrades []*types.Trade
}

func NewContractResult(reference, vtSymbol, gateway string, openPos, commission float64) *ContractResult {
	return &ContractResult{
		Reference:  reference,
		VtSymbol:   vtSymbol,
		Gateway:    gateway,
		OpenPos:    openPos,
		LastPos:    openPos,
		Commission: commission,
		tradeIDs:   make(map[string]bool),
	}
}

// UpdateTrade applies one fill. Replayed fills (same vt_tradeid) are
// ignored.
func (r *ContractResult) UpdateTrade(trade *types.Trade, fee float64) bool {
	id := trade.VtTradeID()
	if r.tradeIDs[id] {
		return false
	}
	r.tradeIDs[id] = true
	r.newTrades = append(r.newTrades, trade)

	if trade.Direction == types.DirectionLong {
		r.LastPos += trade.Volume
	} else {
		r.LastPos -= trade.Volume
	}
	r.Commission += fee
	return true
}

// CalculatePnl folds pending fills into the cost legs and recomputes
// trading and holding PnL from the latest tick.
func (r *ContractResult) CalculatePnl(contract *types.Contract, tick *types.Tick) {
	if contract == nil || tick == nil {
		return
	}

	size := contract.Multiplier
	for _, trade := range r.newTrades {
		cost := trade.Price * trade.Volume * size
		if trade.Direction == types.DirectionLong {
			r.LongCost += cost
			r.LongVolume += trade.Volume
		} else {
			r.ShortCost += cost
			r.ShortVolume += trade.Volume
		}
	}
	r.newTrades = nil

	last := tick.LastPrice
	longValue := r.LongVolume * last * size
	shortValue := r.ShortVolume * last * size
	r.TradingPnl = (longValue - r.LongCost) + (r.ShortCost - shortValue)
	r.HoldingPnl = (last - tick.PreClose) * r.OpenPos * size
	r.TotalPnl = r.TradingPnl + r.HoldingPnl
}

// ContractResultData is the event payload snapshot of a ContractResult.
type ContractResultData struct {
	Reference   string  `json:"reference"`
	VtSymbol    string  `json:"vt_symbol"`
	Gateway     string  `json:"gateway"`
	OpenPos     float64 `json:"open_pos"`
	LastPos     float64 `json:"last_pos"`
	TradingPnl  float64 `json:"trading_pnl"`
	HoldingPnl  float64 `json:"holding_pnl"`
	TotalPnl    float64 `json:"total_pnl"`
	Commission  float64 `json:"commission"`
	LongVolume  float64 `json:"long_volume"`
	ShortVolume float64 `json:"short_volume"`
	LongCost    float64 `json:"long_cost"`
	ShortCost   float64 `json:"short_cost"`
}

func (r *ContractResult) Data() ContractResultData {
	return ContractResultData{
		Reference:   r.Reference,
		VtSymbol:    r.VtSymbol,
		Gateway:     r.Gateway,
		OpenPos:     r.OpenPos,
		LastPos:     r.LastPos,
		TradingPnl:  r.TradingPnl,
		HoldingPnl:  r.HoldingPnl,
		TotalPnl:    r.TotalPnl,
		Commission:  r.Commission,
		LongVolume:  r.LongVolume,
		ShortVolume: r.ShortVolume,
		LongCost:    r.LongCost,
		ShortCost:   r.ShortCost,
	}
}

// PortfolioResult aggregates contract results per (reference, gateway).
type PortfolioResult struct {
	Reference  string  `json:"reference"`
	Gateway    string  `json:"gateway"`
	TradingPnl float64 `json:"trading_pnl"`
	HoldingPnl float64 `json:"holding_pnl"`
	TotalPnl   float64 `json:"total_pnl"`
	Commission float64 `json:"commission"`
}

func (p *PortfolioResult) ClearPnl() {
	p.TradingPnl = 0
	p.HoldingPnl = 0
	p.TotalPnl = 0
	p.Commission = 0
}
