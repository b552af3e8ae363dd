package cta

import (
	"ctacore/internal/types"
)

// netVenues require closes to distinguish today from yesterday positions.
var netVenues = map[types.Exchange]bool{
	types.ExchangeSHFE: true,
	types.ExchangeINE:  true,
}

// holding tracks today/yesterday position legs per vt_symbol so close
// requests can be split correctly before they reach the gateway.
type holding struct {
	longTd  float64
	longYd  float64
	shortTd float64
	shortYd float64
}

// updateTrade folds a fill into the holding legs. Opens always grow the
// today leg; closes consume yesterday before today unless the offset
// names the leg explicitly.
func (h *holding) updateTrade(trade *types.Trade) {
	v := trade.Volume
	if trade.Offset == types.OffsetOpen {
		if trade.Direction == types.DirectionLong {
			h.longTd += v
		} else {
			h.shortTd += v
		}
		return
	}

	// a close long comes in as a short-direction trade and vice versa
	td, yd := &h.longTd, &h.longYd
	if trade.Direction == types.DirectionLong {
		td, yd = &h.shortTd, &h.shortYd
	}

	switch trade.Offset {
	case types.OffsetCloseToday:
		*td -= v
	case types.OffsetCloseYesterday:
		*yd -= v
	default:
		taken := min(v, *yd)
		*yd -= taken
		*td -= v - taken
	}
	if *td < 0 {
		*td = 0
	}
	if *yd < 0 {
		*yd = 0
	}
}

// rollDay moves today legs into yesterday at the trading-day boundary.
func (h *holding) rollDay() {
	h.longYd += h.longTd
	h.shortYd += h.shortTd
	h.longTd = 0
	h.shortTd = 0
}

// legs returns the today/yesterday volumes closable by the request
// direction. A short-direction close consumes the long holding.
func (h *holding) legs(dir types.Direction) (td, yd float64) {
	if dir == types.DirectionShort {
		return h.longTd, h.longYd
	}
	return h.shortTd, h.shortYd
}

// convertLock implements lock-mode conversion: while any today position
// exists on the leg being closed, the close is flipped into an opposite
// open to avoid the close-today fee; otherwise it closes yesterday up to
// what is available and opens for the remainder.
func (h *holding) convertLock(req types.OrderRequest) []types.OrderRequest {
	if !req.Offset.IsClose() {
		return []types.OrderRequest{req}
	}

	td, yd := h.legs(req.Direction)
	if td > 0 {
		open := req
		open.Offset = types.OffsetOpen
		return []types.OrderRequest{open}
	}

	if req.Volume <= yd {
		req.Offset = types.OffsetCloseYesterday
		return []types.OrderRequest{req}
	}

	closeYd := req
	closeYd.Offset = types.OffsetCloseYesterday
	closeYd.Volume = yd

	open := req
	open.Offset = types.OffsetOpen
	open.Volume = req.Volume - yd

	if yd <= 0 {
		return []types.OrderRequest{open}
	}
	return []types.OrderRequest{closeYd, open}
}

// convertNet splits a close across close-today and close-yesterday on
// venues that price the legs separately; any remainder opens the
// opposite way. Other venues pass through with a plain close.
func (h *holding) convertNet(req types.OrderRequest) []types.OrderRequest {
	if !req.Offset.IsClose() {
		return []types.OrderRequest{req}
	}

	if !netVenues[req.Exchange] {
		td, yd := h.legs(req.Direction)
		avail := td + yd
		if req.Volume <= avail {
			req.Offset = types.OffsetClose
			return []types.OrderRequest{req}
		}
		closeReq := req
		closeReq.Offset = types.OffsetClose
		closeReq.Volume = avail
		open := req
		open.Offset = types.OffsetOpen
		open.Volume = req.Volume - avail
		if avail <= 0 {
			return []types.OrderRequest{open}
		}
		return []types.OrderRequest{closeReq, open}
	}

	td, yd := h.legs(req.Direction)
	remaining := req.Volume
	var out []types.OrderRequest

	if take := min(remaining, td); take > 0 {
		r := req
		r.Offset = types.OffsetCloseToday
		r.Volume = take
		out = append(out, r)
		remaining -= take
	}
	if take := min(remaining, yd); take > 0 {
		r := req
		r.Offset = types.OffsetCloseYesterday
		r.Volume = take
		out = append(out, r)
		remaining -= take
	}
	if remaining > 0 {
		r := req
		r.Offset = types.OffsetOpen
		r.Volume = remaining
		out = append(out, r)
	}
	return out
}
