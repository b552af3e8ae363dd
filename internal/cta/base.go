// Package cta is the strategy execution core: strategy lifecycle, event
// dispatch, the order router and local stop-order emulation.
package cta

import (
	"time"

	"ctacore/internal/types"
)

const (
	// AppName prefixes order references so fills can be routed back to
	// their owning strategy and ledger rows.
	AppName = "cta"

	// StopOrderPrefix marks local stop-order ids. CancelOrder uses it to
	// route cancels to the local book instead of the gateway.
	StopOrderPrefix = "STOP"
)

// StopOrderStatus 本地停止单状态。
type StopOrderStatus string

const (
	StopOrderWaiting   StopOrderStatus = "waiting"
	StopOrderTriggered StopOrderStatus = "triggered"
	StopOrderCancelled StopOrderStatus = "cancelled"
)

// StopOrder is a stop order kept locally because the venue does not
// support server-side stops.
type StopOrder struct {
	VtSymbol     string
	Direction    types.Direction
	Offset       types.Offset
	Price        float64
	Volume       float64
	StopOrderID  string
	StrategyName string
	Datetime     time.Time
	Gateway      string
	Lock         bool
	Net          bool
	VtOrderIDs   []string
	Status       StopOrderStatus
}

// serverStopStatus maps a server stop order's regular status onto the
// local stop-order status vocabulary for the strategy callback.
func serverStopStatus(s types.Status) StopOrderStatus {
	switch s {
	case types.StatusPartTraded, types.StatusAllTraded:
		return StopOrderTriggered
	case types.StatusCancelled, types.StatusRejected:
		return StopOrderCancelled
	default:
		return StopOrderWaiting
	}
}

// StrategyData is the eCtaStrategy event payload.
type StrategyData struct {
	StrategyName string         `json:"strategy_name"`
	ClassName    string         `json:"class_name"`
	VtSymbol     string         `json:"vt_symbol"`
	Gateway      string         `json:"gateway"`
	Inited       bool           `json:"inited"`
	Trading      bool           `json:"trading"`
	Params       map[string]any `json:"params"`
	State        map[string]any `json:"state"`
}
