// Package market carries the futures trading calendar: session windows,
// the day/night break table and the trading-date cut-over.
package market

import (
	"time"

	"ctacore/internal/types"
)

// Beijing is the exchange time zone. All session math happens in it.
var Beijing = time.FixedZone("CST", 8*3600)

// NightType classifies how late an instrument's night session runs.
type NightType string

const (
	NightNone NightType = "none"
	Night23   NightType = "23:00"
	Night01   NightType = "01:00"
	Night0230 NightType = "02:30"
)

// SessionStatus 当前时段状态。
type SessionStatus string

const (
	StatusTrading SessionStatus = "trading"
	StatusBidding SessionStatus = "bidding"
	StatusBreak   SessionStatus = "break"
	StatusClosed  SessionStatus = "closed"
)

// timeRange is a clock-time window, possibly crossing midnight.
type timeRange struct {
	startMin int // minutes since 00:00
	endMin   int
}

func newRange(sh, sm, eh, em int) timeRange {
	return timeRange{startMin: sh*60 + sm, endMin: eh*60 + em}
}

func (r timeRange) contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if r.startMin <= r.endMin {
		return m >= r.startMin && m < r.endMin
	}
	// crosses midnight, e.g. 21:00-02:30
	return m >= r.startMin || m < r.endMin
}

var (
	nightBidding = newRange(20, 55, 21, 0)

	nightSessions = map[NightType]timeRange{
		Night23:   newRange(21, 0, 23, 0),
		Night01:   newRange(21, 0, 1, 0),
		Night0230: newRange(21, 0, 2, 30),
	}

	dayBidding      = newRange(8, 55, 9, 0)
	dayBiddingCFFEX = newRange(9, 25, 9, 30)

	daySessions = []timeRange{
		newRange(9, 0, 10, 15),
		newRange(10, 30, 11, 30),
		newRange(13, 30, 15, 0),
	}
	daySessionsCFFEX = []timeRange{
		newRange(9, 30, 11, 30),
		newRange(13, 0, 15, 0),
	}
)

// SessionInfo 时段判定结果。
type SessionInfo struct {
	Status   SessionStatus
	CanOrder bool
	CanTrade bool
}

// CheckSession classifies dt for the given venue and night-session type.
func CheckSession(exchange types.Exchange, night NightType, dt time.Time) SessionInfo {
	dt = dt.In(Beijing)

	if night != NightNone {
		if nightBidding.contains(dt) {
			return SessionInfo{Status: StatusBidding, CanOrder: true}
		}
		if r, ok := nightSessions[night]; ok && r.contains(dt) {
			return SessionInfo{Status: StatusTrading, CanOrder: true, CanTrade: true}
		}
	}

	bidding := dayBidding
	sessions := daySessions
	if exchange == types.ExchangeCFFEX {
		bidding = dayBiddingCFFEX
		sessions = daySessionsCFFEX
	}

	if bidding.contains(dt) {
		return SessionInfo{Status: StatusBidding, CanOrder: true}
	}
	for _, r := range sessions {
		if r.contains(dt) {
			return SessionInfo{Status: StatusTrading, CanOrder: true, CanTrade: true}
		}
	}
	if inDayBreak(dt, exchange) {
		return SessionInfo{Status: StatusBreak}
	}
	return SessionInfo{Status: StatusClosed}
}

// IsTradingTime reports whether fills can happen at dt.
func IsTradingTime(exchange types.Exchange, night NightType, dt time.Time) bool {
	return CheckSession(exchange, night, dt).CanTrade
}

func inDayBreak(dt time.Time, exchange types.Exchange) bool {
	m := dt.Hour()*60 + dt.Minute()
	if exchange == types.ExchangeCFFEX {
		return m >= 11*60+30 && m < 13*60
	}
	return (m >= 10*60+15 && m < 10*60+30) || (m >= 11*60+30 && m < 13*60+30)
}

// TradingDate returns the trading date (YYYY-MM-DD) that dt belongs to.
// Night sessions from 20:00 onward count toward the next weekday.
func TradingDate(dt time.Time) string {
	return TradingDateAt(dt, 20)
}

// TradingDateAt is TradingDate with a caller-chosen cut-over hour.
func TradingDateAt(dt time.Time, cutoverHour int) string {
	dt = dt.In(Beijing)
	if dt.Hour() >= cutoverHour {
		next := dt.AddDate(0, 0, 1)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next.Format("2006-01-02")
	}
	return dt.Format("2006-01-02")
}
