package types

import (
	"fmt"
	"strings"
	"time"
)

// Direction 委托/成交方向。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Offset 开平方向。平今/平昨仅对按日分档收费的交易所有意义，
// 其余场合统一用 OffsetClose。
type Offset string

const (
	OffsetNone           Offset = ""
	OffsetOpen           Offset = "open"
	OffsetClose          Offset = "close"
	OffsetCloseToday     Offset = "close_today"
	OffsetCloseYesterday Offset = "close_yesterday"
)

// IsClose reports whether the offset closes an existing position.
func (o Offset) IsClose() bool {
	return o == OffsetClose || o == OffsetCloseToday || o == OffsetCloseYesterday
}

// OrderType 委托类型。
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
	OrderTypeStop   OrderType = "stop"
)

// Status 委托状态。
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusNotTraded  Status = "not_traded"
	StatusPartTraded Status = "part_traded"
	StatusAllTraded  Status = "all_traded"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// Active reports whether the order can still produce fills.
func (s Status) Active() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	default:
		return false
	}
}

// Interval K 线周期单位。
type Interval string

const (
	IntervalSecond Interval = "second"
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDaily  Interval = "daily"
)

// Exchange 交易所代码（vt_symbol 的后缀部分）。
type Exchange string

const (
	ExchangeSHFE  Exchange = "SHFE"
	ExchangeDCE   Exchange = "DCE"
	ExchangeCZCE  Exchange = "CZCE"
	ExchangeCFFEX Exchange = "CFFEX"
	ExchangeINE   Exchange = "INE"
	ExchangeGFEX  Exchange = "GFEX"
	ExchangeLocal Exchange = "LOCAL"
)

var knownExchanges = map[Exchange]bool{
	ExchangeSHFE:  true,
	ExchangeDCE:   true,
	ExchangeCZCE:  true,
	ExchangeCFFEX: true,
	ExchangeINE:   true,
	ExchangeGFEX:  true,
	ExchangeLocal: true,
}

// ValidExchange reports whether the venue suffix is recognised.
func ValidExchange(e Exchange) bool {
	return knownExchanges[e]
}

// VtSymbol joins an instrument code and its venue into the canonical
// "code.VENUE" form used as a map key everywhere in the core.
func VtSymbol(symbol string, exchange Exchange) string {
	return symbol + "." + string(exchange)
}

// ExtractVtSymbol splits a "code.VENUE" identifier. The venue suffix is
// everything after the last dot so instrument codes may not contain dots.
func ExtractVtSymbol(vtSymbol string) (string, Exchange, error) {
	idx := strings.LastIndex(vtSymbol, ".")
	if idx <= 0 || idx == len(vtSymbol)-1 {
		return "", "", fmt.Errorf("invalid vt_symbol %q: missing venue suffix", vtSymbol)
	}
	return vtSymbol[:idx], Exchange(vtSymbol[idx+1:]), nil
}

// Tick 行情快照。Volume/Turnover 为当日累计值，增量由 K 线合成器负责计算。
type Tick struct {
	Symbol       string
	Exchange     Exchange
	Datetime     time.Time
	LastPrice    float64
	Volume       float64
	Turnover     float64
	OpenInterest float64
	PreClose     float64

	LimitUp   float64
	LimitDown float64

	BidPrice1 float64
	BidPrice2 float64
	BidPrice3 float64
	BidPrice4 float64
	BidPrice5 float64
	AskPrice1 float64
	AskPrice2 float64
	AskPrice3 float64
	AskPrice4 float64
	AskPrice5 float64

	BidVolume1 float64
	AskVolume1 float64
}

func (t *Tick) VtSymbol() string { return VtSymbol(t.Symbol, t.Exchange) }

// Bar OHLCV 聚合。Datetime 为周期起点；Volume/Turnover 为周期内增量。
type Bar struct {
	Symbol       string
	Exchange     Exchange
	Interval     Interval
	Datetime     time.Time
	OpenPrice    float64
	HighPrice    float64
	LowPrice     float64
	ClosePrice   float64
	Volume       float64
	Turnover     float64
	OpenInterest float64
}

func (b *Bar) VtSymbol() string { return VtSymbol(b.Symbol, b.Exchange) }

// Order 委托回报。
type Order struct {
	Symbol    string
	Exchange  Exchange
	OrderID   string
	Type      OrderType
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Traded    float64
	Status    Status
	Datetime  time.Time
	Reference string
	Gateway   string
}

func (o *Order) VtSymbol() string  { return VtSymbol(o.Symbol, o.Exchange) }
func (o *Order) VtOrderID() string { return o.Gateway + "." + o.OrderID }
func (o *Order) IsActive() bool    { return o.Status.Active() }

// CancelRequest builds the cancellation request for this order.
func (o *Order) CancelRequest() CancelRequest {
	return CancelRequest{Symbol: o.Symbol, Exchange: o.Exchange, OrderID: o.OrderID}
}

// Trade 成交回报。
type Trade struct {
	Symbol    string
	Exchange  Exchange
	OrderID   string
	TradeID   string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Datetime  time.Time
	Reference string
	Gateway   string
}

func (t *Trade) VtSymbol() string  { return VtSymbol(t.Symbol, t.Exchange) }
func (t *Trade) VtOrderID() string { return t.Gateway + "." + t.OrderID }
func (t *Trade) VtTradeID() string { return t.Gateway + "." + t.TradeID }

// Contract 合约信息（由网关查询返回）。
type Contract struct {
	Symbol        string
	Exchange      Exchange
	Name          string
	Multiplier    float64
	PriceTick     float64
	MinVolume     float64
	StopSupported bool
	Gateway       string
}

func (c *Contract) VtSymbol() string { return VtSymbol(c.Symbol, c.Exchange) }

// OrderRequest 委托请求。
type OrderRequest struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
	Reference string
}

func (r *OrderRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }

// CreateOrder materialises the submitted order from the request once the
// gateway has assigned an id.
func (r *OrderRequest) CreateOrder(orderID, gateway string) *Order {
	return &Order{
		Symbol:    r.Symbol,
		Exchange:  r.Exchange,
		OrderID:   orderID,
		Type:      r.Type,
		Direction: r.Direction,
		Offset:    r.Offset,
		Price:     r.Price,
		Volume:    r.Volume,
		Status:    StatusSubmitting,
		Reference: r.Reference,
		Gateway:   gateway,
	}
}

// CancelRequest 撤单请求。
type CancelRequest struct {
	Symbol   string
	Exchange Exchange
	OrderID  string
}

// SubscribeRequest 行情订阅请求。
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

func (r *SubscribeRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }

// Log 日志事件载荷，供 UI 订阅。
type Log struct {
	Message string
	Source  string
	Time    time.Time
}
