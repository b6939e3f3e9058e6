// Package schema defines the wire types shared by every service: the
// symbol/price/quantity primitives, order book and bar entities, orders,
// fills, positions and signals.
package schema

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Price and Quantity are fixed-point decimals. decimal.Decimal avoids the
// binary-float rounding forbid and carries arbitrary fractional
// digits, so 8+ digit precision falls out of the representation rather than
// needing to be bolted on.
type Price = decimal.Decimal
type Quantity = decimal.Decimal

var symbolPool sync.Map // string -> *string, used to intern Symbol values

// Symbol is an opaque, case-sensitive identifier interned for the process
// lifetime. Interning means equal symbols compare equal as plain
// strings without a secondary lookup table.
type Symbol string

// Intern returns the canonical instance of s, ensuring repeated construction
// of the same symbol text reuses one backing string for the life of the
// process.
func Intern(s string) Symbol {
	if v, ok := symbolPool.Load(s); ok {
		return Symbol(*v.(*string))
	}
	cp := s
	actual, _ := symbolPool.LoadOrStore(s, &cp)
	return Symbol(*actual.(*string))
}

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() int {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit OrderType = "limit"
	OrderTypeStop OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce controls order lifetime at the venue.
type TimeInForce string

const (
	TIFGoodTilCancel TimeInForce = "gtc"
	TIFImmediateOrCancel TimeInForce = "ioc"
	TIFFillOrKill TimeInForce = "fok"
)

// OrderState is a node in the execution state DAG.
type OrderState string

const (
	OrderPending OrderState = "pending"
	OrderSubmitted OrderState = "submitted"
	OrderWorking OrderState = "working"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled OrderState = "filled"
	OrderCancelling OrderState = "cancelling"
	OrderCancelled OrderState = "cancelled"
	OrderRejected OrderState = "rejected"
)

// Terminal reports whether the state has no outbound transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// SignalAction is the trading recommendation produced by the signal bridge.
type SignalAction string

const (
	ActionBuy SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// BookLevel is one resting price level. Quantity zero marks
// deletion; the OrderBook never stores a zero-quantity level.
type BookLevel struct {
	Price Price `json:"price"`
	Quantity Quantity `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// BookSnapshot is a full order-book state as delivered by the venue.
type BookSnapshot struct {
	Symbol Symbol `json:"symbol"`
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
	LastUpdateID int64 `json:"last_update_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BookDelta is an incremental update to specific price levels.
type BookDelta struct {
	Symbol Symbol `json:"symbol"`
	FirstID int64 `json:"first_update_id"`
	LastID int64 `json:"last_update_id"`
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBookView is the published read-only snapshot of an OrderBook: sorted
// bids (desc), sorted asks (asc), and the sequence id they reflect.
type OrderBookView struct {
	Symbol Symbol `json:"symbol"`
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
	LastUpdateID int64 `json:"last_update_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BestBidAsk returns the top of book, or zero values if a side is empty.
func (v OrderBookView) BestBidAsk() (bid, ask Price) {
	if len(v.Bids) > 0 {
		bid = v.Bids[0].Price
	}
	if len(v.Asks) > 0 {
		ask = v.Asks[0].Price
	}
	return bid, ask
}

// Trade is a single executed print on the venue.
type Trade struct {
	Symbol Symbol `json:"symbol"`
	Price Price `json:"price"`
	Quantity Quantity `json:"quantity"`
	Side Side `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is the top-of-book snapshot used for mark-to-market.
type Quote struct {
	Symbol Symbol `json:"symbol"`
	BestBid Price `json:"best_bid"`
	BestAsk Price `json:"best_ask"`
	BidSize Quantity `json:"bid_size"`
	AskSize Quantity `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar is an OHLCV aggregate over one interval for one symbol.
type Bar struct {
	Symbol Symbol `json:"symbol"`
	Interval string `json:"interval"`
	Open Price `json:"open"`
	High Price `json:"high"`
	Low Price `json:"low"`
	Close Price `json:"close"`
	Volume Quantity `json:"volume"`
	IntervalStart time.Time `json:"interval_start"`
	Closed bool `json:"closed"`
}

// Signal is the strategy recommendation for one symbol.
type Signal struct {
	Symbol Symbol `json:"symbol"`
	Action SignalAction `json:"action"`
	Confidence float64 `json:"confidence"`
	Features map[string]float64 `json:"features,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error string `json:"error,omitempty"`
}

// Order is a candidate or live order.
type Order struct {
	ClientOrderID string `json:"client_order_id"`
	VenueOrderID string `json:"venue_order_id,omitempty"`
	Symbol Symbol `json:"symbol"`
	Side Side `json:"side"`
	Type OrderType `json:"type"`
	Quantity Quantity `json:"quantity"`
	Price *Price `json:"price,omitempty"`
	StopPrice *Price `json:"stop_price,omitempty"`
	TIF TimeInForce `json:"tif"`
	ReduceOnly bool `json:"reduce_only"`
	State OrderState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fill is one (partial or full) execution against an order.
type Fill struct {
	OrderID string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol Symbol `json:"symbol"`
	Side Side `json:"side"`
	Price Price `json:"price"`
	Quantity Quantity `json:"quantity"`
	Fee Price `json:"fee"`
	Funding Price `json:"funding"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the net signed holding of one symbol.
type Position struct {
	Symbol Symbol `json:"symbol"`
	Quantity Quantity `json:"quantity"` // signed: >0 long, <0 short
	AvgEntry Price `json:"avg_entry"`
	MarkPrice Price `json:"mark_price"`
	RealizedPnL Price `json:"realized_pnl"`
	DailyPnL Price `json:"daily_pnl"`
	UnrealizedPnL Price `json:"unrealized_pnl"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BreakerState is the circuit breaker status.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerTripping BreakerState = "tripping"
	BreakerOpen BreakerState = "open"
)

// CircuitBreakerStatus is the periodic broadcast of the breaker's current
// state, published on system.circuit_breaker so downstream consumers (an
// ops dashboard, an alerting rule) don't need their own copy of the state
// machine.
type CircuitBreakerStatus struct {
	State BreakerState `json:"state"`
	Reason string `json:"reason,omitempty"`
	DailyPnL Price `json:"daily_pnl"`
	OpenPositions int `json:"open_positions"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskRejectReason enumerates the limit-check failures.
type RiskRejectReason string

const (
	RejectBreakerOpen RiskRejectReason = "BreakerOpen"
	RejectPositionCapExceeded RiskRejectReason = "PositionCapExceeded"
	RejectOrderSizeExceeded RiskRejectReason = "OrderSizeExceeded"
	RejectNotionalCapExceeded RiskRejectReason = "NotionalCapExceeded"
	RejectOpenOrderCapExceeded RiskRejectReason = "OpenOrderCapExceeded"
	RejectConcentrationExceeded RiskRejectReason = "ConcentrationExceeded"
	RejectDailyLossCapExceeded RiskRejectReason = "DailyLossCapExceeded"
	RejectSlippageExceeded RiskRejectReason = "SlippageExceeded"
	RejectRateLimited RiskRejectReason = "RateLimited"
)
