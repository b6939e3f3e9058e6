package schema

import "strings"

// Topic grammar is <component>.<event>[.<symbol>].
const (
	TopicMarketTrade = "market.trade"
	TopicMarketQuote = "market.quote"
	TopicMarketOrderBook = "market.orderbook"
	TopicMarketBar = "market.bar"
	TopicSignalGenerated = "signal.generated"
	TopicOrderRequest = "order.request"
	TopicOrderSubmitted = "order.submitted"
	TopicOrderFilled = "order.filled"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderRejected = "order.rejected"
	TopicRiskRejected = "risk.rejected"
	TopicPositionUpdate = "position.update"
	TopicSystemHeartbeat = "system.heartbeat"
	TopicSystemBreaker = "system.circuit_breaker"
)

// ForSymbol appends a symbol suffix to a topic prefix, e.g.
// ForSymbol(TopicMarketTrade, "AAPL") -> "market.trade.AAPL".
func ForSymbol(prefix string, symbol Symbol) string {
	return prefix + "." + string(symbol)
}

// ForBarInterval builds a bar topic: market.bar.<symbol>.<interval>.
func ForBarInterval(symbol Symbol, interval string) string {
	return TopicMarketBar + "." + string(symbol) + "." + interval
}

// MatchesPrefix reports whether topic falls under the dotted prefix (the
// bus's subscription filtering rule).
func MatchesPrefix(topic, prefix string) bool {
	if topic == prefix {
		return true
	}
	return strings.HasPrefix(topic, prefix+".")
}
