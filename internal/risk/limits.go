package risk

import (
	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Limits is the set of limit-check parameters decimal-typed
// to keep every comparison in fixed-point arithmetic alongside positions
// and prices.
type Limits struct {
	MaxPositionSize decimal.Decimal
	MaxOrderSize decimal.Decimal
	MaxNotionalExposure decimal.Decimal
	MaxOpenPositions int
	ConcentrationPct decimal.Decimal
	MaxDailyLoss decimal.Decimal
}

// Candidate is a prospective order plus the context the chain needs to
// evaluate it: the resulting signed position if it filled completely, and
// portfolio-wide aggregates maintained by the caller under the
// "update atomically" rule of its concurrency note.
type Candidate struct {
	Order schema.Order
	EstimatedPrice decimal.Decimal
	ReducesPosition bool // true iff |resulting position| <= |current position|
	OpenOrderCount int
	PortfolioNotional decimal.Decimal // sum of |position*mark| across symbols, excluding this order's symbol
	SymbolNotional decimal.Decimal // |position*mark| for this order's symbol, excluding this order
}

// Check runs the seven ordered limit-check predicates against
// one candidate order, given the current position and daily P&L for its
// symbol. The first failing check rejects; an empty reason means approved.
// A reducing order is not subject to the concentration check.
func Check(breaker *Breaker, pos schema.Position, limits Limits, c Candidate) schema.RiskRejectReason {
	if !breaker.AllowsOrder(c.ReducesPosition) {
		return schema.RejectBreakerOpen
	}

	orderNotional := c.Order.Quantity.Mul(c.EstimatedPrice)

	resultingQty := resultingPosition(pos, c.Order)
	if resultingQty.Abs().GreaterThan(limits.MaxPositionSize) {
		return schema.RejectPositionCapExceeded
	}

	if c.Order.Quantity.GreaterThan(limits.MaxOrderSize) {
		return schema.RejectOrderSizeExceeded
	}

	totalNotional := c.PortfolioNotional.Add(c.SymbolNotional).Add(orderNotional)
	if totalNotional.GreaterThan(limits.MaxNotionalExposure) {
		return schema.RejectNotionalCapExceeded
	}

	if c.OpenOrderCount >= limits.MaxOpenPositions {
		return schema.RejectOpenOrderCapExceeded
	}

	if !c.ReducesPosition && !limits.ConcentrationPct.IsZero() && !totalNotional.IsZero() {
		symbolShare := c.SymbolNotional.Add(orderNotional)
		concentration := symbolShare.Div(totalNotional)
		if concentration.GreaterThan(limits.ConcentrationPct) {
			return schema.RejectConcentrationExceeded
		}
	}

	dailyPnL := pos.DailyPnL.Add(pos.UnrealizedPnL)
	if !limits.MaxDailyLoss.IsZero() && dailyPnL.LessThanOrEqual(limits.MaxDailyLoss.Neg()) {
		return schema.RejectDailyLossCapExceeded
	}

	return ""
}

// resultingPosition returns the signed quantity the position would hold
// if the candidate order filled in full.
func resultingPosition(pos schema.Position, order schema.Order) decimal.Decimal {
	delta := order.Quantity
	if order.Side == schema.SideSell {
		delta = delta.Neg()
	}
	return pos.Quantity.Add(delta)
}

// Reduces reports whether an order of the given side/quantity would leave
// |position| no larger than it currently is — the "strictly reducing"
// predicate referenced by the breaker-open check and the stop-trigger
// veto rule.
func Reduces(pos schema.Position, side schema.Side, qty decimal.Decimal) bool {
	resulting := resultingPosition(pos, schema.Order{Side: side, Quantity: qty})
	return resulting.Abs().LessThanOrEqual(pos.Quantity.Abs())
}
