package execution

import (
	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// EstimateFill walks levels (the opposite side of the book from the
// order's side, best price first) for qty units and returns the
// volume-weighted average fill price. If the book does not have enough
// depth, filled reports the quantity actually walkable.
func EstimateFill(levels []schema.BookLevel, qty decimal.Decimal) (avgPrice decimal.Decimal, filled decimal.Decimal) {
	remaining := qty
	var notional decimal.Decimal

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(remaining, lvl.Quantity)
		notional = notional.Add(take.Mul(lvl.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}

	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return notional.Div(filled), filled
}

// SlippageBps returns the estimated slippage of avgPrice from mid in basis
// points as an absolute distance: the result is never negative and does
// not say on which side of mid the fill lies.
func SlippageBps(mid, avgPrice decimal.Decimal) decimal.Decimal {
	if mid.IsZero() {
		return decimal.Zero
	}
	return avgPrice.Sub(mid).Div(mid).Mul(decimal.NewFromInt(10000)).Abs()
}

// CheckSlippage estimates the fill for a market order of side/qty against
// the supplied opposite-side book levels and rejects locally if the
// resulting slippage from mid exceeds thresholdBps. Limit orders are
// exempt and should never reach this check.
func CheckSlippage(levels []schema.BookLevel, qty, mid decimal.Decimal, thresholdBps decimal.Decimal) error {
	avgPrice, filled := EstimateFill(levels, qty)
	if filled.LessThan(qty) {
		return schema.NewError(schema.ErrSlippageGuard, "insufficient book depth to estimate fill", nil)
	}

	bps := SlippageBps(mid, avgPrice)
	if bps.GreaterThan(thresholdBps) {
		return schema.NewError(schema.ErrSlippageGuard, "estimated slippage exceeds threshold", nil)
	}
	return nil
}
