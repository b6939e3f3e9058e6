package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// TrailingStopRef selects what price moves the trailing stop's reference
// point (open question, committed as a configurable default). Under
// "trade" (or unset) Service evaluates stops against the mid of each
// market.quote update; under "bar_close" Service evaluates no stops at
// all, since it has no bar subscription.
type TrailingStopRef string

const (
	TrailingStopRefTrade TrailingStopRef = "trade"
	TrailingStopRefBarClose TrailingStopRef = "bar_close"
)

// StopConfig is one position's optional static and trailing stop-loss
// policy. There is no take-profit level.
type StopConfig struct {
	StopLossPct decimal.Decimal // 0 disables
	TrailingPct decimal.Decimal // 0 disables
	TrailingStopRef TrailingStopRef
}

type stopTracker struct {
	mu sync.Mutex
	bestFavorable decimal.Decimal
	entrySet bool
}

// StopMonitor tracks, per symbol, the best observed favorable price for a
// trailing stop and never loosens the trigger level.
type StopMonitor struct {
	mu sync.Mutex
	trackers map[schema.Symbol]*stopTracker
}

// NewStopMonitor builds an empty monitor.
func NewStopMonitor() *StopMonitor {
	return &StopMonitor{trackers: make(map[schema.Symbol]*stopTracker)}
}

func (m *StopMonitor) trackerFor(symbol schema.Symbol) *stopTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[symbol]
	if !ok {
		t = &stopTracker{}
		m.trackers[symbol] = t
	}
	return t
}

// Reset clears a symbol's trailing-stop tracker, called when the position
// is flattened.
func (m *StopMonitor) Reset(symbol schema.Symbol) {
	t := m.trackerFor(symbol)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entrySet = false
	t.bestFavorable = decimal.Zero
}

// Evaluate checks whether the given reference price (chosen by the caller)
// triggers the static or trailing stop for pos under
// cfg, and returns a synthesized flattening market order side/quantity if
// so. A trailing stop's reference only ever moves in the favorable
// direction — observing an unfavorable price never loosens it.
func (m *StopMonitor) Evaluate(pos schema.Position, cfg StopConfig, refPrice decimal.Decimal) (side schema.Side, qty decimal.Decimal, trigger bool) {
	if pos.Quantity.IsZero() || refPrice.IsZero() {
		return "", decimal.Zero, false
	}

	long := pos.Quantity.IsPositive()

	if !cfg.StopLossPct.IsZero() {
		var loss decimal.Decimal
		if long {
			loss = pos.AvgEntry.Sub(refPrice).Div(pos.AvgEntry)
		} else {
			loss = refPrice.Sub(pos.AvgEntry).Div(pos.AvgEntry)
		}
		if loss.GreaterThanOrEqual(cfg.StopLossPct) {
			return flatteningSide(long), pos.Quantity.Abs(), true
		}
	}

	if !cfg.TrailingPct.IsZero() {
		t := m.trackerFor(pos.Symbol)
		t.mu.Lock()
		if !t.entrySet || (long && refPrice.GreaterThan(t.bestFavorable)) || (!long && (t.bestFavorable.IsZero() || refPrice.LessThan(t.bestFavorable))) {
			t.bestFavorable = refPrice
			t.entrySet = true
		}
		best := t.bestFavorable
		t.mu.Unlock()

		var retrace decimal.Decimal
		if long {
			retrace = best.Sub(refPrice).Div(best)
		} else if !best.IsZero() {
			retrace = refPrice.Sub(best).Div(best)
		}
		if retrace.GreaterThanOrEqual(cfg.TrailingPct) {
			return flatteningSide(long), pos.Quantity.Abs(), true
		}
	}

	return "", decimal.Zero, false
}

func flatteningSide(long bool) schema.Side {
	if long {
		return schema.SideSell
	}
	return schema.SideBuy
}
