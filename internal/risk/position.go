// Package risk gates candidate orders against policy, maintains
// authoritative positions/P&L, and operates the circuit breaker: a
// process-global per-symbol position/limit record, broadcast on an
// interval, driven by real fill accounting and an ordered limit-check
// chain rather than simulated fields.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Ledger is the authoritative per-symbol position and daily P&L state.
// Each symbol's entry is guarded by its own mutex so risk evaluations for
// a given symbol serialize while cross-symbol evaluations proceed in
// parallel (concurrency note).
type Ledger struct {
	mu sync.Mutex
	positions map[schema.Symbol]*positionEntry
	sessionUTC time.Duration // time-of-day offset the daily P&L resets at
}

type positionEntry struct {
	mu sync.Mutex
	pos schema.Position
	dayStart time.Time
}

// NewLedger builds an empty ledger. sessionBoundary is the "HH:MM" UTC
// time-of-day at which daily P&L resets.
func NewLedger(sessionBoundary time.Duration) *Ledger {
	return &Ledger{positions: make(map[schema.Symbol]*positionEntry), sessionUTC: sessionBoundary}
}

func (l *Ledger) entryFor(symbol schema.Symbol) *positionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok {
		e = &positionEntry{pos: schema.Position{Symbol: symbol}, dayStart: time.Now().UTC()}
		l.positions[symbol] = e
	}
	return e
}

// Position returns a snapshot of one symbol's current position.
func (l *Ledger) Position(symbol schema.Symbol) schema.Position {
	e := l.entryFor(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// Positions returns a snapshot of every tracked position, used for
// portfolio-level aggregate checks (notional exposure, concentration).
func (l *Ledger) Positions() []schema.Position {
	l.mu.Lock()
	entries := make([]*positionEntry, 0, len(l.positions))
	for _, e := range l.positions {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	out := make([]schema.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos)
		e.mu.Unlock()
	}
	return out
}

// ApplyFill updates a position using weighted-average entry for additions
// that keep or extend the current side, and realizes P&L on fills that
// reduce or flip the sign of the position.
func (l *Ledger) ApplyFill(fill schema.Fill) schema.Position {
	e := l.entryFor(fill.Symbol)
	e.mu.Lock()
	defer e.mu.Unlock()

	signedQty := fill.Quantity
	if fill.Side == schema.SideSell {
		signedQty = signedQty.Neg()
	}

	pos := &e.pos
	prevQty := pos.Quantity
	newQty := prevQty.Add(signedQty)

	switch {
	case prevQty.IsZero() || sameSign(prevQty, signedQty):
		// Pure addition: weighted-average entry.
		if newQty.IsZero() {
			pos.AvgEntry = decimal.Zero
		} else {
			prevNotional := prevQty.Abs().Mul(pos.AvgEntry)
			addNotional := fill.Quantity.Mul(fill.Price)
			pos.AvgEntry = prevNotional.Add(addNotional).Div(newQty.Abs())
		}
	default:
		// Reducing or flipping: realize P&L on the portion that closes
		// the existing position.
		closingQty := decimal.Min(prevQty.Abs(), signedQty.Abs())
		sideSign := decimal.NewFromInt(int64(sign(prevQty)))
		realized := closingQty.Mul(fill.Price.Sub(pos.AvgEntry)).Mul(sideSign)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.DailyPnL = pos.DailyPnL.Add(realized)

		if signedQty.Abs().GreaterThan(prevQty.Abs()) {
			// Flipped through zero: the remainder opens a new position
			// at the fill price.
			pos.AvgEntry = fill.Price
		} else if newQty.IsZero() {
			pos.AvgEntry = decimal.Zero
		}
	}

	pos.RealizedPnL = pos.RealizedPnL.Sub(fill.Fee)
	pos.DailyPnL = pos.DailyPnL.Sub(fill.Fee)
	pos.RealizedPnL = pos.RealizedPnL.Sub(fill.Funding)
	pos.DailyPnL = pos.DailyPnL.Sub(fill.Funding)

	pos.Quantity = newQty
	pos.UpdatedAt = fill.Timestamp
	l.recomputeUnrealized(pos)
	return *pos
}

// MarkPrice updates a symbol's mark and recomputes unrealized P&L from it.
func (l *Ledger) MarkPrice(symbol schema.Symbol, mark schema.Price) schema.Position {
	e := l.entryFor(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.MarkPrice = mark
	l.recomputeUnrealized(&e.pos)
	return e.pos
}

func (l *Ledger) recomputeUnrealized(pos *schema.Position) {
	if pos.Quantity.IsZero() || pos.MarkPrice.IsZero() {
		pos.UnrealizedPnL = decimal.Zero
		return
	}
	pos.UnrealizedPnL = pos.Quantity.Mul(pos.MarkPrice.Sub(pos.AvgEntry))
}

// ResetDaily zeroes every symbol's daily P&L tally atomically, called at
// the configured session boundary crossing.
func (l *Ledger) ResetDaily(now time.Time) {
	l.mu.Lock()
	entries := make([]*positionEntry, 0, len(l.positions))
	for _, e := range l.positions {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.pos.DailyPnL = decimal.Zero
		e.dayStart = now
		e.mu.Unlock()
	}
}

func sign(d decimal.Decimal) int {
	if d.IsNegative() {
		return -1
	}
	return 1
}

func sameSign(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsPositive() == b.IsPositive()
}
