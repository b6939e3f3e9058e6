package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// BarAggregator is one tick-driven OHLCV accumulator for a single
// (symbol, interval) pair. Multiple intervals are independent
// aggregators fed by the same trade stream; the caller constructs one per
// (symbol, interval).
type BarAggregator struct {
	mu sync.Mutex
	symbol schema.Symbol
	interval string
	window time.Duration

	open bool
	bar schema.Bar
	windowStart time.Time
}

// NewBarAggregator builds an aggregator for symbol over the named interval
// (e.g. "1s", "1m", "5m"); window is the interval's wall-clock duration.
func NewBarAggregator(symbol schema.Symbol, interval string, window time.Duration) *BarAggregator {
	return &BarAggregator{symbol: symbol, interval: interval, window: window}
}

// OnTrade feeds one trade print into the aggregator. It returns a closed
// Bar when the trade crosses an interval boundary (the previous window's
// bar, if one was open), or ok=false if no bar closed this call. If no
// trades arrive in a window, no bar is ever emitted for that window —
// consumers must tolerate gaps.
func (a *BarAggregator) OnTrade(price, qty decimal.Decimal, ts time.Time) (closed schema.Bar, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := ts.Truncate(a.window)

	if !a.open {
		a.startWindow(start, price, qty, ts)
		return schema.Bar{}, false
	}

	if start.After(a.windowStart) {
		closed = a.bar
		closed.Closed = true
		a.startWindow(start, price, qty, ts)
		return closed, true
	}

	a.accumulate(price, qty, ts)
	return schema.Bar{}, false
}

func (a *BarAggregator) startWindow(start time.Time, price, qty decimal.Decimal, ts time.Time) {
	a.windowStart = start
	a.open = true
	a.bar = schema.Bar{
		Symbol: a.symbol,
		Interval: a.interval,
		Open: price,
		High: price,
		Low: price,
		Close: price,
		Volume: qty,
		IntervalStart: start,
		Closed: false,
	}
}

func (a *BarAggregator) accumulate(price, qty decimal.Decimal, ts time.Time) {
	if price.GreaterThan(a.bar.High) {
		a.bar.High = price
	}
	if price.LessThan(a.bar.Low) {
		a.bar.Low = price
	}
	a.bar.Close = price
	a.bar.Volume = a.bar.Volume.Add(qty)
}

// Current returns the in-progress (unclosed) bar, if any.
func (a *BarAggregator) Current() (schema.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bar, a.open
}

// Flush force-closes whatever bar is open, e.g. on shutdown. Returns
// ok=false if no bar is open.
func (a *BarAggregator) Flush() (schema.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return schema.Bar{}, false
	}
	closed := a.bar
	closed.Closed = true
	a.open = false
	return closed, true
}
