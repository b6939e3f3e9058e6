package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestStopMonitor_StaticStopLossTriggersOnLongLoss(t *testing.T) {
	m := NewStopMonitor()
	pos := schema.Position{Symbol: schema.Intern("AAPL"), Quantity: d(10), AvgEntry: d(100)}
	cfg := StopConfig{StopLossPct: d(0.05)}

	side, qty, trigger := m.Evaluate(pos, cfg, d(94)) // 6% down
	require.True(t, trigger)
	require.Equal(t, schema.SideSell, side)
	require.True(t, qty.Equal(d(10)))
}

func TestStopMonitor_StaticStopLossDoesNotTriggerWithinBand(t *testing.T) {
	m := NewStopMonitor()
	pos := schema.Position{Symbol: schema.Intern("AAPL"), Quantity: d(10), AvgEntry: d(100)}
	cfg := StopConfig{StopLossPct: d(0.05)}

	_, _, trigger := m.Evaluate(pos, cfg, d(97))
	require.False(t, trigger)
}

func TestStopMonitor_TrailingStopNeverLoosens(t *testing.T) {
	m := NewStopMonitor()
	sym := schema.Intern("AAPL")
	pos := schema.Position{Symbol: sym, Quantity: d(10), AvgEntry: d(100)}
	cfg := StopConfig{TrailingPct: d(0.05)}

	// price runs up to 120, then retraces partway to 115: no trigger, and
	// the tracked favorable level must not have loosened back down.
	_, _, trigger := m.Evaluate(pos, cfg, d(120))
	require.False(t, trigger)
	_, _, trigger = m.Evaluate(pos, cfg, d(115))
	require.False(t, trigger) // 115 is only 4.2% below 120

	// now retrace further: 5%+ below the best-observed 120 triggers.
	side, qty, trigger := m.Evaluate(pos, cfg, d(113))
	require.True(t, trigger)
	require.Equal(t, schema.SideSell, side)
	require.True(t, qty.Equal(d(10)))
}

func TestStopMonitor_TrailingStopOnShortPosition(t *testing.T) {
	m := NewStopMonitor()
	sym := schema.Intern("AAPL")
	pos := schema.Position{Symbol: sym, Quantity: d(-10), AvgEntry: d(100)}
	cfg := StopConfig{TrailingPct: d(0.05)}

	m.Evaluate(pos, cfg, d(80)) // best favorable for a short is the lowest price seen
	side, _, trigger := m.Evaluate(pos, cfg, d(85))
	require.True(t, trigger) // 85 is 6.25% above the 80 low
	require.Equal(t, schema.SideBuy, side)
}

func TestStopMonitor_ResetClearsTrailingReference(t *testing.T) {
	m := NewStopMonitor()
	sym := schema.Intern("AAPL")
	pos := schema.Position{Symbol: sym, Quantity: d(10), AvgEntry: d(100)}
	cfg := StopConfig{TrailingPct: d(0.05)}

	m.Evaluate(pos, cfg, d(120))
	m.Reset(sym)

	// after reset, a fresh high of 110 is the new favorable reference.
	_, _, trigger := m.Evaluate(pos, cfg, d(110))
	require.False(t, trigger)
}
