package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestBarAggregator_SingleTickBarHasEqualOHLC(t *testing.T) {
	agg := NewBarAggregator(schema.Intern("AAPL"), "1s", time.Second)
	base := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	_, ok := agg.OnTrade(decimal.NewFromFloat(175.51), decimal.NewFromInt(50), base)
	require.False(t, ok)

	closed, ok := agg.Flush()
	require.True(t, ok)
	require.True(t, closed.Open.Equal(closed.High))
	require.True(t, closed.Open.Equal(closed.Low))
	require.True(t, closed.Open.Equal(closed.Close))
}

func TestBarAggregator_ClosesOnIntervalBoundary(t *testing.T) {
	agg := NewBarAggregator(schema.Intern("AAPL"), "1s", time.Second)
	base := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	agg.OnTrade(decimal.NewFromFloat(100), decimal.NewFromInt(1), base)
	agg.OnTrade(decimal.NewFromFloat(101), decimal.NewFromInt(1), base.Add(200*time.Millisecond))
	agg.OnTrade(decimal.NewFromFloat(99), decimal.NewFromInt(1), base.Add(400*time.Millisecond))

	closed, ok := agg.OnTrade(decimal.NewFromFloat(105), decimal.NewFromInt(1), base.Add(1100*time.Millisecond))
	require.True(t, ok)
	require.True(t, closed.Closed)
	require.True(t, closed.Open.Equal(decimal.NewFromFloat(100)))
	require.True(t, closed.High.Equal(decimal.NewFromFloat(101)))
	require.True(t, closed.Low.Equal(decimal.NewFromFloat(99)))
	require.True(t, closed.Close.Equal(decimal.NewFromFloat(99)))
	require.True(t, closed.Volume.Equal(decimal.NewFromInt(3)))

	current, open := agg.Current()
	require.True(t, open)
	require.True(t, current.Open.Equal(decimal.NewFromFloat(105)))
}

func TestBarAggregator_NoTradesNoBar(t *testing.T) {
	agg := NewBarAggregator(schema.Intern("AAPL"), "1s", time.Second)
	_, ok := agg.Flush()
	require.False(t, ok)
}

func TestBarAggregator_HighLowInvariants(t *testing.T) {
	agg := NewBarAggregator(schema.Intern("AAPL"), "1s", time.Second)
	base := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	for i, p := range []float64{100, 105, 95, 102} {
		agg.OnTrade(decimal.NewFromFloat(p), decimal.NewFromInt(1), base.Add(time.Duration(i*100)*time.Millisecond))
	}
	bar, _ := agg.Flush()
	require.True(t, bar.High.GreaterThanOrEqual(bar.Open))
	require.True(t, bar.High.GreaterThanOrEqual(bar.Close))
	require.True(t, bar.High.GreaterThanOrEqual(bar.Low))
	require.True(t, bar.Low.LessThanOrEqual(bar.Open))
	require.True(t, bar.Low.LessThanOrEqual(bar.Close))
}
