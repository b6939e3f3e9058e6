package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func level(price, qty float64) schema.BookLevel {
	return schema.BookLevel{Price: decimal.NewFromFloat(price), Quantity: decimal.NewFromFloat(qty)}
}

// TestCheckSlippage_ScenarioFromAcceptAndRejectBoundary reproduces the
// book 10@100/10@101/10@102, mid 100.5, 50bps threshold scenario: a 30-unit
// market buy walks to an average of 101.0 (49.75bps from mid, inside the
// threshold), while a 100-unit buy exhausts the visible depth and rejects.
func TestCheckSlippage_ScenarioFromAcceptAndRejectBoundary(t *testing.T) {
	asks := []schema.BookLevel{level(100, 10), level(101, 10), level(102, 10)}
	mid := decimal.NewFromFloat(100.5)
	threshold := decimal.NewFromInt(50)

	err := CheckSlippage(asks, decimal.NewFromInt(30), mid, threshold)
	require.NoError(t, err)

	err = CheckSlippage(asks, decimal.NewFromInt(100), mid, threshold)
	require.Error(t, err)
	require.True(t, schema.IsKind(err, schema.ErrSlippageGuard))
}

func TestEstimateFill_VolumeWeightedAverage(t *testing.T) {
	asks := []schema.BookLevel{level(100, 10), level(101, 10), level(102, 10)}
	avg, filled := EstimateFill(asks, decimal.NewFromInt(30))
	require.True(t, filled.Equal(decimal.NewFromInt(30)))
	require.InDelta(t, 101.0, mustFloat(avg), 1e-9)
}

func TestEstimateFill_PartialDepthReportsShortfall(t *testing.T) {
	asks := []schema.BookLevel{level(100, 10)}
	_, filled := EstimateFill(asks, decimal.NewFromInt(30))
	require.True(t, filled.Equal(decimal.NewFromInt(10)))
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
