package signalbridge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func bar(close float64) schema.Bar {
	return schema.Bar{
		Symbol: schema.Intern("AAPL"),
		Open:   decimal.NewFromFloat(close),
		High:   decimal.NewFromFloat(close + 1),
		Low:    decimal.NewFromFloat(close - 1),
		Close:  decimal.NewFromFloat(close),
		Volume: decimal.NewFromInt(10),
		Closed: true,
	}
}

func TestComputeFeatures_ContainsAllKeys(t *testing.T) {
	ind := NewSymbolIndicators()
	f := ComputeFeatures(bar(100), ind)

	for _, k := range []string{
		"close", "volume", "sma_20", "sma_50", "rsi_14",
		"macd", "macd_signal", "macd_hist", "bb_mid", "bb_upper", "bb_lower",
		"atr_14", "return_1", "volatility",
	} {
		_, ok := f[k]
		require.True(t, ok, "missing feature %s", k)
	}
}

func TestComputeFeatures_IsDeterministicGivenSameState(t *testing.T) {
	indA := NewSymbolIndicators()
	indB := NewSymbolIndicators()

	closes := []float64{100, 101, 99, 102, 98, 103, 97, 104}
	var lastA, lastB FeatureVector
	for _, c := range closes {
		lastA = ComputeFeatures(bar(c), indA)
		lastB = ComputeFeatures(bar(c), indB)
	}
	require.Equal(t, lastA, lastB)
}
