package signalbridge

import (
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// FeatureVector is the result of the pure function of (bar, indicator
// state) passed to the external inference collaborator: same bar and
// same indicator snapshot always produce the same vector.
type FeatureVector map[string]float64

// ComputeFeatures updates ind in place from bar and returns the resulting
// feature snapshot. Update happens here (not a separate step) because the
// indicator recurrences are themselves the "state" the function is pure
// over — the snapshot taken immediately after update is what gets fed to
// inference.
func ComputeFeatures(bar schema.Bar, ind *SymbolIndicators) FeatureVector {
	close, _ := bar.Close.Float64()
	high, _ := bar.High.Float64()
	low, _ := bar.Low.Float64()
	volume, _ := bar.Volume.Float64()

	sma20 := ind.SMA20.Update(close)
	sma50 := ind.SMA50.Update(close)
	rsi := ind.RSI14.Update(close)
	macd, signal, hist := ind.MACD.Update(close)
	mid, upper, lower := ind.BB.Update(close)
	atr := ind.ATR14.Update(high, low, close)
	ret, vol := ind.Returns.Update(close)

	features := FeatureVector{
		"close": close,
		"volume": volume,
		"sma_20": sma20,
		"sma_50": sma50,
		"rsi_14": rsi,
		"macd": macd,
		"macd_signal": signal,
		"macd_hist": hist,
		"bb_mid": mid,
		"bb_upper": upper,
		"bb_lower": lower,
		"atr_14": atr,
		"return_1": ret,
		"volatility": vol,
	}
	return features
}
