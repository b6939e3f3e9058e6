package signalbridge

import (
	"context"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Prediction is the raw output of the external inference collaborator
// before the confidence-threshold rule is applied.
type Prediction struct {
	Action schema.SignalAction
	Confidence float64
}

// Model is the external ML inference boundary: "the core
// depends on Infer(features) -> (action, confidence) and on a separate
// LoadModel(path) lifecycle; it does not depend on a specific inference
// framework." Implementations plug in a real model server, an ONNX
// runtime binding, or (as here, for tests and local runs) a deterministic
// rule-based stand-in.
type Model interface {
	Infer(ctx context.Context, features FeatureVector) (Prediction, error)
}

// LoadModel is the separate lifecycle step named in ; concrete
// implementations resolve path to whatever artifact their framework needs.
type LoadModel func(ctx context.Context, path string) (Model, error)

// RuleBasedModel is a deterministic stand-in inference collaborator used
// when no external model is configured (local runs, unit tests). It
// combines RSI and MACD histogram into an action, mirroring the kind of
// simple analytic rule the "mixture of analytic indicators and an
// external ML inference step" describes as the pre-ML baseline.
type RuleBasedModel struct {
	OverboughtRSI float64
	OversoldRSI float64
}

// NewRuleBasedModel returns a model with standard 70/30 RSI thresholds.
func NewRuleBasedModel() *RuleBasedModel {
	return &RuleBasedModel{OverboughtRSI: 70, OversoldRSI: 30}
}

func (m *RuleBasedModel) Infer(_ context.Context, f FeatureVector) (Prediction, error) {
	rsi := f["rsi_14"]
	hist := f["macd_hist"]

	switch {
	case rsi <= m.OversoldRSI && hist > 0:
		return Prediction{Action: schema.ActionBuy, Confidence: confidenceFromRSI(m.OversoldRSI, rsi, true)}, nil
	case rsi >= m.OverboughtRSI && hist < 0:
		return Prediction{Action: schema.ActionSell, Confidence: confidenceFromRSI(m.OverboughtRSI, rsi, false)}, nil
	default:
		return Prediction{Action: schema.ActionHold, Confidence: 0.5}, nil
	}
}

func confidenceFromRSI(threshold, rsi float64, oversold bool) float64 {
	var distance float64
	if oversold {
		distance = threshold - rsi
	} else {
		distance = rsi - threshold
	}
	if distance < 0 {
		distance = 0
	}
	conf := 0.5 + distance/100
	if conf > 1 {
		conf = 1
	}
	return conf
}
