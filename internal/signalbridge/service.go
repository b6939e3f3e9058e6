package signalbridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Metrics counts signal-bridge events for /metrics.
type Metrics struct {
	BarsConsumed int64
	SignalsEmitted int64
	InferenceErrors int64
	mu sync.Mutex
}

func (m *Metrics) incr(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// symbolState is the per-symbol working set: indicator bundle plus the
// last emitted action, needed for the emit-on-change Hold policy (decided
// in place of its open question: only emit Hold when the action
// just changed to Hold, not on every bar).
type symbolState struct {
	mu sync.Mutex
	indicators *SymbolIndicators
	lastAction schema.SignalAction
	hasEmitted bool
}

// Service subscribes to bar closes, maintains per-symbol indicator state,
// calls the inference collaborator and publishes trading signals,
// preserving per-symbol bar-close ordering.
type Service struct {
	busConn *bus.Bus
	model Model
	health *health.Server
	log *zap.SugaredLogger
	metrics *Metrics
	threshold float64

	mu sync.Mutex
	states map[schema.Symbol]*symbolState
}

// NewService wires a signal bridge against an already-connected bus, an
// inference Model and an optional health server. threshold is the
// confidence-threshold rule: predictions below it collapse to
// Hold regardless of the model's raw action.
func NewService(busConn *bus.Bus, model Model, h *health.Server, log *zap.SugaredLogger, threshold float64) *Service {
	return &Service{
		busConn: busConn,
		model: model,
		health: h,
		log: log,
		metrics: &Metrics{},
		threshold: threshold,
		states: make(map[schema.Symbol]*symbolState),
	}
}

func (s *Service) stateFor(symbol schema.Symbol) *symbolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		st = &symbolState{indicators: NewSymbolIndicators()}
		s.states[symbol] = st
	}
	return st
}

// Run installs the bar subscription and blocks until ctx is cancelled.
// Each bar is handled synchronously inside the NATS callback. All bar
// subjects (market.bar.<symbol>.*) share this one subscription, whose
// callbacks nats.go runs one at a time, so bars of every symbol are
// handled serially in delivery order, and bar-close events for one symbol
// keep a strict order.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.busConn.SubscribePrefix(schema.TopicMarketBar, func(topic string, msgType schema.MessageType, data []byte) {
		if msgType != schema.TypeBar {
			return
		}
		var bar schema.Bar
		if err := schema.DecodeAs(data, schema.TypeBar, &bar); err != nil {
			s.log.Warnw("discarding malformed bar", "topic", topic, "error", err)
			return
		}
		if !bar.Closed {
			return
		}
		s.handleBar(ctx, bar)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (s *Service) handleBar(ctx context.Context, bar schema.Bar) {
	signal, publish := s.decide(ctx, bar)
	if !publish {
		return
	}
	s.publish(signal)
}

// decide runs one bar through indicator update, inference and the
// confidence-threshold/emit-on-change rules, returning the signal to
// publish (if any) and whether it should actually be published. It takes
// no bus dependency, so the decision logic is testable without a live
// connection.
func (s *Service) decide(ctx context.Context, bar schema.Bar) (schema.Signal, bool) {
	st := s.stateFor(bar.Symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	features := ComputeFeatures(bar, st.indicators)
	s.metrics.incr(&s.metrics.BarsConsumed)

	pred, err := s.model.Infer(ctx, features)
	signal := schema.Signal{
		Symbol: bar.Symbol,
		Features: features,
		Timestamp: bar.IntervalStart,
	}

	if err != nil {
		s.metrics.incr(&s.metrics.InferenceErrors)
		signal.Action = schema.ActionHold
		signal.Confidence = 0
		signal.Error = err.Error()
		if s.log != nil {
			s.log.Warnw("inference failed, holding", "symbol", bar.Symbol, "error", err)
		}
		return signal, true
	}

	action := pred.Action
	if pred.Confidence < s.threshold {
		action = schema.ActionHold
	}
	signal.Action = action
	signal.Confidence = pred.Confidence

	// Emit-on-change Hold policy: Buy/Sell always publish (the downstream
	// risk and execution services need every actionable bar-close), but a
	// Hold is only published the first time the action transitions into
	// Hold, not on every subsequent Hold bar.
	if action == schema.ActionHold && st.hasEmitted && st.lastAction == schema.ActionHold {
		return signal, false
	}

	st.lastAction = action
	st.hasEmitted = true
	return signal, true
}

func (s *Service) publish(signal schema.Signal) {
	topic := schema.ForSymbol(schema.TopicSignalGenerated, signal.Symbol)
	if err := s.busConn.Publish(topic, schema.TypeSignal, signal); err != nil {
		s.log.Warnw("signal publish failed", "symbol", signal.Symbol, "error", err)
		return
	}
	s.metrics.incr(&s.metrics.SignalsEmitted)
	if s.health != nil {
		s.health.Incr("signals_emitted", 1)
	}
}

// Snapshot returns a point-in-time copy of the bridge's counters, used by
// tests and the health surface.
func (s *Service) Snapshot() (bars, signals, errs int64) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	return s.metrics.BarsConsumed, s.metrics.SignalsEmitted, s.metrics.InferenceErrors
}
