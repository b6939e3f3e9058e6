package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names a wire variant. The recognized set enumerates every
// entity and command plus the two control messages.
type MessageType string

const (
	TypeTrade MessageType = "Trade"
	TypeQuote MessageType = "Quote"
	TypeBookSnapshot MessageType = "BookSnapshot"
	TypeBookDelta MessageType = "BookDelta"
	TypeOrderBookView MessageType = "OrderBookView"
	TypeBar MessageType = "Bar"
	TypeSignal MessageType = "Signal"
	TypeOrder MessageType = "Order"
	TypeFill MessageType = "Fill"
	TypePosition MessageType = "Position"
	TypeRiskRejected MessageType = "RiskRejected"
	TypeCircuitBreaker MessageType = "CircuitBreaker"
	TypeHeartbeat MessageType = "Heartbeat"
	TypeShutdown MessageType = "Shutdown"
)

// Envelope is the tagged-JSON payload carried by every bus frame:
// {"type": "<VariantName>", "data": {...}}
type Envelope struct {
	Type MessageType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Heartbeat is a periodic liveness control message.
type Heartbeat struct {
	Component string `json:"component"`
	Timestamp time.Time `json:"timestamp"`
}

// Shutdown is the final control message a service publishes before it
// drains and exits (cancellation).
type Shutdown struct {
	Component string `json:"component"`
	Reason string `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskRejected is published instead of Order when a limit check fails.
type RiskRejected struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol Symbol `json:"symbol"`
	Reason RiskRejectReason `json:"reason"`
	Detail string `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CircuitBreakerEvent describes one breaker state transition. No service
// publishes it; the risk service broadcasts CircuitBreakerStatus on a timer
// instead, so individual transitions are not announced.
type CircuitBreakerEvent struct {
	State BreakerState `json:"state"`
	Reason string `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode wraps a typed payload into a tagged Envelope and marshals it.
func Encode(t MessageType, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema: encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// Decode unmarshals a tagged envelope and returns its type and raw payload,
// so the caller can dispatch on Type before decoding Data into a concrete
// struct. A malformed envelope is a protocol-parse error, never a
// panic.
func Decode(raw []byte) (MessageType, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, NewError(ErrProtocolParse, "malformed envelope", err)
	}
	if env.Type == "" {
		return "", nil, NewError(ErrProtocolParse, "envelope missing type", nil)
	}
	return env.Type, env.Data, nil
}

// DecodeAs is a convenience wrapper: decode the envelope and unmarshal its
// data into dst in one step, checking the type tag matches want.
func DecodeAs(raw []byte, want MessageType, dst interface{}) error {
	typ, data, err := Decode(raw)
	if err != nil {
		return err
	}
	if typ != want {
		return NewError(ErrProtocolParse, fmt.Sprintf("expected type %s, got %s", want, typ), nil)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewError(ErrProtocolParse, fmt.Sprintf("decode %s payload", typ), err)
	}
	return nil
}
