package risk

import (
	"sync"
	"time"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Breaker implements the circuit-breaker state machine:
// Closed -> Tripping -> Open -> Closed, with a cool-down and a normalised
// triggering condition required before a self-reset is allowed.
type Breaker struct {
	mu sync.Mutex
	state schema.BreakerState
	cooldown time.Duration
	openedAt time.Time
	trippedReason string
	normalisedSince time.Time
	wasNormalised bool
}

// NewBreaker builds a Closed breaker with the given cool-down duration.
func NewBreaker(cooldown time.Duration) *Breaker {
	return &Breaker{state: schema.BreakerClosed, cooldown: cooldown}
}

// State returns the current breaker state.
func (b *Breaker) State() schema.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reason returns the condition that tripped the breaker into its current
// Open episode, or "" while Closed.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == schema.BreakerClosed {
		return ""
	}
	return b.trippedReason
}

// Trip moves Closed/Tripping straight to Open on any of the trigger conditions (daily loss cap breach, fill rejection rate, intraday
// volatility spike); the transition is immediate, with no observable
// Tripping window held open by the caller.
func (b *Breaker) Trip(reason string, now time.Time) (schema.BreakerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == schema.BreakerOpen {
		return b.state, false
	}
	b.state = schema.BreakerOpen
	b.openedAt = now
	b.trippedReason = reason
	b.wasNormalised = false
	return b.state, true
}

// ObserveNormalised records that the triggering condition is currently
// within normal bounds. Reset only succeeds once this has held true
// continuously for at least the cool-down duration.
func (b *Breaker) ObserveNormalised(normalised bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != schema.BreakerOpen {
		return
	}
	if !normalised {
		b.wasNormalised = false
		return
	}
	if !b.wasNormalised {
		b.wasNormalised = true
		b.normalisedSince = now
	}
}

// TryReset closes the breaker if enough cool-down time has elapsed since
// it opened and the triggering condition has stayed normalised for at
// least as long. A manual reset bypasses the normalisation requirement
// (policy or operator driven), but never bypasses the cool-down.
func (b *Breaker) TryReset(now time.Time, manual bool) (schema.BreakerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != schema.BreakerOpen {
		return b.state, false
	}
	if now.Sub(b.openedAt) < b.cooldown {
		return b.state, false
	}
	if !manual {
		if !b.wasNormalised || now.Sub(b.normalisedSince) < b.cooldown {
			return b.state, false
		}
	}
	b.state = schema.BreakerClosed
	return b.state, true
}

// AllowsOrder reports whether an order of the given reducing-ness is
// permitted while the breaker is in its current state. Only strictly
// reducing orders pass while Open (limit check 1).
func (b *Breaker) AllowsOrder(reducesPosition bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != schema.BreakerOpen {
		return true
	}
	return reducesPosition
}
