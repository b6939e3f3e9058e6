// Package execution submits approved orders to the venue, tracks them
// through their lifecycle, and publishes authoritative order-status and
// fill events. A simulated fill venue sits behind the same VenueClient
// boundary as the real one, behind a shared state machine, retry policy
// and rate limiter.
package execution

import (
	"fmt"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Transition is one edge of the order state DAG.
type Transition string

const (
	TransitionSubmit Transition = "submit"
	TransitionAck Transition = "ack"
	TransitionPartial Transition = "partial"
	TransitionMore Transition = "more"
	TransitionFinal Transition = "final"
	TransitionCancel Transition = "cancel"
	TransitionError Transition = "error"
)

// allowed enumerates every edge of:
//
//	Pending --submit--> Submitted --ack--> Working
//	Working --partial--> PartiallyFilled --more--> PartiallyFilled | --final--> Filled
//	Working --cancel--> Cancelling --ack--> Cancelled
//	Any --error--> Rejected
var allowed = map[schema.OrderState]map[Transition]schema.OrderState{
	schema.OrderPending: {
		TransitionSubmit: schema.OrderSubmitted,
		TransitionError: schema.OrderRejected,
	},
	schema.OrderSubmitted: {
		TransitionAck: schema.OrderWorking,
		TransitionError: schema.OrderRejected,
	},
	schema.OrderWorking: {
		TransitionPartial: schema.OrderPartiallyFilled,
		TransitionFinal: schema.OrderFilled,
		TransitionCancel: schema.OrderCancelling,
		TransitionError: schema.OrderRejected,
	},
	schema.OrderPartiallyFilled: {
		TransitionMore: schema.OrderPartiallyFilled,
		TransitionFinal: schema.OrderFilled,
		TransitionCancel: schema.OrderCancelling,
		TransitionError: schema.OrderRejected,
	},
	schema.OrderCancelling: {
		TransitionAck: schema.OrderCancelled,
		TransitionError: schema.OrderRejected,
	},
}

// Apply advances state via transition, returning an error if the edge is
// not in the DAG. Terminal states accept no transition.
func Apply(state schema.OrderState, t Transition) (schema.OrderState, error) {
	edges, ok := allowed[state]
	if !ok {
		return state, fmt.Errorf("execution: %s is a terminal state, no transitions allowed", state)
	}
	next, ok := edges[t]
	if !ok {
		return state, fmt.Errorf("execution: no transition %s from state %s", t, state)
	}
	return next, nil
}
