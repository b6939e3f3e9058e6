package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestApply_HappyPathToFilled(t *testing.T) {
	state := schema.OrderPending
	var err error

	state, err = Apply(state, TransitionSubmit)
	require.NoError(t, err)
	require.Equal(t, schema.OrderSubmitted, state)

	state, err = Apply(state, TransitionAck)
	require.NoError(t, err)
	require.Equal(t, schema.OrderWorking, state)

	state, err = Apply(state, TransitionPartial)
	require.NoError(t, err)
	require.Equal(t, schema.OrderPartiallyFilled, state)

	state, err = Apply(state, TransitionMore)
	require.NoError(t, err)
	require.Equal(t, schema.OrderPartiallyFilled, state)

	state, err = Apply(state, TransitionFinal)
	require.NoError(t, err)
	require.Equal(t, schema.OrderFilled, state)
}

func TestApply_CancelPath(t *testing.T) {
	state, err := Apply(schema.OrderWorking, TransitionCancel)
	require.NoError(t, err)
	require.Equal(t, schema.OrderCancelling, state)

	state, err = Apply(state, TransitionAck)
	require.NoError(t, err)
	require.Equal(t, schema.OrderCancelled, state)
}

func TestApply_ErrorFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []schema.OrderState{
		schema.OrderPending, schema.OrderSubmitted, schema.OrderWorking,
		schema.OrderPartiallyFilled, schema.OrderCancelling,
	} {
		next, err := Apply(s, TransitionError)
		require.NoError(t, err, "state %s should accept error transition", s)
		require.Equal(t, schema.OrderRejected, next)
	}
}

func TestApply_TerminalStatesAcceptNoTransition(t *testing.T) {
	for _, s := range []schema.OrderState{schema.OrderFilled, schema.OrderCancelled, schema.OrderRejected} {
		_, err := Apply(s, TransitionSubmit)
		require.Error(t, err)
		_, err = Apply(s, TransitionError)
		require.Error(t, err)
	}
}

func TestApply_RejectsTransitionOutsideTheDAG(t *testing.T) {
	_, err := Apply(schema.OrderPending, TransitionAck)
	require.Error(t, err)

	_, err = Apply(schema.OrderWorking, TransitionSubmit)
	require.Error(t, err)
}
