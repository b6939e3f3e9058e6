package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestRateLimiter_AllowsBurstWithinLimit(t *testing.T) {
	rl := NewRateLimiter(600, time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
}

func TestRateLimiter_RejectsLocallyWhenExhaustedPastDeadline(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond) // 1/min, essentially empty after the first token
	require.NoError(t, rl.Acquire(context.Background()))

	err := rl.Acquire(context.Background())
	require.Error(t, err)
	require.True(t, schema.IsKind(err, schema.ErrOrderRejection))
}
