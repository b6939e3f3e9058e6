package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestBuildBreakerStatus_ReflectsClosedBreakerAndEmptyLedger(t *testing.T) {
	breaker := NewBreaker(time.Minute)
	now := time.Now().UTC()

	status := BuildBreakerStatus(breaker, nil, now)

	require.Equal(t, schema.BreakerClosed, status.State)
	require.Empty(t, status.Reason)
	require.True(t, status.DailyPnL.IsZero())
	require.Equal(t, 0, status.OpenPositions)
	require.Equal(t, now, status.Timestamp)
}

func TestBuildBreakerStatus_AggregatesDailyPnLAndOpenPositionCount(t *testing.T) {
	breaker := NewBreaker(time.Minute)
	breaker.Trip("daily loss cap breach", time.Now())

	positions := []schema.Position{
		{Symbol: schema.Intern("BTCUSDT"), Quantity: decimal.NewFromInt(2), DailyPnL: decimal.NewFromInt(100)},
		{Symbol: schema.Intern("ETHUSDT"), Quantity: decimal.Zero, DailyPnL: decimal.NewFromInt(-40)},
		{Symbol: schema.Intern("SOLUSDT"), Quantity: decimal.NewFromInt(-5), DailyPnL: decimal.NewFromInt(10)},
	}

	status := BuildBreakerStatus(breaker, positions, time.Now().UTC())

	require.Equal(t, schema.BreakerOpen, status.State)
	require.Equal(t, "daily loss cap breach", status.Reason)
	require.True(t, status.DailyPnL.Equal(decimal.NewFromInt(70)))
	require.Equal(t, 2, status.OpenPositions) // the flat ETHUSDT position doesn't count
}
