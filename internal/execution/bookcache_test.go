package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestBookCache_UnseenSymbolReturnsEmptyLevels(t *testing.T) {
	cache := NewBookCache()
	bids, asks := cache.For(schema.Intern("AAPL")).TopN(5)
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestBookCache_UpdateIsVisibleThroughScopedView(t *testing.T) {
	cache := NewBookCache()
	symbol := schema.Intern("AAPL")
	cache.Update(schema.OrderBookView{
		Symbol: symbol,
		Bids: []schema.BookLevel{{Price: decimal.NewFromFloat(100), Quantity: decimal.NewFromInt(5), Timestamp: time.Now()}},
		Asks: []schema.BookLevel{{Price: decimal.NewFromFloat(101), Quantity: decimal.NewFromInt(5), Timestamp: time.Now()}},
	})

	bids, asks := cache.For(symbol).TopN(5)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	require.True(t, bids[0].Price.Equal(decimal.NewFromFloat(100)))
}

func TestBookCache_TopNTruncatesEachSide(t *testing.T) {
	cache := NewBookCache()
	symbol := schema.Intern("AAPL")
	levels := make([]schema.BookLevel, 5)
	for i := range levels {
		levels[i] = schema.BookLevel{Price: decimal.NewFromInt(int64(100 - i)), Quantity: decimal.NewFromInt(1)}
	}
	cache.Update(schema.OrderBookView{Symbol: symbol, Bids: levels, Asks: levels})

	bids, asks := cache.For(symbol).TopN(2)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
}
