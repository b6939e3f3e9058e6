package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func lvl(price, qty float64) schema.BookLevel {
	return schema.BookLevel{Price: decimal.NewFromFloat(price), Quantity: decimal.NewFromFloat(qty), Timestamp: time.Now()}
}

func TestOrderBook_ColdStartHappyPath(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))

	err := ob.ApplySnapshot(schema.BookSnapshot{
		Symbol:       schema.Intern("AAPL"),
		Bids:         []schema.BookLevel{lvl(175.50, 100)},
		Asks:         []schema.BookLevel{lvl(175.51, 150)},
		LastUpdateID: 100,
	})
	require.NoError(t, err)

	view := ob.View()
	bid, ask := view.BestBidAsk()
	require.True(t, bid.LessThan(ask))
	require.Equal(t, int64(100), view.LastUpdateID)

	err = ob.ApplyDelta(schema.BookDelta{
		Symbol: schema.Intern("AAPL"), FirstID: 101, LastID: 101,
		Bids: []schema.BookLevel{lvl(175.50, 120)},
	})
	require.NoError(t, err)

	view = ob.View()
	require.True(t, view.Bids[0].Quantity.Equal(decimal.NewFromFloat(120)))
}

func TestOrderBook_SequenceGapTriggersResync(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 100,
		Bids: []schema.BookLevel{lvl(100, 1)}, Asks: []schema.BookLevel{lvl(101, 1)},
	}))

	err := ob.ApplyDelta(schema.BookDelta{Symbol: schema.Intern("AAPL"), FirstID: 105, LastID: 105})
	require.Error(t, err)
	require.True(t, schema.IsKind(err, schema.ErrBookSequenceGap))
	require.False(t, ob.Bootstrapped())
}

func TestOrderBook_ZeroQuantityDeletesLevel(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 1,
		Bids: []schema.BookLevel{lvl(100, 5)}, Asks: []schema.BookLevel{lvl(101, 5)},
	}))

	require.NoError(t, ob.ApplyDelta(schema.BookDelta{
		Symbol: schema.Intern("AAPL"), FirstID: 2, LastID: 2,
		Bids: []schema.BookLevel{{Price: decimal.NewFromFloat(100), Quantity: decimal.Zero}},
	}))

	view := ob.View()
	require.Empty(t, view.Bids)
}

func TestOrderBook_ZeroQuantityOnMissingLevelIsNoOp(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 1,
		Bids: []schema.BookLevel{lvl(100, 5)}, Asks: []schema.BookLevel{lvl(101, 5)},
	}))

	require.NoError(t, ob.ApplyDelta(schema.BookDelta{
		Symbol: schema.Intern("AAPL"), FirstID: 2, LastID: 2,
		Bids: []schema.BookLevel{{Price: decimal.NewFromFloat(50), Quantity: decimal.Zero}},
	}))

	view := ob.View()
	require.Len(t, view.Bids, 1)
}

func TestOrderBook_CrossedBookMarksSuspect(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 1,
		Bids: []schema.BookLevel{lvl(100, 5)}, Asks: []schema.BookLevel{lvl(101, 5)},
	}))

	err := ob.ApplyDelta(schema.BookDelta{
		Symbol: schema.Intern("AAPL"), FirstID: 2, LastID: 2,
		Bids: []schema.BookLevel{lvl(102, 5)}, // now crosses the 101 ask
	})
	require.Error(t, err)
	require.True(t, ob.Suspect())
	require.Equal(t, int64(1), ob.CrossedFaultCount())
}

func TestOrderBook_BidsAndAsksStrictlyMonotonic(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 1,
		Bids: []schema.BookLevel{lvl(100, 1), lvl(99, 1), lvl(98, 1)},
		Asks: []schema.BookLevel{lvl(101, 1), lvl(102, 1), lvl(103, 1)},
	}))

	view := ob.View()
	for i := 1; i < len(view.Bids); i++ {
		require.True(t, view.Bids[i-1].Price.GreaterThan(view.Bids[i].Price))
	}
	for i := 1; i < len(view.Asks); i++ {
		require.True(t, view.Asks[i-1].Price.LessThan(view.Asks[i].Price))
	}
}

func TestOrderBook_BufferedDeltaBeforeSnapshot(t *testing.T) {
	ob := NewOrderBook(schema.Intern("AAPL"))
	// delta arrives before bootstrap: buffered, not applied
	require.NoError(t, ob.ApplyDelta(schema.BookDelta{Symbol: schema.Intern("AAPL"), FirstID: 50, LastID: 50, Bids: []schema.BookLevel{lvl(100, 1)}}))
	require.False(t, ob.Bootstrapped())

	// snapshot id 60 discards the stale buffered delta (50 <= 60)
	require.NoError(t, ob.ApplySnapshot(schema.BookSnapshot{
		Symbol: schema.Intern("AAPL"), LastUpdateID: 60,
		Bids: []schema.BookLevel{lvl(99, 1)}, Asks: []schema.BookLevel{lvl(101, 1)},
	}))

	view := ob.View()
	require.Len(t, view.Bids, 1)
	require.True(t, view.Bids[0].Price.Equal(decimal.NewFromFloat(99)))
}
