package execution

import (
	"sync"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// BookCache is a BookView backed by the latest published order-book view
// per symbol; it lets the slippage guard and the paper venue price orders
// off real market-data updates instead of each holding their own
// subscription.
type BookCache struct {
	mu    sync.RWMutex
	views map[schema.Symbol]schema.OrderBookView
}

// NewBookCache builds an empty cache.
func NewBookCache() *BookCache {
	return &BookCache{views: make(map[schema.Symbol]schema.OrderBookView)}
}

// Update replaces the cached view for its symbol.
func (c *BookCache) Update(view schema.OrderBookView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[view.Symbol] = view
}

// For returns a BookView scoped to one symbol, sharing the underlying cache.
func (c *BookCache) For(symbol schema.Symbol) BookView {
	return symbolBookView{cache: c, symbol: symbol}
}

type symbolBookView struct {
	cache  *BookCache
	symbol schema.Symbol
}

// TopN returns up to n levels per side from the most recently cached view
// for the symbol; an unseen symbol returns empty slices rather than an
// error, since the slippage guard and paper venue both already treat an
// empty book as "no quote available".
func (v symbolBookView) TopN(n int) (bids, asks []schema.BookLevel) {
	v.cache.mu.RLock()
	view, ok := v.cache.views[v.symbol]
	v.cache.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	bids = view.Bids
	if len(bids) > n {
		bids = bids[:n]
	}
	asks = view.Asks
	if len(asks) > n {
		asks = asks[:n]
	}
	return bids, asks
}

var _ BookView = symbolBookView{}
