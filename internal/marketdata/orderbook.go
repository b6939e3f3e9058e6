// Package marketdata implements order-book reconstruction, bar
// aggregation, and the venue feed adapter. The reconstruction
// algorithm (buffer-then-snapshot, strictly-monotonic sequence ids,
// crossed-book detection and resync) is grounded on the
// snapshot/diff-depth pattern used throughout the pack's exchange
// adapters (orionprotocol-price-feed-go's binance.OrderBook,
// BullionBear-sequex's internal/orderbook).
package marketdata

import (
	"sort"
	"sync"
	"time"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// OrderBook maintains one symbol's ladder with strict sequence discipline:
// bids sorted strictly descending, asks strictly ascending, best_bid <
// best_ask, and a monotonically advancing last_update_id.
type OrderBook struct {
	mu sync.RWMutex

	symbol schema.Symbol
	bids map[string]schema.BookLevel // price string key -> level
	asks map[string]schema.BookLevel
	lastUpdateID int64

	bootstrapped bool
	buffered []schema.BookDelta

	suspect bool
	crossedFaults int64
}

// NewOrderBook returns an empty, not-yet-bootstrapped book for symbol.
func NewOrderBook(symbol schema.Symbol) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids: make(map[string]schema.BookLevel),
		asks: make(map[string]schema.BookLevel),
	}
}

// Reset discards all in-memory state, forcing the next ApplySnapshot to
// re-bootstrap the book (resync-on-gap / resync-on-crossed).
func (b *OrderBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *OrderBook) resetLocked() {
	b.bids = make(map[string]schema.BookLevel)
	b.asks = make(map[string]schema.BookLevel)
	b.lastUpdateID = 0
	b.bootstrapped = false
	b.buffered = nil
	b.suspect = false
}

// BufferDelta queues a delta received while waiting on a fresh snapshot
//. Call this instead of ApplyDelta until ApplySnapshot returns.
func (b *OrderBook) BufferDelta(d schema.BookDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffered = append(b.buffered, d)
}

// ApplySnapshot installs a full book state, discards any buffered delta
// whose LastID is at or below the snapshot id, and replays the remainder
// in order.
func (b *OrderBook) ApplySnapshot(snap schema.BookSnapshot) error {
	b.mu.Lock()
	pending := b.buffered
	b.resetLocked()
	for _, lvl := range snap.Bids {
		if lvl.Quantity.IsPositive() {
			b.bids[lvl.Price.String()] = lvl
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Quantity.IsPositive() {
			b.asks[lvl.Price.String()] = lvl
		}
	}
	b.lastUpdateID = snap.LastUpdateID
	b.bootstrapped = true
	b.mu.Unlock()

	for _, d := range pending {
		if d.LastID <= snap.LastUpdateID {
			continue
		}
		if err := b.ApplyDelta(d); err != nil {
			return err
		}
	}
	return b.checkCrossed()
}

// ApplyDelta applies an incremental update. A gap (FirstID > lastApplied+1)
// returns a book-sequence-gap error so the caller can trigger a resync; the
// book's in-memory state is reset as part of that.
func (b *OrderBook) ApplyDelta(d schema.BookDelta) error {
	b.mu.Lock()
	if !b.bootstrapped {
		b.mu.Unlock()
		b.BufferDelta(d)
		return nil
	}

	if d.FirstID > b.lastUpdateID+1 {
		b.resetLocked()
		b.mu.Unlock()
		return schema.NewError(schema.ErrBookSequenceGap, "update id gap, resync required", nil)
	}
	if d.LastID <= b.lastUpdateID {
		b.mu.Unlock()
		return nil // stale, already applied
	}

	for _, lvl := range d.Bids {
		applyLevel(b.bids, lvl)
	}
	for _, lvl := range d.Asks {
		applyLevel(b.asks, lvl)
	}
	b.lastUpdateID = d.LastID
	b.mu.Unlock()

	return b.checkCrossed()
}

// applyLevel removes a level on zero quantity, otherwise replaces it
// (BookLevel invariant). Applying a zero-quantity delta to a
// missing level is a no-op.
func applyLevel(side map[string]schema.BookLevel, lvl schema.BookLevel) {
	key := lvl.Price.String()
	if !lvl.Quantity.IsPositive() {
		delete(side, key)
		return
	}
	side[key] = lvl
}

// checkCrossed verifies best_bid < best_ask after a mutation. A violation
// marks the book suspect and counts a crossed-book fault; the
// caller is expected to trigger a resync on Suspect().
func (b *OrderBook) checkCrossed() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bestBid, bidOK := topBid(b.bids)
	bestAsk, askOK := topAsk(b.asks)
	if bidOK && askOK && !bestBid.Price.LessThan(bestAsk.Price) {
		b.suspect = true
		b.crossedFaults++
		return schema.NewError(schema.ErrBookSequenceGap, "crossed book detected", nil)
	}
	return nil
}

func topBid(bids map[string]schema.BookLevel) (schema.BookLevel, bool) {
	var best schema.BookLevel
	found := false
	for _, lvl := range bids {
		if !found || lvl.Price.GreaterThan(best.Price) {
			best = lvl
			found = true
		}
	}
	return best, found
}

func topAsk(asks map[string]schema.BookLevel) (schema.BookLevel, bool) {
	var best schema.BookLevel
	found := false
	for _, lvl := range asks {
		if !found || lvl.Price.LessThan(best.Price) {
			best = lvl
			found = true
		}
	}
	return best, found
}

// Suspect reports whether the book is in a resync-pending state.
func (b *OrderBook) Suspect() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.suspect
}

// CrossedFaultCount returns the number of crossed-book detections so far.
func (b *OrderBook) CrossedFaultCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.crossedFaults
}

// Bootstrapped reports whether a snapshot has been applied.
func (b *OrderBook) Bootstrapped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bootstrapped
}

// View returns a read-only, sorted snapshot: bids strictly descending,
// asks strictly ascending (OrderBook invariant).
func (b *OrderBook) View() schema.OrderBookView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := sortedLevels(b.bids, true)
	asks := sortedLevels(b.asks, false)

	return schema.OrderBookView{
		Symbol: b.symbol,
		Bids: bids,
		Asks: asks,
		LastUpdateID: b.lastUpdateID,
		Timestamp: time.Now().UTC(),
	}
}

// TopN returns up to n levels per side from the current view, used by the
// execution engine's slippage walk and the signal bridge's feature
// computation.
func (b *OrderBook) TopN(n int) (bids, asks []schema.BookLevel) {
	v := b.View()
	if n < len(v.Bids) {
		bids = v.Bids[:n]
	} else {
		bids = v.Bids
	}
	if n < len(v.Asks) {
		asks = v.Asks[:n]
	} else {
		asks = v.Asks
	}
	return bids, asks
}

func sortedLevels(side map[string]schema.BookLevel, descending bool) []schema.BookLevel {
	out := make([]schema.BookLevel, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}
