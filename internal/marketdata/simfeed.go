package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// SimulatedFeed is a VenueFeed with no network dependency: it drives each
// symbol with an independent Gaussian random walk (no mean reversion;
// the price is floored at 1000), adapted from the
// teacher's mock tick generator (feed_handler.go) into the venue-agnostic
// Trade/Quote/BookSnapshot event shape every other feed implementation
// produces. It exists for local runs and integration tests that need a
// live-looking tick stream without a venue credential.
type SimulatedFeed struct {
	interval time.Duration
	rng      *rand.Rand

	mu      sync.Mutex
	state   map[schema.Symbol]*simSymbolState
	events  chan VenueEvent
	cancel  context.CancelFunc
	started bool
}

type simSymbolState struct {
	lastPrice    float64
	atrEstimate  float64
	lastUpdateID int64
}

// NewSimulatedFeed builds a feed that emits one tick per symbol every
// interval.
func NewSimulatedFeed(interval time.Duration, seed int64) *SimulatedFeed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedFeed{
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		state:    make(map[schema.Symbol]*simSymbolState),
		events:   make(chan VenueEvent, 4096),
	}
}

// Connect seeds every symbol's random walk at an arbitrary starting price
// and starts the background tick generator. There is no real handshake.
func (f *SimulatedFeed) Connect(ctx context.Context, symbols []schema.Symbol) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	for _, s := range symbols {
		if _, ok := f.state[s]; !ok {
			f.state[s] = &simSymbolState{lastPrice: 50000, atrEstimate: 100}
		}
	}
	f.started = true
	f.mu.Unlock()

	go f.run(runCtx, symbols)
	return nil
}

func (f *SimulatedFeed) run(ctx context.Context, symbols []schema.Symbol) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range symbols {
				f.tick(s)
			}
		}
	}
}

func (f *SimulatedFeed) tick(symbol schema.Symbol) {
	f.mu.Lock()
	st := f.state[symbol]
	if st == nil {
		st = &simSymbolState{lastPrice: 50000, atrEstimate: 100}
		f.state[symbol] = st
	}

	drift := f.rng.NormFloat64() * 25
	price := math.Max(1000, st.lastPrice+drift)
	spread := math.Max(price*0.0004, 2)
	st.atrEstimate = st.atrEstimate*0.85 + spread*0.15
	bestBid := price - spread/2
	bestAsk := price + spread/2
	bidSize := 50 + f.rng.Float64()*50
	askSize := 50 + f.rng.Float64()*50
	side := schema.SideBuy
	if price < st.lastPrice {
		side = schema.SideSell
	}
	lastQty := (bidSize + askSize) * 0.25
	st.lastPrice = price
	st.lastUpdateID++
	updateID := st.lastUpdateID
	f.mu.Unlock()

	now := time.Now().UTC()
	trade := schema.Trade{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Quantity:  decimal.NewFromFloat(lastQty),
		Side:      side,
		Timestamp: now,
	}
	quote := schema.Quote{
		Symbol:    symbol,
		BestBid:   decimal.NewFromFloat(bestBid),
		BestAsk:   decimal.NewFromFloat(bestAsk),
		BidSize:   decimal.NewFromFloat(bidSize),
		AskSize:   decimal.NewFromFloat(askSize),
		Timestamp: now,
	}
	delta := schema.BookDelta{
		Symbol:    symbol,
		Bids:      []schema.BookLevel{{Price: decimal.NewFromFloat(bestBid), Quantity: decimal.NewFromFloat(bidSize), Timestamp: now}},
		Asks:      []schema.BookLevel{{Price: decimal.NewFromFloat(bestAsk), Quantity: decimal.NewFromFloat(askSize), Timestamp: now}},
		FirstID:   updateID,
		LastID:    updateID,
		Timestamp: now,
	}

	f.events <- VenueEvent{Trade: &trade}
	f.events <- VenueEvent{Quote: &quote}
	f.events <- VenueEvent{Delta: &delta}
}

// Events returns the decoded event stream.
func (f *SimulatedFeed) Events() <-chan VenueEvent {
	return f.events
}

// Snapshot synthesizes a one-level book around the symbol's current
// random-walk price; OrderBook.ApplySnapshot bootstraps from this the same
// way it would from a real venue's REST snapshot.
func (f *SimulatedFeed) Snapshot(_ context.Context, symbol schema.Symbol) (schema.BookSnapshot, error) {
	f.mu.Lock()
	st, ok := f.state[symbol]
	if !ok {
		st = &simSymbolState{lastPrice: 50000, atrEstimate: 100}
		f.state[symbol] = st
	}
	price := st.lastPrice
	updateID := st.lastUpdateID
	f.mu.Unlock()

	spread := math.Max(price*0.0004, 2)
	now := time.Now().UTC()
	return schema.BookSnapshot{
		Symbol: symbol,
		Bids: []schema.BookLevel{
			{Price: decimal.NewFromFloat(price - spread/2), Quantity: decimal.NewFromFloat(50), Timestamp: now},
		},
		Asks: []schema.BookLevel{
			{Price: decimal.NewFromFloat(price + spread/2), Quantity: decimal.NewFromFloat(50), Timestamp: now},
		},
		LastUpdateID: updateID,
		Timestamp:    now,
	}, nil
}

// Close stops the background tick generator.
func (f *SimulatedFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	f.started = false
	return nil
}

var _ VenueFeed = (*SimulatedFeed)(nil)
