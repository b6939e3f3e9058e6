package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Metrics are the per-service counters of the ambient observability stack,
// following the same prometheus gauge-vec/counter style used across the
// other services but scoped to market-data concerns.
type Metrics struct {
	ParseErrors prometheus.Counter
	CrossedBooks prometheus.Counter
	Resyncs prometheus.Counter
	TradesHandled prometheus.Counter
	BarsPublished prometheus.Counter
}

// NewMetrics registers and returns the market-data metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{Name: "marketdata_parse_errors_total"}),
		CrossedBooks: prometheus.NewCounter(prometheus.CounterOpts{Name: "marketdata_crossed_book_total"}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{Name: "marketdata_resyncs_total"}),
		TradesHandled: prometheus.NewCounter(prometheus.CounterOpts{Name: "marketdata_trades_total"}),
		BarsPublished: prometheus.NewCounter(prometheus.CounterOpts{Name: "marketdata_bars_published_total"}),
	}
	reg.MustRegister(m.ParseErrors, m.CrossedBooks, m.Resyncs, m.TradesHandled, m.BarsPublished)
	return m
}

// Service owns one venue feed, a per-symbol order book, and a set of bar
// aggregators per (symbol, interval). Snapshots are bootstrapped per
// symbol concurrently; after that, Run processes the events of every
// symbol in arrival order on one goroutine, and only post-gap resyncs run
// on goroutines of their own.
type Service struct {
	feed VenueFeed
	bus *bus.Bus
	health *health.Server
	metrics *Metrics
	log *zap.SugaredLogger
	intervals map[string]time.Duration

	mu sync.Mutex
	books map[schema.Symbol]*OrderBook
	bars map[schema.Symbol]map[string]*BarAggregator
}

// NewService wires a market-data service from its collaborators.
func NewService(feed VenueFeed, b *bus.Bus, h *health.Server, m *Metrics, log *zap.SugaredLogger, intervals map[string]time.Duration) *Service {
	return &Service{
		feed: feed, bus: b, health: h, metrics: m, log: log, intervals: intervals,
		books: make(map[schema.Symbol]*OrderBook),
		bars: make(map[schema.Symbol]map[string]*BarAggregator),
	}
}

func (s *Service) bookFor(symbol schema.Symbol) *OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.books[symbol]
	if !ok {
		ob = NewOrderBook(symbol)
		s.books[symbol] = ob
	}
	return ob
}

func (s *Service) aggregatorsFor(symbol schema.Symbol) map[string]*BarAggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	aggs, ok := s.bars[symbol]
	if !ok {
		aggs = make(map[string]*BarAggregator, len(s.intervals))
		for name, window := range s.intervals {
			aggs[name] = NewBarAggregator(symbol, name, window)
		}
		s.bars[symbol] = aggs
	}
	return aggs
}

// Run connects the feed, bootstraps each symbol's book from a snapshot,
// and processes the event stream until ctx is cancelled or the feed's
// event channel closes. It does not reconnect: a disconnect ends Run with
// a nil error, and no book is resynced.
func (s *Service) Run(ctx context.Context, symbols []schema.Symbol) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			return s.bootstrap(ctx, sym)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.feed.Connect(ctx, symbols); err != nil {
		if fe, ok := err.(*schema.Error); ok && fe.Fatal {
			return err
		}
		s.log.Errorw("feed connect failed", "error", err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.feed.Events():
			if !ok {
				return nil
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Service) bootstrap(ctx context.Context, symbol schema.Symbol) error {
	snap, err := s.feed.Snapshot(ctx, symbol)
	if err != nil {
		s.log.Warnw("snapshot unavailable, book stays unbootstrapped", "symbol", symbol, "error", err)
		return nil
	}
	ob := s.bookFor(symbol)
	if err := ob.ApplySnapshot(snap); err != nil {
		s.log.Warnw("snapshot application flagged crossed book", "symbol", symbol, "error", err)
	}
	s.publishBook(ob)
	return nil
}

func (s *Service) handleEvent(ctx context.Context, ev VenueEvent) {
	switch {
	case ev.Trade != nil:
		s.handleTrade(*ev.Trade)
	case ev.Quote != nil:
		s.publishQuote(*ev.Quote)
	case ev.Snapshot != nil:
		ob := s.bookFor(ev.Snapshot.Symbol)
		if err := ob.ApplySnapshot(*ev.Snapshot); err != nil {
			s.metrics.CrossedBooks.Inc()
		}
		s.publishBook(ob)
	case ev.Delta != nil:
		ob := s.bookFor(ev.Delta.Symbol)
		if err := ob.ApplyDelta(*ev.Delta); err != nil {
			if schema.IsKind(err, schema.ErrBookSequenceGap) {
				s.metrics.Resyncs.Inc()
				s.log.Warnw("book sequence gap, resyncing", "symbol", ev.Delta.Symbol)
				go s.resync(ctx, ev.Delta.Symbol)
				return
			}
		}
		s.publishBook(ob)
	}
}

func (s *Service) resync(ctx context.Context, symbol schema.Symbol) {
	snap, err := s.feed.Snapshot(ctx, symbol)
	if err != nil {
		s.log.Errorw("resync snapshot failed", "symbol", symbol, "error", err)
		return
	}
	ob := s.bookFor(symbol)
	if err := ob.ApplySnapshot(snap); err != nil {
		s.metrics.CrossedBooks.Inc()
	}
	s.publishBook(ob)
}

func (s *Service) handleTrade(t schema.Trade) {
	s.metrics.TradesHandled.Inc()
	if err := s.bus.Publish(schema.ForSymbol(schema.TopicMarketTrade, t.Symbol), schema.TypeTrade, t); err != nil {
		s.log.Warnw("publish trade failed", "error", err)
	}

	for name, agg := range s.aggregatorsFor(t.Symbol) {
		closed, ok := agg.OnTrade(t.Price, t.Quantity, t.Timestamp)
		if !ok {
			continue
		}
		topic := schema.ForBarInterval(t.Symbol, name)
		if err := s.bus.Publish(topic, schema.TypeBar, closed); err != nil {
			s.log.Warnw("publish bar failed", "error", err)
			continue
		}
		s.metrics.BarsPublished.Inc()
	}
}

func (s *Service) publishQuote(q schema.Quote) {
	if err := s.bus.Publish(schema.ForSymbol(schema.TopicMarketQuote, q.Symbol), schema.TypeQuote, q); err != nil {
		s.log.Warnw("publish quote failed", "error", err)
	}
}

func (s *Service) publishBook(ob *OrderBook) {
	view := ob.View()
	if err := s.bus.Publish(schema.ForSymbol(schema.TopicMarketOrderBook, view.Symbol), schema.TypeOrderBookView, view); err != nil {
		s.log.Warnw("publish orderbook failed", "error", err)
	}
	if s.health != nil {
		s.health.Incr("processed_messages", 1)
	}
}
