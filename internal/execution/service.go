package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// BookView supplies the current top-of-book levels the slippage guard
// walks; marketdata.OrderBook satisfies this via its TopN/View methods.
type BookView interface {
	TopN(n int) (bids, asks []schema.BookLevel)
}

// Service subscribes order.request, runs the rate limiter, slippage guard
// and retry policy, submits to the venue and publishes order-status/fill
// events, driving every order through the state machine.
type Service struct {
	busConn *bus.Bus
	venue VenueClient
	limiter *RateLimiter
	retry RetryPolicy
	slipBps decimal.Decimal
	log *zap.SugaredLogger
	health *health.Server

	mu sync.Mutex
	orders map[string]schema.Order
	books map[schema.Symbol]BookView
}

// NewService wires an execution engine against an already-connected bus
// and venue client.
func NewService(busConn *bus.Bus, venue VenueClient, limiter *RateLimiter, retry RetryPolicy, slipBps decimal.Decimal, log *zap.SugaredLogger, h *health.Server) *Service {
	return &Service{
		busConn: busConn,
		venue: venue,
		limiter: limiter,
		retry: retry,
		slipBps: slipBps,
		log: log,
		health: h,
		orders: make(map[string]schema.Order),
		books: make(map[schema.Symbol]BookView),
	}
}

// RegisterBook lets the slippage guard walk a live order book for symbol.
func (s *Service) RegisterBook(symbol schema.Symbol, book BookView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[symbol] = book
}

// SetVenue swaps the venue client the engine submits orders against, e.g.
// to move between the simulated paper venue and the live one. The swap is
// refused while any locally tracked order is still non-terminal, since an
// in-flight order submitted to one venue cannot be reconciled against the
// other.
func (s *Service) SetVenue(venue VenueClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if !o.State.Terminal() {
			return fmt.Errorf("cannot switch venue while order %s is non-terminal", o.ClientOrderID)
		}
	}
	s.venue = venue
	return nil
}

// Run installs the order.request subscription and blocks until done closes.
func (s *Service) Run(done <-chan struct{}) error {
	_, err := s.busConn.SubscribePrefix(schema.TopicOrderRequest, func(_ string, msgType schema.MessageType, data []byte) {
		if msgType != schema.TypeOrder {
			return
		}
		var order schema.Order
		if err := schema.DecodeAs(data, schema.TypeOrder, &order); err != nil {
			s.log.Warnw("discarding malformed order request", "error", err)
			return
		}
		s.HandleOrderRequest(context.Background(), order)
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// HandleOrderRequest runs order through rate limiting, the slippage guard
// (market orders only) and the retry-wrapped venue submission, publishing
// whichever terminal or intermediate event results.
func (s *Service) HandleOrderRequest(ctx context.Context, order schema.Order) {
	if err := s.limiter.Acquire(ctx); err != nil {
		s.reject(order, schema.RejectRateLimited, err)
		return
	}

	if order.Type == schema.OrderTypeMarket {
		if err := s.checkSlippage(order); err != nil {
			s.reject(order, schema.RejectSlippageExceeded, err)
			return
		}
	}

	order.State = schema.OrderPending
	s.track(order)

	var submitted schema.Order
	err := s.retry.Do(ctx, func() error {
		out, err := s.venue.SubmitOrder(ctx, order)
		if err != nil {
			return err
		}
		submitted = out
		return nil
	})
	if err != nil {
		s.transitionAndPublishError(order, err)
		return
	}

	next, terr := Apply(schema.OrderSubmitted, TransitionAck)
	if terr != nil {
		s.log.Errorw("unexpected state transition", "error", terr)
		return
	}
	submitted.State = next
	s.track(submitted)
	s.publish(schema.TopicOrderSubmitted, schema.TypeOrder, submitted)
}

func (s *Service) checkSlippage(order schema.Order) error {
	s.mu.Lock()
	book, ok := s.books[order.Symbol]
	s.mu.Unlock()
	if !ok {
		return nil // no book registered yet: nothing to walk, let the venue handle it
	}

	bids, asks := book.TopN(50)
	var levels []schema.BookLevel
	var mid decimal.Decimal
	if order.Side == schema.SideBuy {
		levels = asks
	} else {
		levels = bids
	}
	if len(bids) > 0 && len(asks) > 0 {
		mid = bids[0].Price.Add(asks[0].Price).Div(decimal.NewFromInt(2))
	}
	return CheckSlippage(levels, order.Quantity, mid, s.slipBps)
}

// HandleFillEvent applies a partial or final fill to the tracked order's
// state, enforcing monotonic fills-then-position-update ordering for a
// single order.
func (s *Service) HandleFillEvent(fill schema.Fill, final bool) {
	s.mu.Lock()
	order, ok := s.orders[fill.ClientOrderID]
	s.mu.Unlock()
	if !ok {
		return
	}

	transition := TransitionPartial
	if order.State == schema.OrderPartiallyFilled {
		transition = TransitionMore
	}
	if final {
		transition = TransitionFinal
	}
	next, err := Apply(order.State, transition)
	if err != nil {
		s.log.Warnw("fill event rejected by state machine", "error", err)
		return
	}
	order.State = next
	order.UpdatedAt = fill.Timestamp
	s.track(order)

	s.publish(schema.TopicOrderFilled, schema.TypeFill, fill)
}

func (s *Service) transitionAndPublishError(order schema.Order, cause error) {
	next, terr := Apply(order.State, TransitionError)
	if terr != nil {
		s.log.Errorw("unexpected state transition", "error", terr)
		return
	}
	order.State = next
	order.UpdatedAt = time.Now().UTC()
	s.track(order)
	s.log.Warnw("order rejected after retries exhausted", "client_order_id", order.ClientOrderID, "error", cause)
	s.publish(schema.TopicOrderRejected, schema.TypeOrder, order)
}

func (s *Service) reject(order schema.Order, reason schema.RiskRejectReason, cause error) {
	order.State = schema.OrderRejected
	order.UpdatedAt = time.Now().UTC()
	s.log.Warnw("order rejected locally", "client_order_id", order.ClientOrderID, "reason", reason, "error", cause)
	s.publish(schema.TopicOrderRejected, schema.TypeOrder, order)
	if s.health != nil {
		s.health.Incr("local_rejections", 1)
	}
}

func (s *Service) track(order schema.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ClientOrderID] = order
}

func (s *Service) publish(topic string, msgType schema.MessageType, v interface{}) {
	if err := s.busConn.Publish(topic, msgType, v); err != nil {
		s.log.Warnw("publish failed", "topic", topic, "error", err)
	}
}

// ReconcileOpenOrders queries the venue for every non-terminal order under
// componentPrefix and re-tracks it locally: the restart-recovery path that
// reconciles any non-terminal orders from the venue by client_order_id
// prefix query.
func (s *Service) ReconcileOpenOrders(ctx context.Context, componentPrefix string) error {
	open, err := s.venue.ListOpenOrders(ctx, componentPrefix)
	if err != nil {
		return err
	}
	for _, o := range open {
		s.track(o)
	}
	s.log.Infow("reconciled open orders on restart", "count", len(open))
	return nil
}
