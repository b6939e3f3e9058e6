package risk

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/bus"
	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Service wires the ledger, breaker and limit chain against the bus:
// subscribes signal.generated, order.filled, market.quote.*,
// publishes order.request, risk.rejected and position.update.
type Service struct {
	busConn *bus.Bus
	log *zap.SugaredLogger
	health *health.Server

	ledger *Ledger
	breaker *Breaker
	stops *StopMonitor
	limits Limits
	stopCfg StopConfig

	mu sync.Mutex
	openOrders map[schema.Symbol]int
	marks map[schema.Symbol]decimal.Decimal
	sessionBound time.Duration
	lastReset time.Time
}

// NewService builds a risk manager against an already-connected bus.
func NewService(busConn *bus.Bus, log *zap.SugaredLogger, h *health.Server, limits Limits, stopCfg StopConfig, breakerCooldown, sessionBoundary time.Duration) *Service {
	return &Service{
		busConn: busConn,
		log: log,
		health: h,
		ledger: NewLedger(sessionBoundary),
		breaker: NewBreaker(breakerCooldown),
		stops: NewStopMonitor(),
		limits: limits,
		stopCfg: stopCfg,
		openOrders: make(map[schema.Symbol]int),
		marks: make(map[schema.Symbol]decimal.Decimal),
		sessionBound: sessionBoundary,
		lastReset: time.Now().UTC(),
	}
}

// Run installs the three subscriptions and blocks until ctx signals done.
func (s *Service) Run(done <-chan struct{}) error {
	if _, err := s.busConn.SubscribePrefix(schema.TopicSignalGenerated, s.onSignalTopic); err != nil {
		return err
	}
	if _, err := s.busConn.SubscribePrefix(schema.TopicOrderFilled, s.onFillTopic); err != nil {
		return err
	}
	if _, err := s.busConn.SubscribePrefix(schema.TopicMarketQuote, s.onQuoteTopic); err != nil {
		return err
	}
	<-done
	return nil
}

func (s *Service) onSignalTopic(_ string, msgType schema.MessageType, data []byte) {
	if msgType != schema.TypeSignal {
		return
	}
	var sig schema.Signal
	if err := schema.DecodeAs(data, schema.TypeSignal, &sig); err != nil {
		s.log.Warnw("discarding malformed signal", "error", err)
		return
	}
	s.HandleSignal(sig)
}

func (s *Service) onFillTopic(_ string, msgType schema.MessageType, data []byte) {
	if msgType != schema.TypeFill {
		return
	}
	var fill schema.Fill
	if err := schema.DecodeAs(data, schema.TypeFill, &fill); err != nil {
		s.log.Warnw("discarding malformed fill", "error", err)
		return
	}
	s.HandleFill(fill)
}

func (s *Service) onQuoteTopic(_ string, msgType schema.MessageType, data []byte) {
	if msgType != schema.TypeQuote {
		return
	}
	var q schema.Quote
	if err := schema.DecodeAs(data, schema.TypeQuote, &q); err != nil {
		s.log.Warnw("discarding malformed quote", "error", err)
		return
	}
	s.HandleQuote(q)
}

// HandleQuote marks a symbol's position to the quote mid and evaluates any
// configured stop for it.
func (s *Service) HandleQuote(q schema.Quote) {
	mid := q.BestBid.Add(q.BestAsk).Div(decimal.NewFromInt(2))
	s.mu.Lock()
	s.marks[q.Symbol] = mid
	s.mu.Unlock()

	pos := s.ledger.MarkPrice(q.Symbol, mid)
	s.publishPosition(pos)
	s.evaluateStop(pos, mid)
}

// HandleFill updates the ledger and republishes the resulting position.
func (s *Service) HandleFill(fill schema.Fill) {
	pos := s.ledger.ApplyFill(fill)
	if pos.Quantity.IsZero() {
		s.stops.Reset(fill.Symbol)
	}
	s.publishPosition(pos)
}

// HandleSignal turns a Buy/Sell signal into an approved order.request or a
// risk.rejected message, running the ordered limit-check chain. Hold
// signals are never converted to orders.
func (s *Service) HandleSignal(sig schema.Signal) {
	if sig.Action == schema.ActionHold {
		return
	}

	side := schema.SideBuy
	if sig.Action == schema.ActionSell {
		side = schema.SideSell
	}

	pos := s.ledger.Position(sig.Symbol)
	qty := s.orderQuantity(sig, pos)
	if qty.IsZero() {
		return
	}

	order := schema.Order{
		ClientOrderID: uuid.NewString(),
		Symbol: sig.Symbol,
		Side: side,
		Type: schema.OrderTypeMarket,
		Quantity: qty,
		TIF: schema.TIFGoodTilCancel,
		State: schema.OrderPending,
		CreatedAt: sig.Timestamp,
		UpdatedAt: sig.Timestamp,
	}

	s.evaluateAndPublish(order, pos)
}

// orderQuantity sizes a candidate order off the configured per-order cap;
// a full production sizing model (vol-targeted, Kelly, etc.) is out of
// scope here — the risk chain, not the sizer, is what specifies.
func (s *Service) orderQuantity(_ schema.Signal, _ schema.Position) decimal.Decimal {
	if s.limits.MaxOrderSize.IsZero() {
		return decimal.Zero
	}
	return s.limits.MaxOrderSize
}

func (s *Service) evaluateAndPublish(order schema.Order, pos schema.Position) {
	s.mu.Lock()
	mark, haveMark := s.marks[order.Symbol]
	openCount := s.openOrders[order.Symbol]
	s.mu.Unlock()
	if !haveMark {
		mark = pos.AvgEntry
	}

	reduces := Reduces(pos, order.Side, order.Quantity)
	portfolioNotional, symbolNotional := s.notionalAggregates(order.Symbol)

	cand := Candidate{
		Order: order,
		EstimatedPrice: mark,
		ReducesPosition: reduces,
		OpenOrderCount: openCount,
		PortfolioNotional: portfolioNotional,
		SymbolNotional: symbolNotional,
	}

	reason := Check(s.breaker, pos, s.limits, cand)
	if reason != "" {
		s.publishReject(order, reason)
		return
	}

	s.mu.Lock()
	s.openOrders[order.Symbol]++
	s.mu.Unlock()

	order.State = schema.OrderPending
	topic := schema.TopicOrderRequest
	if err := s.busConn.Publish(topic, schema.TypeOrder, order); err != nil {
		s.log.Warnw("order.request publish failed", "error", err)
	}
}

func (s *Service) notionalAggregates(excludeSymbol schema.Symbol) (portfolio, symbol decimal.Decimal) {
	for _, pos := range s.ledger.Positions() {
		notional := pos.Quantity.Abs().Mul(pos.MarkPrice)
		if pos.Symbol == excludeSymbol {
			symbol = notional
			continue
		}
		portfolio = portfolio.Add(notional)
	}
	return portfolio, symbol
}

func (s *Service) evaluateStop(pos schema.Position, refPrice decimal.Decimal) {
	if s.stopCfg.TrailingStopRef != "" && s.stopCfg.TrailingStopRef != TrailingStopRefTrade {
		return // under bar_close no stop is evaluated: there is no bar subscription
	}
	side, qty, trigger := s.stops.Evaluate(pos, s.stopCfg, refPrice)
	if !trigger {
		return
	}

	order := schema.Order{
		ClientOrderID: uuid.NewString(),
		Symbol: pos.Symbol,
		Side: side,
		Type: schema.OrderTypeMarket,
		Quantity: qty,
		TIF: schema.TIFImmediateOrCancel,
		ReduceOnly: true,
		State: schema.OrderPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	// A stop trigger cannot be vetoed by position-cap checks, only by
	// BreakerOpen if the order does not reduce |position|.
	if !s.breaker.AllowsOrder(true) {
		s.publishReject(order, schema.RejectBreakerOpen)
		return
	}

	s.mu.Lock()
	s.openOrders[order.Symbol]++
	s.mu.Unlock()

	if err := s.busConn.Publish(schema.TopicOrderRequest, schema.TypeOrder, order); err != nil {
		s.log.Warnw("stop order.request publish failed", "error", err)
	}
}

func (s *Service) publishReject(order schema.Order, reason schema.RiskRejectReason) {
	rej := schema.RiskRejected{
		ClientOrderID: order.ClientOrderID,
		Symbol: order.Symbol,
		Reason: reason,
		Timestamp: time.Now().UTC(),
	}
	if err := s.busConn.Publish(schema.TopicRiskRejected, schema.TypeRiskRejected, rej); err != nil {
		s.log.Warnw("risk.rejected publish failed", "error", err)
	}
}

func (s *Service) publishPosition(pos schema.Position) {
	if err := s.busConn.Publish(schema.TopicPositionUpdate, schema.TypePosition, pos); err != nil {
		s.log.Warnw("position.update publish failed", "error", err)
	}
}

// MaybeResetSession resets the daily P&L tally if now has crossed the
// configured session boundary since the last reset.
func (s *Service) MaybeResetSession(now time.Time) {
	s.mu.Lock()
	last := s.lastReset
	s.mu.Unlock()

	boundaryToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(s.sessionBound)
	if now.Before(boundaryToday) || last.After(boundaryToday) || last.Equal(boundaryToday) {
		return
	}

	s.ledger.ResetDaily(now)
	s.mu.Lock()
	s.lastReset = now
	s.mu.Unlock()
}

// OnOrderTerminal decrements the open-order count once an order reaches a
// terminal state (filled/cancelled/rejected), keeping the open-order cap
// aggregate accurate.
func (s *Service) OnOrderTerminal(symbol schema.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openOrders[symbol] > 0 {
		s.openOrders[symbol]--
	}
}

// BuildBreakerStatus aggregates the current breaker state and ledger
// positions into the wire broadcast, without touching the bus.
func BuildBreakerStatus(breaker *Breaker, positions []schema.Position, now time.Time) schema.CircuitBreakerStatus {
	var dailyPnL decimal.Decimal
	openPositions := 0
	for _, pos := range positions {
		dailyPnL = dailyPnL.Add(pos.DailyPnL)
		if !pos.Quantity.IsZero() {
			openPositions++
		}
	}
	return schema.CircuitBreakerStatus{
		State: breaker.State(),
		Reason: breaker.Reason(),
		DailyPnL: dailyPnL,
		OpenPositions: openPositions,
		Timestamp: now,
	}
}

// PublishBreakerStatus broadcasts the breaker's current state and an
// aggregate of the live book on system.circuit_breaker, so a dashboard or
// alerting rule can track it without replicating the state machine.
func (s *Service) PublishBreakerStatus(now time.Time) {
	status := BuildBreakerStatus(s.breaker, s.ledger.Positions(), now)
	if err := s.busConn.Publish(schema.TopicSystemBreaker, schema.TypeCircuitBreaker, status); err != nil {
		s.log.Warnw("system.circuit_breaker publish failed", "error", err)
	}
}

// Breaker exposes the underlying state machine for tests and ops tooling.
func (s *Service) Breaker() *Breaker { return s.breaker }

// Ledger exposes the underlying position ledger for tests and ops tooling.
func (s *Service) Ledger() *Ledger { return s.ledger }
