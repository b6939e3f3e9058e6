package execution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/health"
	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// PaperLatencyConfig models the ack/fill latency distribution as a
// truncated normal: mean plus a derived sigma fit to the p95 point.
type PaperLatencyConfig struct {
	MeanMs float64
	P95Ms  float64
}

// PaperPartialFillConfig controls whether a resting (maker) limit order
// fills in several slices instead of all at once.
type PaperPartialFillConfig struct {
	Enabled     bool
	MinSlicePct float64
	MaxSlices   int
}

// PaperConfig parameterizes the simulated venue: fees, the slippage model,
// latency, and partial-fill behavior for resting orders.
type PaperConfig struct {
	FeeBps         decimal.Decimal
	MakerRebateBps decimal.Decimal
	FundingEnabled bool
	SlippageBps    decimal.Decimal
	MaxSlippageBps decimal.Decimal
	SpreadCoeff    decimal.Decimal
	OFICoeff       decimal.Decimal
	Seed           int64
	Latency        PaperLatencyConfig
	PartialFill    PaperPartialFillConfig
}

// Validate enforces the range invariants the slippage and partial-fill
// models depend on: a malformed config should fail at startup, not
// produce nonsensical fills later.
func (cfg PaperConfig) Validate() error {
	if cfg.SlippageBps.IsNegative() || cfg.MaxSlippageBps.LessThan(cfg.SlippageBps) {
		return fmt.Errorf("execution.paper: max_slippage_bps must be >= slippage_bps")
	}
	if cfg.Latency.MeanMs < 0 || cfg.Latency.P95Ms < cfg.Latency.MeanMs {
		return fmt.Errorf("execution.paper: latency config invalid")
	}
	if cfg.PartialFill.Enabled && cfg.PartialFill.MaxSlices < 1 {
		return fmt.Errorf("execution.paper: partial_fill.max_slices must be >= 1")
	}
	if cfg.PartialFill.MinSlicePct < 0 || cfg.PartialFill.MinSlicePct > 1 {
		return fmt.Errorf("execution.paper: partial_fill.min_slice_pct must be between 0 and 1")
	}
	if cfg.SpreadCoeff.IsNegative() || cfg.OFICoeff.IsNegative() {
		return fmt.Errorf("execution.paper: slippage coefficients must be non-negative")
	}
	return nil
}

// FillCallback delivers a simulated fill back to whatever tracks order
// state; Service.HandleFillEvent satisfies this signature.
type FillCallback func(fill schema.Fill, final bool)

type paperOrderState struct {
	order    schema.Order
	filled   decimal.Decimal
	canceled bool
}

// PaperVenueClient is a simulated VenueClient: it never leaves the
// process, estimating fills from the registered order books instead of a
// real exchange, using the same latency/slippage/partial-fill/fee model a
// live venue would expose. It delivers fills through the FillCallback hook
// so HandleFillEvent drives the same state machine a live venue would,
// instead of publishing directly to the bus itself.
type PaperVenueClient struct {
	cfg          PaperConfig
	onFill       FillCallback
	latencySigma float64
	rng          *rand.Rand

	mu         sync.Mutex
	books      map[schema.Symbol]BookView
	orderFlow  map[schema.Symbol]decimal.Decimal
	orders     map[string]*paperOrderState
	makerFills int64
	takerFills int64
	health     *health.Server
}

// NewPaperVenueClient builds a simulated venue. onFill is invoked from a
// background goroutine once a simulated latency elapses, never from
// SubmitOrder itself.
func NewPaperVenueClient(cfg PaperConfig, onFill FillCallback, h *health.Server) *PaperVenueClient {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperVenueClient{
		cfg:          cfg,
		onFill:       onFill,
		latencySigma: deriveLatencySigma(cfg.Latency.MeanMs, cfg.Latency.P95Ms),
		rng:          rand.New(rand.NewSource(seed)),
		books:        make(map[schema.Symbol]BookView),
		orderFlow:    make(map[schema.Symbol]decimal.Decimal),
		orders:       make(map[string]*paperOrderState),
		health:       h,
	}
}

func deriveLatencySigma(meanMs, p95Ms float64) float64 {
	if p95Ms <= meanMs {
		if meanMs > 0 {
			return meanMs * 0.2
		}
		return 1.0
	}
	return math.Max((p95Ms-meanMs)/1.645, 1.0)
}

// SetFillCallback wires the callback invoked on every simulated fill. It
// exists separately from the constructor because the callback is usually a
// method on the Service that wraps this client, which cannot be built until
// after the client itself exists.
func (p *PaperVenueClient) SetFillCallback(cb FillCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFill = cb
}

// RegisterBook lets the simulator price fills off a live order book for
// symbol, same registration point the slippage guard uses.
func (p *PaperVenueClient) RegisterBook(symbol schema.Symbol, book BookView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[symbol] = book
}

// ObserveTrade feeds one executed print into the order-flow-imbalance
// estimate the slippage model leans on; a sustained run of one-sided
// taker volume widens simulated slippage on new orders on the opposite
// side (buy flow widens sell slippage, sell flow widens buy slippage).
func (p *PaperVenueClient) ObserveTrade(symbol schema.Symbol, side schema.Side, size decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	signed := size
	if side == schema.SideSell {
		signed = signed.Neg()
	}
	prev := p.orderFlow[symbol]
	p.orderFlow[symbol] = prev.Mul(decimal.NewFromFloat(0.85)).Add(signed)
}

// SubmitOrder acks the order immediately as Working, and schedules a
// background fill simulation. A market order fills in one slice after a
// sampled latency; a resting limit order that does not cross the spread
// may fill in several latency-staggered slices when partial fills are
// enabled.
func (p *PaperVenueClient) SubmitOrder(_ context.Context, order schema.Order) (schema.Order, error) {
	p.mu.Lock()
	book, ok := p.books[order.Symbol]
	p.mu.Unlock()
	if !ok {
		return order, &VenueError{Err: fmt.Errorf("paper venue: no book registered for %s", order.Symbol)}
	}

	bids, asks := book.TopN(1)
	var bestBid, bestAsk decimal.Decimal
	if len(bids) > 0 {
		bestBid = bids[0].Price
	}
	if len(asks) > 0 {
		bestAsk = asks[0].Price
	}

	maker := order.Type == schema.OrderTypeLimit && !p.crossesSpread(order, bestBid, bestAsk)

	order.State = schema.OrderSubmitted
	order.UpdatedAt = time.Now().UTC()

	state := &paperOrderState{order: order}
	p.mu.Lock()
	p.orders[order.ClientOrderID] = state
	p.mu.Unlock()

	go p.simulateFills(order, bestBid, bestAsk, maker)

	working := order
	working.State = schema.OrderWorking
	return working, nil
}

func (p *PaperVenueClient) crossesSpread(order schema.Order, bestBid, bestAsk decimal.Decimal) bool {
	if order.Type != schema.OrderTypeLimit || order.Price == nil {
		return true
	}
	mid := midpoint(bestBid, bestAsk)
	if order.Side == schema.SideBuy {
		if !bestAsk.IsZero() && order.Price.GreaterThanOrEqual(bestAsk) {
			return true
		}
		return order.Price.GreaterThanOrEqual(mid)
	}
	if !bestBid.IsZero() && order.Price.LessThanOrEqual(bestBid) {
		return true
	}
	return order.Price.LessThanOrEqual(mid)
}

func midpoint(bid, ask decimal.Decimal) decimal.Decimal {
	if bid.IsZero() || ask.IsZero() {
		if !bid.IsZero() {
			return bid
		}
		return ask
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}

type paperFillSlice struct {
	delay    time.Duration
	quantity decimal.Decimal
	price    decimal.Decimal
}

func (p *PaperVenueClient) simulateFills(order schema.Order, bestBid, bestAsk decimal.Decimal, maker bool) {
	slices := p.buildFillPlan(order, bestBid, bestAsk, maker)
	for i, slice := range slices {
		time.Sleep(slice.delay)
		final := i == len(slices)-1
		p.completeFill(order, slice, maker, final)
	}
}

func (p *PaperVenueClient) buildFillPlan(order schema.Order, bestBid, bestAsk decimal.Decimal, maker bool) []paperFillSlice {
	mid := midpoint(bestBid, bestAsk)
	ackLatency := p.sampleLatency()

	if order.Type != schema.OrderTypeLimit || !maker {
		slipBps := p.computeSlippage(order.Symbol, order.Side, bestBid, bestAsk)
		price := p.applySlippage(order.Side, mid, bestBid, bestAsk, slipBps)
		return []paperFillSlice{{delay: ackLatency, quantity: order.Quantity, price: price}}
	}

	price := *order.Price
	if !p.cfg.PartialFill.Enabled || p.cfg.PartialFill.MaxSlices <= 1 {
		return []paperFillSlice{{delay: ackLatency, quantity: order.Quantity, price: price}}
	}

	numSlices := p.rng.Intn(p.cfg.PartialFill.MaxSlices-1) + 1
	minPct := p.cfg.PartialFill.MinSlicePct
	if minPct <= 0 {
		minPct = 0.05
	}
	remaining := order.Quantity
	slices := make([]paperFillSlice, 0, numSlices)
	for i := 0; i < numSlices; i++ {
		var sliceQty decimal.Decimal
		if i == numSlices-1 {
			sliceQty = remaining
		} else {
			minQty := order.Quantity.Mul(decimal.NewFromFloat(minPct))
			sliceQty = decimal.Min(remaining, minQty)
		}
		if sliceQty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		remaining = remaining.Sub(sliceQty)
		delay := time.Duration(float64(ackLatency) * (1 + float64(i)*0.5))
		slices = append(slices, paperFillSlice{delay: delay, quantity: sliceQty, price: price})
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
	}
	return slices
}

func (p *PaperVenueClient) computeSlippage(symbol schema.Symbol, side schema.Side, bestBid, bestAsk decimal.Decimal) decimal.Decimal {
	mid := midpoint(bestBid, bestAsk)
	spreadBps := decimal.Zero
	if !mid.IsZero() {
		spreadBps = bestAsk.Sub(bestBid).Div(mid).Mul(decimal.NewFromInt(10000))
	}

	p.mu.Lock()
	flow := p.orderFlow[symbol]
	p.mu.Unlock()

	adverse := decimal.Max(decimal.Zero, flow)
	if side == schema.SideBuy {
		adverse = decimal.Max(decimal.Zero, flow.Neg())
	}

	slip := p.cfg.SlippageBps.Add(spreadBps.Mul(p.cfg.SpreadCoeff)).Add(adverse.Mul(p.cfg.OFICoeff))
	if slip.GreaterThan(p.cfg.MaxSlippageBps) {
		return p.cfg.MaxSlippageBps
	}
	if slip.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return slip
}

func (p *PaperVenueClient) applySlippage(side schema.Side, mid, bestBid, bestAsk, slipBps decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(slipBps.Div(decimal.NewFromInt(10000)))
	if side == schema.SideBuy {
		base := mid
		if !bestAsk.IsZero() {
			base = bestAsk
		}
		return base.Mul(factor)
	}
	base := mid
	if !bestBid.IsZero() {
		base = bestBid
	}
	return base.Mul(decimal.NewFromInt(2).Sub(factor))
}

func (p *PaperVenueClient) sampleLatency() time.Duration {
	ms := p.rng.NormFloat64()*p.latencySigma + p.cfg.Latency.MeanMs
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (p *PaperVenueClient) completeFill(order schema.Order, slice paperFillSlice, maker bool, final bool) {
	p.mu.Lock()
	state, ok := p.orders[order.ClientOrderID]
	if ok && state.canceled {
		p.mu.Unlock()
		return
	}
	if ok {
		state.filled = state.filled.Add(slice.quantity)
		state.order.State = schema.OrderPartiallyFilled
		if final {
			state.order.State = schema.OrderFilled
		}
	}
	if maker {
		p.makerFills++
	} else {
		p.takerFills++
	}
	p.mu.Unlock()

	feeRate := p.cfg.FeeBps.Div(decimal.NewFromInt(10000))
	if maker {
		feeRate = p.cfg.MakerRebateBps.Neg().Div(decimal.NewFromInt(10000))
	}
	notional := slice.price.Mul(slice.quantity)
	fee := notional.Mul(feeRate)

	fill := schema.Fill{
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Price:         slice.price,
		Quantity:      slice.quantity,
		Fee:           fee,
		Timestamp:     time.Now().UTC(),
	}

	if p.health != nil {
		p.health.Incr("paper_fills_total", 1)
	}
	if p.onFill != nil {
		p.onFill(fill, final)
	}
}

// GetOrder returns the last known simulated state for clientOrderID.
func (p *PaperVenueClient) GetOrder(_ context.Context, clientOrderID string) (schema.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.orders[clientOrderID]
	if !ok {
		return schema.Order{}, &VenueError{StatusCode: 404, Err: fmt.Errorf("paper venue: unknown order %s", clientOrderID)}
	}
	return state.order, nil
}

// CancelOrder marks a still-open simulated order canceled; any fill
// goroutine already in flight for it becomes a no-op.
func (p *PaperVenueClient) CancelOrder(_ context.Context, clientOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.orders[clientOrderID]
	if !ok {
		return &VenueError{StatusCode: 404, Err: fmt.Errorf("paper venue: unknown order %s", clientOrderID)}
	}
	if state.order.State.Terminal() {
		return nil
	}
	state.canceled = true
	state.order.State = schema.OrderCancelled
	state.order.UpdatedAt = time.Now().UTC()
	return nil
}

// ListOpenOrders returns every tracked non-terminal order whose
// client_order_id starts with prefix, mirroring the restart-reconciliation
// contract RESTVenueClient implements against a real exchange.
func (p *PaperVenueClient) ListOpenOrders(_ context.Context, prefix string) ([]schema.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []schema.Order
	for id, state := range p.orders {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if state.order.State.Terminal() {
			continue
		}
		out = append(out, state.order)
	}
	return out, nil
}

var _ VenueClient = (*PaperVenueClient)(nil)
