package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func baseLimits() Limits {
	return Limits{
		MaxPositionSize:     d(1000),
		MaxOrderSize:        d(1000),
		MaxNotionalExposure: d(1_000_000),
		MaxOpenPositions:    10,
		ConcentrationPct:    d(0.5),
		MaxDailyLoss:        d(5000),
	}
}

func TestCheck_RejectsOrderSizeExceeded(t *testing.T) {
	b := NewBreaker(time.Minute)
	pos := schema.Position{Symbol: schema.Intern("AAPL")}
	limits := baseLimits()
	limits.MaxOrderSize = d(1000)
	limits.MaxPositionSize = d(5000) // large enough that the position cap doesn't fire first

	cand := Candidate{
		Order:          schema.Order{Symbol: pos.Symbol, Side: schema.SideBuy, Quantity: d(1100)},
		EstimatedPrice: d(10),
	}
	require.Equal(t, schema.RejectOrderSizeExceeded, Check(b, pos, limits, cand))
}

func TestCheck_RejectsBreakerOpenOnIncreasingOrder(t *testing.T) {
	b := NewBreaker(time.Minute)
	b.Trip("daily loss cap breach", time.Now())
	pos := schema.Position{Symbol: schema.Intern("AAPL"), Quantity: d(10)}
	limits := baseLimits()

	cand := Candidate{
		Order:           schema.Order{Symbol: pos.Symbol, Side: schema.SideBuy, Quantity: d(5)},
		EstimatedPrice:  d(10),
		ReducesPosition: false,
	}
	require.Equal(t, schema.RejectBreakerOpen, Check(b, pos, limits, cand))
}

func TestCheck_AllowsFlatteningOrderWhileBreakerOpen(t *testing.T) {
	b := NewBreaker(time.Minute)
	b.Trip("daily loss cap breach", time.Now())
	pos := schema.Position{Symbol: schema.Intern("AAPL"), Quantity: d(10)}
	limits := baseLimits()

	cand := Candidate{
		Order:           schema.Order{Symbol: pos.Symbol, Side: schema.SideSell, Quantity: d(10)},
		EstimatedPrice:  d(10),
		ReducesPosition: true,
	}
	require.Equal(t, schema.RiskRejectReason(""), Check(b, pos, limits, cand))
}

func TestCheck_RejectsDailyLossCapBreach(t *testing.T) {
	b := NewBreaker(time.Minute)
	pos := schema.Position{Symbol: schema.Intern("AAPL"), DailyPnL: d(-5100)}
	limits := baseLimits()

	cand := Candidate{
		Order:           schema.Order{Symbol: pos.Symbol, Side: schema.SideSell, Quantity: d(1)},
		EstimatedPrice:  d(10),
		ReducesPosition: true,
	}
	require.Equal(t, schema.RejectDailyLossCapExceeded, Check(b, pos, limits, cand))
}

func TestCheck_RejectsConcentrationExceeded(t *testing.T) {
	b := NewBreaker(time.Minute)
	pos := schema.Position{Symbol: schema.Intern("AAPL")}
	limits := baseLimits()
	limits.MaxNotionalExposure = d(1_000_000)
	limits.ConcentrationPct = d(0.1)

	cand := Candidate{
		Order:             schema.Order{Symbol: pos.Symbol, Side: schema.SideBuy, Quantity: d(500)},
		EstimatedPrice:    d(10),
		PortfolioNotional: d(40_000), // other symbols
		SymbolNotional:    d(0),
	}
	// order adds 5000 notional; total = 45000; share = 5000/45000 = 11.1% > 10%
	require.Equal(t, schema.RejectConcentrationExceeded, Check(b, pos, limits, cand))
}

func TestCheck_ApprovesWithinAllLimits(t *testing.T) {
	b := NewBreaker(time.Minute)
	pos := schema.Position{Symbol: schema.Intern("AAPL")}
	limits := baseLimits()

	cand := Candidate{
		Order:             schema.Order{Symbol: pos.Symbol, Side: schema.SideBuy, Quantity: d(10)},
		EstimatedPrice:    d(10),
		PortfolioNotional: d(900), // other symbols already hold notional, so this order stays under the concentration cap
	}
	require.Equal(t, schema.RiskRejectReason(""), Check(b, pos, limits, cand))
}

func TestCheck_EveryRejectionHasAtLeastOneFailingPredicate(t *testing.T) {
	b := NewBreaker(time.Minute)
	limits := baseLimits()
	limits.MaxOrderSize = d(1)
	pos := schema.Position{Symbol: schema.Intern("AAPL")}

	cand := Candidate{
		Order:          schema.Order{Symbol: pos.Symbol, Side: schema.SideBuy, Quantity: d(2)},
		EstimatedPrice: d(10),
	}
	reason := Check(b, pos, limits, cand)
	require.NotEmpty(t, reason)
}
