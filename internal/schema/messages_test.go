package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		typ  MessageType
		val  interface{}
	}{
		{"trade", TypeTrade, Trade{
			Symbol: Intern("AAPL"), Price: decimal.NewFromFloat(175.51),
			Quantity: decimal.NewFromInt(50), Side: SideBuy, Timestamp: time.Now().UTC(),
		}},
		{"bar", TypeBar, Bar{
			Symbol: Intern("AAPL"), Interval: "1s",
			Open: decimal.NewFromFloat(175.51), High: decimal.NewFromFloat(175.51),
			Low: decimal.NewFromFloat(175.51), Close: decimal.NewFromFloat(175.51),
			Volume: decimal.NewFromInt(50), IntervalStart: time.Now().UTC(), Closed: true,
		}},
		{"signal", TypeSignal, Signal{
			Symbol: Intern("AAPL"), Action: ActionBuy, Confidence: 0.82,
			Features: map[string]float64{"rsi": 61.2}, Timestamp: time.Now().UTC(),
		}},
		{"heartbeat", TypeHeartbeat, Heartbeat{Component: "market-data", Timestamp: time.Now().UTC()}},
		{"shutdown", TypeShutdown, Shutdown{Component: "market-data", Reason: "sigterm", Timestamp: time.Now().UTC()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.typ, tc.val)
			require.NoError(t, err)

			typ, data, err := Decode(raw)
			require.NoError(t, err)
			require.Equal(t, tc.typ, typ)
			require.NotEmpty(t, data)
		})
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	require.Error(t, err)
	require.True(t, IsKind(err, ErrProtocolParse))
}

func TestDecodeMissingType(t *testing.T) {
	_, _, err := Decode([]byte(`{"data":{}}`))
	require.Error(t, err)
	require.True(t, IsKind(err, ErrProtocolParse))
}

func TestDecodeAsTypeMismatch(t *testing.T) {
	raw, err := Encode(TypeTrade, Trade{Symbol: Intern("AAPL")})
	require.NoError(t, err)

	var bar Bar
	err = DecodeAs(raw, TypeBar, &bar)
	require.Error(t, err)
}

func TestSymbolInterning(t *testing.T) {
	a := Intern("AAPL")
	b := Intern("AAPL")
	require.Equal(t, a, b)
	require.Equal(t, string(a), string(b))
}

func TestTopicGrammar(t *testing.T) {
	require.Equal(t, "market.trade.AAPL", ForSymbol(TopicMarketTrade, Intern("AAPL")))
	require.Equal(t, "market.bar.AAPL.1s", ForBarInterval(Intern("AAPL"), "1s"))
	require.True(t, MatchesPrefix("market.trade.AAPL", "market.trade"))
	require.True(t, MatchesPrefix("market.trade", "market.trade"))
	require.False(t, MatchesPrefix("market.tradeish", "market.trade"))
}
