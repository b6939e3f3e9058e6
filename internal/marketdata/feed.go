package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// VenueEvent is the decoded, venue-agnostic event the feed delivers. Only
// one field is populated per event: Trade, Quote, BookSnapshot, or
// BookDelta.
type VenueEvent struct {
	Trade *schema.Trade
	Quote *schema.Quote
	Snapshot *schema.BookSnapshot
	Delta *schema.BookDelta
}

// VenueFeed is the boundary the core depends on: the wire
// format, authentication and reconnect mechanics of a specific exchange
// are out of scope for this repository and live behind this interface. An
// implementation must commit to one venue per build (Open
// Question); Connect authenticates and subscribes to symbols, Events
// yields the decoded stream until ctx is cancelled or the connection
// drops.
type VenueFeed interface {
	Connect(ctx context.Context, symbols []schema.Symbol) error
	Events() <-chan VenueEvent
	Snapshot(ctx context.Context, symbol schema.Symbol) (schema.BookSnapshot, error)
	Close() error
}

// BinanceStyleFeed is the committed venue adapter: a Binance-style crypto
// perpetual venue. It implements VenueFeed over a gorilla/websocket
// connection for the live stream and go-resty for the REST depth
// snapshot, grounded on the subscribe-then-stream pattern used across the
// pack's exchange adapters (ndrandal-feed-simulator, 0xtitan6-polymarket-mm,
// YoForex005's feed client).
type BinanceStyleFeed struct {
	wsURL string
	apiKey string
	apiSecret string
	log *zap.SugaredLogger

	rest *resty.Client
	conn *websocket.Conn
	events chan VenueEvent
}

// NewBinanceStyleFeed builds an adapter bound to wsURL for the live stream
// and restURL for depth-snapshot bootstrap/resync, authenticating with
// apiKey/apiSecret in the subscribe frame and the REST request header.
func NewBinanceStyleFeed(wsURL, restURL, apiKey, apiSecret string, log *zap.SugaredLogger) *BinanceStyleFeed {
	return &BinanceStyleFeed{
		wsURL: wsURL,
		apiKey: apiKey,
		apiSecret: apiSecret,
		log: log,
		rest: resty.New().SetBaseURL(restURL).SetHeader("X-API-KEY", apiKey).SetTimeout(5 * time.Second),
		events: make(chan VenueEvent, 4096),
	}
}

type subscribeFrame struct {
	Op string `json:"op"`
	Channels []string `json:"channels"`
	APIKey string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`
}

type wireMessage struct {
	Channel string `json:"channel"`
	Symbol string `json:"symbol"`
	Data json.RawMessage `json:"data"`
}

// Connect dials the venue WebSocket and subscribes trade/quote/book
// streams for symbols. Auth failure is fatal (failure
// semantics); transport errors are returned to the caller and not retried
// here. Service.Run does not retry them either.
func (f *BinanceStyleFeed) Connect(ctx context.Context, symbols []schema.Symbol) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return schema.NewError(schema.ErrTransport, "dial venue websocket", err)
	}
	f.conn = conn

	channels := make([]string, 0, len(symbols)*3)
	for _, s := range symbols {
		channels = append(channels, "trade."+string(s), "quote."+string(s), "book."+string(s))
	}
	frame := subscribeFrame{Op: "subscribe", Channels: channels, APIKey: f.apiKey, APISecret: f.apiSecret}
	if err := conn.WriteJSON(frame); err != nil {
		return schema.NewError(schema.ErrTransport, "send subscribe frame", err)
	}

	if f.apiKey == "" {
		return schema.NewFatalError(schema.ErrVenueAuth, "missing venue api key", nil)
	}

	go f.readLoop(ctx)
	return nil
}

func (f *BinanceStyleFeed) readLoop(ctx context.Context) {
	defer close(f.events)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			f.log.Warnw("venue feed read error", "error", err)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.log.Warnw("venue feed parse error", "error", err)
			continue
		}
		ev, err := decodeWireMessage(msg)
		if err != nil {
			f.log.Warnw("venue feed decode error", "error", err)
			continue
		}
		select {
		case f.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func decodeWireMessage(msg wireMessage) (VenueEvent, error) {
	symbol := schema.Intern(msg.Symbol)
	now := time.Now().UTC()

	switch {
	case len(msg.Channel) >= 5 && msg.Channel[:5] == "trade":
		var t struct {
			Price decimal.Decimal `json:"price"`
			Qty decimal.Decimal `json:"qty"`
			Side string `json:"side"`
		}
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			return VenueEvent{}, err
		}
		return VenueEvent{Trade: &schema.Trade{
			Symbol: symbol, Price: t.Price, Quantity: t.Qty,
			Side: schema.Side(t.Side), Timestamp: now,
		}}, nil
	case len(msg.Channel) >= 5 && msg.Channel[:5] == "quote":
		var q struct {
			BestBid decimal.Decimal `json:"best_bid"`
			BestAsk decimal.Decimal `json:"best_ask"`
			BidSize decimal.Decimal `json:"bid_size"`
			AskSize decimal.Decimal `json:"ask_size"`
		}
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			return VenueEvent{}, err
		}
		return VenueEvent{Quote: &schema.Quote{
			Symbol: symbol, BestBid: q.BestBid, BestAsk: q.BestAsk,
			BidSize: q.BidSize, AskSize: q.AskSize, Timestamp: now,
		}}, nil
	case len(msg.Channel) >= 4 && msg.Channel[:4] == "book":
		var d schema.BookDelta
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return VenueEvent{}, err
		}
		d.Symbol = symbol
		return VenueEvent{Delta: &d}, nil
	default:
		return VenueEvent{}, fmt.Errorf("unknown channel %q", msg.Channel)
	}
}

// Events returns the decoded event stream.
func (f *BinanceStyleFeed) Events() <-chan VenueEvent { return f.events }

type depthLevel [2]decimal.Decimal

type depthResponse struct {
	LastUpdateID int64 `json:"lastUpdateId"`
	Bids []depthLevel `json:"bids"`
	Asks []depthLevel `json:"asks"`
}

// Snapshot fetches a full book snapshot over the venue's REST depth
// endpoint (GET /depth?symbol=...), used to bootstrap a book on startup
// and to resync it after a sequence gap.
func (f *BinanceStyleFeed) Snapshot(ctx context.Context, symbol schema.Symbol) (schema.BookSnapshot, error) {
	var out depthResponse
	resp, err := f.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetResult(&out).
		Get("/depth")
	if err != nil {
		return schema.BookSnapshot{}, schema.NewError(schema.ErrTransport, "fetch depth snapshot", err)
	}
	if resp.IsError() {
		return schema.BookSnapshot{}, schema.NewError(schema.ErrTransport, fmt.Sprintf("depth snapshot: venue returned %d", resp.StatusCode()), nil)
	}

	now := time.Now().UTC()
	snap := schema.BookSnapshot{
		Symbol: symbol,
		Bids: make([]schema.BookLevel, len(out.Bids)),
		Asks: make([]schema.BookLevel, len(out.Asks)),
		LastUpdateID: out.LastUpdateID,
		Timestamp: now,
	}
	for i, lvl := range out.Bids {
		snap.Bids[i] = schema.BookLevel{Price: lvl[0], Quantity: lvl[1], Timestamp: now}
	}
	for i, lvl := range out.Asks {
		snap.Asks[i] = schema.BookLevel{Price: lvl[0], Quantity: lvl[1], Timestamp: now}
	}
	return snap, nil
}

// Close releases the underlying connection.
func (f *BinanceStyleFeed) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

// ReconnectPolicy builds an exponential backoff (1s -> 60s cap) that
// never gives up. Nothing in this module calls it.
func ReconnectPolicy() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}
