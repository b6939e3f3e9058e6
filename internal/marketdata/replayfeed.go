package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

type replayBar struct {
	symbol schema.Symbol
	open, high, low, close, volume float64
	timestamp time.Time
}

// ReplayFeed is a VenueFeed over a CSV file of historical OHLCV bars,
// played back on a speed-scaled ticker instead of a live exchange
// connection, with pause/resume/seek transport control for backtests
// and demos.
type ReplayFeed struct {
	path  string
	speed int

	mu     sync.Mutex
	paused bool
	index  int
	data   []replayBar

	events chan VenueEvent
	cancel context.CancelFunc
}

// NewReplayFeed builds a feed that reads every row of the CSV at path and
// plays it back at speed ticks per wall-clock second (a "10x" source plays
// ten bars per second). speed <= 0 defaults to 1.
func NewReplayFeed(path string, speed int) *ReplayFeed {
	if speed <= 0 {
		speed = 1
	}
	return &ReplayFeed{
		path:   path,
		speed:  speed,
		events: make(chan VenueEvent, 4096),
	}
}

// Connect loads the CSV, sorts it by timestamp, and starts the playback
// ticker. symbols is used only to tag bars that have no symbol column.
func (f *ReplayFeed) Connect(ctx context.Context, symbols []schema.Symbol) error {
	fallback := schema.Intern("BTCUSDT")
	if len(symbols) > 0 {
		fallback = symbols[0]
	}

	data, err := readReplayCSV(f.path, fallback)
	if err != nil {
		return fmt.Errorf("replay feed: %w", err)
	}
	sort.Slice(data, func(i, j int) bool { return data[i].timestamp.Before(data[j].timestamp) })

	f.mu.Lock()
	f.data = data
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(runCtx)
	return nil
}

func (f *ReplayFeed) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(f.speed))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.paused || f.index >= len(f.data) {
				f.mu.Unlock()
				continue
			}
			bar := f.data[f.index]
			f.index++
			f.mu.Unlock()

			f.emit(bar)
		}
	}
}

func (f *ReplayFeed) emit(bar replayBar) {
	spread := math.Max((bar.high-bar.low)*0.2, math.Max(bar.close*0.0004, 0.5))
	bestBid := bar.close - spread/2
	bestAsk := bar.close + spread/2
	side := schema.SideBuy
	if bar.close < bar.open {
		side = schema.SideSell
	}
	size := math.Max(bar.volume*0.1, 1)

	trade := schema.Trade{
		Symbol: bar.symbol, Price: decimal.NewFromFloat(bar.close), Quantity: decimal.NewFromFloat(size),
		Side: side, Timestamp: bar.timestamp,
	}
	quote := schema.Quote{
		Symbol: bar.symbol, BestBid: decimal.NewFromFloat(bestBid), BestAsk: decimal.NewFromFloat(bestAsk),
		BidSize: decimal.NewFromFloat(math.Max(bar.volume*0.25, 1)), AskSize: decimal.NewFromFloat(math.Max(bar.volume*0.25, 1)),
		Timestamp: bar.timestamp,
	}

	f.events <- VenueEvent{Trade: &trade}
	f.events <- VenueEvent{Quote: &quote}
}

// Pause halts playback without losing position in the series.
func (f *ReplayFeed) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

// Resume continues playback from the current position.
func (f *ReplayFeed) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

// Seek jumps playback to the first bar at or after ts. A target before the
// first bar or after the last is clamped to the nearest end.
func (f *ReplayFeed) Seek(ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return
	}
	idx := sort.Search(len(f.data), func(i int) bool { return !f.data[i].timestamp.Before(ts) })
	if idx >= len(f.data) {
		idx = len(f.data) - 1
	}
	f.index = idx
}

// Events returns the decoded event stream.
func (f *ReplayFeed) Events() <-chan VenueEvent {
	return f.events
}

// Snapshot synthesizes a one-level book from the bar at the current
// playback position.
func (f *ReplayFeed) Snapshot(_ context.Context, symbol schema.Symbol) (schema.BookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.data) {
		return schema.BookSnapshot{}, fmt.Errorf("replay feed: no bar remaining for %s", symbol)
	}
	bar := f.data[f.index]
	spread := math.Max((bar.high-bar.low)*0.2, math.Max(bar.close*0.0004, 0.5))
	return schema.BookSnapshot{
		Symbol: symbol,
		Bids: []schema.BookLevel{{Price: decimal.NewFromFloat(bar.close - spread/2), Quantity: decimal.NewFromFloat(10), Timestamp: bar.timestamp}},
		Asks: []schema.BookLevel{{Price: decimal.NewFromFloat(bar.close + spread/2), Quantity: decimal.NewFromFloat(10), Timestamp: bar.timestamp}},
		Timestamp: bar.timestamp,
	}, nil
}

// Close stops the playback ticker.
func (f *ReplayFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func readReplayCSV(path string, fallbackSymbol schema.Symbol) ([]replayBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv file %s has no data rows", path)
	}

	header := make(map[string]int, len(records[0]))
	for idx, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = idx
	}
	for _, key := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := header[key]; !ok {
			return nil, fmt.Errorf("csv file %s missing required column %q", path, key)
		}
	}
	symbolIdx, hasSymbol := header["symbol"]
	volumeIdx, hasVolume := header["volume"]

	bars := make([]replayBar, 0, len(records)-1)
	for _, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339, rec[header["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", rec[header["timestamp"]], err)
		}
		open, err := strconv.ParseFloat(rec[header["open"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid open price: %w", err)
		}
		high, err := strconv.ParseFloat(rec[header["high"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid high price: %w", err)
		}
		low, err := strconv.ParseFloat(rec[header["low"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid low price: %w", err)
		}
		closeVal, err := strconv.ParseFloat(rec[header["close"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid close price: %w", err)
		}
		volume := 0.0
		if hasVolume && volumeIdx < len(rec) && rec[volumeIdx] != "" {
			volume, _ = strconv.ParseFloat(rec[volumeIdx], 64)
		}
		symbol := fallbackSymbol
		if hasSymbol && symbolIdx < len(rec) && rec[symbolIdx] != "" {
			symbol = schema.Intern(rec[symbolIdx])
		}
		bars = append(bars, replayBar{symbol: symbol, open: open, high: high, low: low, close: closeVal, volume: volume, timestamp: ts.UTC()})
	}
	return bars, nil
}

var _ VenueFeed = (*ReplayFeed)(nil)
