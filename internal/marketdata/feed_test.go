package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func TestBinanceStyleFeed_SnapshotParsesDepthResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/depth", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"lastUpdateId": 42,
			"bids": [["100.5", "2"], ["100.0", "5"]],
			"asks": [["101.0", "3"]]
		}`))
	}))
	defer server.Close()

	feed := NewBinanceStyleFeed("wss://example.invalid", server.URL, "key", "secret", zap.NewNop().Sugar())

	symbol := schema.Intern("BTCUSDT")
	snap, err := feed.Snapshot(context.Background(), symbol)
	require.NoError(t, err)

	require.Equal(t, int64(42), snap.LastUpdateID)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 1)
	require.Equal(t, "100.5", snap.Bids[0].Price.String())
	require.Equal(t, "2", snap.Bids[0].Quantity.String())
	require.Equal(t, "101", snap.Asks[0].Price.String())
}

func TestBinanceStyleFeed_SnapshotSurfacesVenueErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	feed := NewBinanceStyleFeed("wss://example.invalid", server.URL, "key", "secret", zap.NewNop().Sugar())

	_, err := feed.Snapshot(context.Background(), schema.Intern("BTCUSDT"))
	require.Error(t, err)
}
