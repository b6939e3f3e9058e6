package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// TestRESTVenueClient_DuplicateSubmissionReconcilesToWorking reproduces
// scenario 5: a retried submission with the same client_order_id
// comes back as a venue-side duplicate rejection (409), and the client
// reconciles by querying order status rather than surfacing an error.
func TestRESTVenueClient_DuplicateSubmissionReconcilesToWorking(t *testing.T) {
	var submissions int32

	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			n := atomic.AddInt32(&submissions, 1)
			if n == 1 {
				w.WriteHeader(http.StatusAccepted)
				_ = json.NewEncoder(w).Encode(venueOrderResponse{VenueOrderID: "v1", ClientOrderID: "X", State: "submitted"})
				return
			}
			w.WriteHeader(http.StatusConflict) // duplicate client_order_id
		}
	})
	mux.HandleFunc("/orders/X", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(venueOrderResponse{VenueOrderID: "v1", ClientOrderID: "X", State: "working"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewRESTVenueClient(srv.URL, "test-key", 2*time.Second)
	order := schema.Order{ClientOrderID: "X", Symbol: schema.Intern("AAPL"), Side: schema.SideBuy, Type: schema.OrderTypeMarket, Quantity: decimal.NewFromInt(1), TIF: schema.TIFGoodTilCancel}

	first, err := client.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, schema.OrderState("submitted"), first.State)

	// retry with the same client_order_id: venue returns duplicate (409),
	// client reconciles via GetOrder instead of erroring.
	second, err := client.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, schema.OrderWorking, second.State)
	require.Equal(t, int32(2), atomic.LoadInt32(&submissions))
}

func TestRESTVenueClient_TerminalErrorSurfacesStatusCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewRESTVenueClient(srv.URL, "test-key", 2*time.Second)
	order := schema.Order{ClientOrderID: "Y", Symbol: schema.Intern("AAPL"), Quantity: decimal.NewFromInt(1)}

	_, err := client.SubmitOrder(context.Background(), order)
	require.Error(t, err)
	require.False(t, Transient(err))
}
