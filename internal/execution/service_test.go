package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

func newTestService() *Service {
	log := zap.NewNop().Sugar()
	return NewService(nil, nil, NewRateLimiter(600, time.Second), RetryPolicy{}, decimal.NewFromInt(50), log, nil)
}

func TestService_SetVenueSucceedsWhenNoOrdersInFlight(t *testing.T) {
	svc := newTestService()
	venueA := &PaperVenueClient{}
	require.NoError(t, svc.SetVenue(venueA))
}

func TestService_SetVenueRefusedWhileOrderNonTerminal(t *testing.T) {
	svc := newTestService()
	svc.track(schema.Order{ClientOrderID: "co-1", State: schema.OrderWorking})

	err := svc.SetVenue(&PaperVenueClient{})
	require.Error(t, err)
}

func TestService_SetVenueAllowedOnceOrdersAreTerminal(t *testing.T) {
	svc := newTestService()
	svc.track(schema.Order{ClientOrderID: "co-1", State: schema.OrderFilled})

	require.NoError(t, svc.SetVenue(&PaperVenueClient{}))
}
