package execution

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// VenueClient is the REST boundary to the exchange: POST /orders, GET
// /orders/{id}, DELETE /orders/{id}, GET /positions, GET /account,
// abstracted so paper and live implementations share callers.
type VenueClient interface {
	SubmitOrder(ctx context.Context, order schema.Order) (schema.Order, error)
	GetOrder(ctx context.Context, clientOrderID string) (schema.Order, error)
	CancelOrder(ctx context.Context, clientOrderID string) error
	ListOpenOrders(ctx context.Context, clientOrderIDPrefix string) ([]schema.Order, error)
}

// RESTVenueClient implements VenueClient against a Binance-style REST API
// (its committed venue choice) using go-resty, matching the client
// construction style of a JSON-over-HTTPS exchange adapter.
type RESTVenueClient struct {
	client *resty.Client
}

// NewRESTVenueClient builds a client against baseURL, authenticating every
// request with an API-key header, with the configured per-call deadline.
func NewRESTVenueClient(baseURL, apiKey string, timeout time.Duration) *RESTVenueClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-API-KEY", apiKey).
		SetTimeout(timeout)
	return &RESTVenueClient{client: c}
}

type submitOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol string `json:"symbol"`
	Side string `json:"side"`
	Type string `json:"type"`
	Quantity string `json:"quantity"`
	Price *string `json:"price,omitempty"`
	StopPrice *string `json:"stop_price,omitempty"`
	TIF string `json:"tif"`
	ReduceOnly bool `json:"reduce_only"`
}

type venueOrderResponse struct {
	VenueOrderID string `json:"venue_order_id"`
	ClientOrderID string `json:"client_order_id"`
	State string `json:"state"`
}

// SubmitOrder posts a new order keyed by order.ClientOrderID. A duplicate
// submission of the same client_order_id (the retry path) is expected to
// be rejected by the venue as a duplicate; SubmitOrder treats HTTP 409 the
// same as success and reconciles the real state via GetOrder instead of
// surfacing an error.
func (c *RESTVenueClient) SubmitOrder(ctx context.Context, order schema.Order) (schema.Order, error) {
	req := submitOrderRequest{
		ClientOrderID: order.ClientOrderID,
		Symbol: string(order.Symbol),
		Side: string(order.Side),
		Type: string(order.Type),
		Quantity: order.Quantity.String(),
		TIF: string(order.TIF),
		ReduceOnly: order.ReduceOnly,
	}
	if order.Price != nil {
		s := order.Price.String()
		req.Price = &s
	}
	if order.StopPrice != nil {
		s := order.StopPrice.String()
		req.StopPrice = &s
	}

	var out venueOrderResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return order, &VenueError{Err: fmt.Errorf("submit order: %w", err)}
	}

	if resp.StatusCode() == http.StatusConflict {
		return c.GetOrder(ctx, order.ClientOrderID)
	}
	if resp.IsError() {
		return order, &VenueError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("submit order: venue returned %d", resp.StatusCode())}
	}

	order.VenueOrderID = out.VenueOrderID
	order.State = schema.OrderState(out.State)
	order.UpdatedAt = time.Now().UTC()
	return order, nil
}

// GetOrder queries current venue state for a client_order_id, used for
// ack-timeout reconciliation and post-duplicate-rejection reconciliation.
func (c *RESTVenueClient) GetOrder(ctx context.Context, clientOrderID string) (schema.Order, error) {
	var out venueOrderResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + clientOrderID)
	if err != nil {
		return schema.Order{}, &VenueError{Err: fmt.Errorf("get order: %w", err)}
	}
	if resp.IsError() {
		return schema.Order{}, &VenueError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("get order: venue returned %d", resp.StatusCode())}
	}
	return schema.Order{
		ClientOrderID: out.ClientOrderID,
		VenueOrderID: out.VenueOrderID,
		State: schema.OrderState(out.State),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// CancelOrder requests cancellation of a working order.
func (c *RESTVenueClient) CancelOrder(ctx context.Context, clientOrderID string) error {
	resp, err := c.client.R().SetContext(ctx).Delete("/orders/" + clientOrderID)
	if err != nil {
		return &VenueError{Err: fmt.Errorf("cancel order: %w", err)}
	}
	if resp.IsError() {
		return &VenueError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("cancel order: venue returned %d", resp.StatusCode())}
	}
	return nil
}

// ListOpenOrders queries every non-terminal order whose client_order_id
// starts with prefix, used for restart reconciliation: on restart, any
// non-terminal orders are reconciled from the venue by client_order_id
// prefix query.
func (c *RESTVenueClient) ListOpenOrders(ctx context.Context, prefix string) ([]schema.Order, error) {
	var out []venueOrderResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("client_order_id_prefix", prefix).
		SetResult(&out).
		Get("/orders")
	if err != nil {
		return nil, &VenueError{Err: fmt.Errorf("list open orders: %w", err)}
	}
	if resp.IsError() {
		return nil, &VenueError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("list open orders: venue returned %d", resp.StatusCode())}
	}

	orders := make([]schema.Order, 0, len(out))
	for _, o := range out {
		if !strings.HasPrefix(o.ClientOrderID, prefix) {
			continue
		}
		state := schema.OrderState(o.State)
		if state.Terminal() {
			continue
		}
		orders = append(orders, schema.Order{
			ClientOrderID: o.ClientOrderID,
			VenueOrderID: o.VenueOrderID,
			State: state,
		})
	}
	return orders, nil
}
