package shipmozo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	publicKey  string
	privateKey string
	httpClient *http.Client
	breaker    *carrier.Breaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Timeout    time.Duration
	Breaker    carrier.BreakerConfig
	Logger     *otelzap.Logger
}

// BreakerState returns the state of the breaker guarding this client.
func (c *HTTPAPIClient) BreakerState() string {
	return c.breaker.State()
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.ConsecutiveFailures == 0 {
		breakerCfg = carrier.DefaultBreakerConfig()
	}

	return &HTTPAPIClient{
		baseURL:    cfg.BaseURL,
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: carrier.NewBreaker(carrier.TypeShipmozo, breakerCfg, cfg.Logger),
	}
}

// CheckServiceability calls POST /pincode-serviceability.
func (c *HTTPAPIClient) CheckServiceability(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityData, error) {
	return call[*ServiceabilityData](ctx, c, http.MethodPost, "/pincode-serviceability", req)
}

// CalculateRates calls POST /rate-calculator.
func (c *HTTPAPIClient) CalculateRates(ctx context.Context, req *RateCalculatorRequest) ([]RateData, error) {
	return call[[]RateData](ctx, c, http.MethodPost, "/rate-calculator", req)
}

// PushOrder calls POST /push-order.
func (c *HTTPAPIClient) PushOrder(ctx context.Context, req *PushOrderRequest) (*PushOrderData, error) {
	return call[*PushOrderData](ctx, c, http.MethodPost, "/push-order", req)
}

// AssignCourier calls POST /assign-courier.
func (c *HTTPAPIClient) AssignCourier(ctx context.Context, req *AssignCourierRequest) (*AssignCourierData, error) {
	return call[*AssignCourierData](ctx, c, http.MethodPost, "/assign-courier", req)
}

// SchedulePickup calls POST /schedule-pickup.
func (c *HTTPAPIClient) SchedulePickup(ctx context.Context, req *SchedulePickupRequest) (*SchedulePickupData, error) {
	return call[*SchedulePickupData](ctx, c, http.MethodPost, "/schedule-pickup", req)
}

// TrackOrder calls GET /track-order?awb_number=.
func (c *HTTPAPIClient) TrackOrder(ctx context.Context, awbNumber string) (*TrackData, error) {
	path := "/track-order?awb_number=" + url.QueryEscape(awbNumber)
	return call[*TrackData](ctx, c, http.MethodGet, path, nil)
}

// CancelOrder calls POST /cancel-order.
func (c *HTTPAPIClient) CancelOrder(ctx context.Context, req *CancelOrderRequest) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, "/cancel-order", req)
	return err
}

// GetOrderLabel calls GET /get-order-label/{awb}.
func (c *HTTPAPIClient) GetOrderLabel(ctx context.Context, awbNumber string) ([]LabelData, error) {
	return call[[]LabelData](ctx, c, http.MethodGet, "/get-order-label/"+url.PathEscape(awbNumber), nil)
}

// GetWarehouses calls GET /get-warehouses.
func (c *HTTPAPIClient) GetWarehouses(ctx context.Context) ([]WarehouseData, error) {
	return call[[]WarehouseData](ctx, c, http.MethodGet, "/get-warehouses", nil)
}

// GetOrderDetail calls GET /get-order-detail/{order_id}.
func (c *HTTPAPIClient) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetailData, error) {
	return call[*OrderDetailData](ctx, c, http.MethodGet, "/get-order-detail/"+url.PathEscape(orderID), nil)
}

// call performs a request and unwraps the Shipmozo envelope.
func call[T any](ctx context.Context, c *HTTPAPIClient, method, path string, body any) (T, error) {
	var zero T

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return zero, c.parseError(resp)
	}

	var env Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if env.Result != "1" {
		return zero, rejected(env.Message)
	}
	return env.Data, nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	return c.breaker.Do(func() (*http.Response, error) {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("public-key", c.publicKey)
		req.Header.Set("private-key", c.privateKey)
		req.Header.Set("User-Agent", "courier/1.0")

		return c.httpClient.Do(req)
	})
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return httpError(resp.StatusCode, env.Message)
	}

	return httpError(resp.StatusCode, string(body))
}

var _ APIClient = (*HTTPAPIClient)(nil)
