package delhivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *carrier.Breaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Breaker carrier.BreakerConfig
	Logger  *otelzap.Logger
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
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: carrier.NewBreaker(carrier.TypeDelhivery, breakerCfg, cfg.Logger),
	}
}

// GetPincode calls GET /c/api/pin-codes/json/?filter_codes=.
func (c *HTTPAPIClient) GetPincode(ctx context.Context, pincode string) (*PincodeResponse, error) {
	path := "/c/api/pin-codes/json/?filter_codes=" + url.QueryEscape(pincode)
	return call[*PincodeResponse](ctx, c, http.MethodGet, path, "", nil)
}

// GetCharges calls GET /api/kinko/v1/invoice/charges/.json.
func (c *HTTPAPIClient) GetCharges(ctx context.Context, req *ChargesRequest) ([]ChargeData, error) {
	q := url.Values{}
	q.Set("md", req.Mode)
	q.Set("ss", "Delivered")
	q.Set("o_pin", req.OriginPin)
	q.Set("d_pin", req.DestinationPin)
	q.Set("cgm", strconv.FormatFloat(req.ChargeableGrams, 'f', -1, 64))
	q.Set("pt", req.PaymentType)
	if req.CODAmount > 0 {
		q.Set("cod", strconv.FormatFloat(req.CODAmount, 'f', 2, 64))
	}
	return call[[]ChargeData](ctx, c, http.MethodGet, "/api/kinko/v1/invoice/charges/.json?"+q.Encode(), "", nil)
}

// CreateOrder calls POST /api/cmu/create.json. The payload is sent as the
// "data" field of a form, as the API requires.
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create order payload: %w", err)
	}
	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(data))

	return call[*CreateOrderResponse](ctx, c, http.MethodPost, "/api/cmu/create.json",
		"application/x-www-form-urlencoded", []byte(form.Encode()))
}

// CreatePickupRequest calls POST /fm/request/new/.
func (c *HTTPAPIClient) CreatePickupRequest(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup request: %w", err)
	}
	return call[*PickupResponse](ctx, c, http.MethodPost, "/fm/request/new/", "application/json", body)
}

// TrackPackage calls GET /api/v1/packages/json/?waybill=.
func (c *HTTPAPIClient) TrackPackage(ctx context.Context, waybill string) (*TrackResponse, error) {
	path := "/api/v1/packages/json/?waybill=" + url.QueryEscape(waybill)
	return call[*TrackResponse](ctx, c, http.MethodGet, path, "", nil)
}

// EditPackage calls POST /api/p/edit.
func (c *HTTPAPIClient) EditPackage(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edit request: %w", err)
	}
	return call[*EditResponse](ctx, c, http.MethodPost, "/api/p/edit", "application/json", body)
}

// GetPackingSlip calls GET /api/p/packing_slip?wbns=.
func (c *HTTPAPIClient) GetPackingSlip(ctx context.Context, waybill string) (*PackingSlipResponse, error) {
	path := "/api/p/packing_slip?pdf=true&wbns=" + url.QueryEscape(waybill)
	return call[*PackingSlipResponse](ctx, c, http.MethodGet, path, "", nil)
}

// call performs a request and decodes the JSON response into T.
func call[T any](ctx context.Context, c *HTTPAPIClient, method, path, contentType string, body []byte) (T, error) {
	var zero T

	resp, err := c.doRequest(ctx, method, path, contentType, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return zero, c.parseError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return out, nil
}

// doRequest performs an HTTP request with token authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	return c.breaker.Do(func() (*http.Response, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("User-Agent", "courier/1.0")

		return c.httpClient.Do(req)
	})
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var simpleErr struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &simpleErr); err == nil {
		for _, msg := range []string{simpleErr.Error, simpleErr.Detail, simpleErr.Message} {
			if msg != "" {
				return httpError(resp.StatusCode, msg)
			}
		}
	}

	return httpError(resp.StatusCode, string(body))
}

var _ APIClient = (*HTTPAPIClient)(nil)
