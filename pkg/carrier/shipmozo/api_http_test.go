package shipmozo_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/courier/pkg/carrier"
	"github.com/tournevent/courier/pkg/carrier/shipmozo"
)

func newHTTPClient(t *testing.T, handler http.HandlerFunc) *shipmozo.HTTPAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return shipmozo.NewHTTPAPIClient(shipmozo.HTTPAPIClientConfig{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
	})
}

func TestHTTPAPIClient_CalculateRates(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rate-calculator", r.URL.Path)
		assert.Equal(t, "pub", r.Header.Get("public-key"))
		assert.Equal(t, "priv", r.Header.Get("private-key"))

		var body shipmozo.RateCalculatorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 302001, body.DeliveryPincode)

		_, _ = w.Write([]byte(`{"result":"1","message":"ok","data":[
			{"courier_id":12,"courier_name":"Xpressbees","rate":72.5,"estimated_delivery_days":"4-6 days","pickups_automatically_scheduled":"NO"}
		]}`))
	})

	rates, err := client.CalculateRates(context.Background(), &shipmozo.RateCalculatorRequest{
		PickupPincode:   110001,
		DeliveryPincode: 302001,
	})

	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 12, rates[0].CourierID)
	assert.Equal(t, 72.5, rates[0].Rate)
}

func TestHTTPAPIClient_RejectedEnvelope(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"0","message":"Invalid AWB","data":null}`))
	})

	_, err := client.TrackOrder(context.Background(), "123")

	var apiErr *shipmozo.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, shipmozo.CodeRejected, apiErr.Code)
	assert.Equal(t, "Invalid AWB", apiErr.Message)
	assert.ErrorIs(t, err, carrier.ErrRejected)
}

func TestClient_RejectedEnvelopeIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"result":"0","message":"Pincode not serviceable","data":null}`))
	}))
	t.Cleanup(srv.Close)

	client := shipmozo.New(shipmozo.Config{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Retry:      carrier.RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond},
	}, nil, nil)

	start := time.Now()
	assert.False(t, client.CheckServiceability(context.Background(), "110001", "302001"))
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	rates, err := client.GetRates(context.Background(), &carrier.RateRequest{
		PickupPincode:   "110001",
		DeliveryPincode: "302001",
		Weight:          500,
		PaymentType:     carrier.PaymentPrepaid,
		OrderAmount:     999,
	})
	require.NoError(t, err)
	assert.Empty(t, rates)
	assert.Equal(t, int32(1), hits.Load())
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestHTTPAPIClient_TrackOrderQuery(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track-order", r.URL.Path)
		assert.Equal(t, "AWB 1", r.URL.Query().Get("awb_number"))
		_, _ = w.Write([]byte(`{"result":"1","message":"","data":{"awb_number":"AWB 1","current_status":"In Transit"}}`))
	})

	data, err := client.TrackOrder(context.Background(), "AWB 1")

	require.NoError(t, err)
	assert.Equal(t, "In Transit", data.CurrentStatus)
}

func TestHTTPAPIClient_HTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, carrier.ErrAuthenticationFailed},
		{"rate limited", http.StatusTooManyRequests, carrier.ErrRateLimitExceeded},
		{"server error", http.StatusBadGateway, carrier.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"result":"0","message":"nope"}`))
			})

			_, err := client.GetWarehouses(context.Background())

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPAPIClient_CancelOrder(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel-order", r.URL.Path)
		var body shipmozo.CancelOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ORD-1", body.OrderID)
		_, _ = w.Write([]byte(`{"result":"1","message":"Order cancelled","data":{}}`))
	})

	err := client.CancelOrder(context.Background(), &shipmozo.CancelOrderRequest{OrderID: "ORD-1", AWBNumber: "123"})
	assert.NoError(t, err)
}

func TestHTTPAPIClient_GetOrderLabelPath(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-order-label/1400012345", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"1","message":"","data":[{"label":"iVBOR","created_at":"2026-10-01 10:00:00"}]}`))
	})

	labels, err := client.GetOrderLabel(context.Background(), "1400012345")

	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "iVBOR", labels[0].Label)
}

func TestClient_BreakerState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	api := shipmozo.NewHTTPAPIClient(shipmozo.HTTPAPIClientConfig{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Breaker: carrier.BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		},
	})
	client := shipmozo.NewWithAPIClient(shipmozo.Config{}, api, nil, nil)
	assert.Equal(t, "closed", client.BreakerState())

	for range 2 {
		_, err := api.TrackOrder(context.Background(), "AWB1")
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	mocked := shipmozo.NewWithAPIClient(shipmozo.Config{}, shipmozo.NewMockAPIClient(), nil, nil)
	assert.Empty(t, mocked.BreakerState())
}
