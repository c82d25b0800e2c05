package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tournevent/courier/internal/graphql"
	"github.com/tournevent/courier/internal/server"
	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/internal/telemetry"
	"github.com/tournevent/courier/pkg/carrier"
	"github.com/tournevent/courier/pkg/carrier/mock"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	registry, err := carrier.NewRegistry(mock.New(carrier.TypeShipmozo))
	require.NoError(t, err)

	orchestrator := shipping.NewOrchestrator(shipping.Deps{
		Registry: registry,
		Selector: shipping.NewSelector(nil, nil),
		Store:    store.NewMemoryStore(),
		Metrics:  metrics,
	})
	resolver := graphql.NewResolver(orchestrator, nil, metrics)

	return server.New(server.Config{Port: 8080, Gatherer: reg}, resolver, nil).Handler()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_GraphQL_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	errs, ok := decode(t, rec)["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestServer_GraphQL_InvalidJSON(t *testing.T) {
	h := newTestServer(t)

	rec := post(t, h, "{invalid json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs, ok := decode(t, rec)["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].(map[string]any)["message"], "Invalid JSON")
}

func TestServer_GraphQL_Query(t *testing.T) {
	h := newTestServer(t)

	rec := post(t, h, `{"query": "{ health carriers { type } }"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.NotContains(t, resp, "errors")
	assert.Equal(t, map[string]any{
		"health":   "ok",
		"carriers": []any{map[string]any{"type": "shipmozo"}},
	}, resp["data"])
}

func TestServer_GraphQL_ValidationErrorIsBadRequest(t *testing.T) {
	h := newTestServer(t)

	rec := post(t, h, `{"query": "{ unknownField }"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Nil(t, resp["data"])
	assert.NotEmpty(t, resp["errors"])
}

func TestServer_GraphQL_FieldErrorIsOK(t *testing.T) {
	h := newTestServer(t)

	rec := post(t, h, `{"query": "{ shipment(orderId: \"missing\") { shipment { id } } }"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	errs, ok := resp["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	ext := errs[0].(map[string]any)["extensions"].(map[string]any)
	assert.Equal(t, graphql.CodeNotFound, ext["code"])
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(t)
	post(t, h, `{"query": "{ health }"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `courier_requests_total{carrier="all",operation="graphql_health",status="success"} 1`)
}

func TestServer_Playground(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/playground", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/graphql")
}
