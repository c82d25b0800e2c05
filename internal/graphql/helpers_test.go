package graphql_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tournevent/courier/internal/events"
	"github.com/tournevent/courier/internal/graphql"
	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/pkg/carrier"
)

func newTestResolver(t *testing.T, carriers ...carrier.Carrier) *graphql.Resolver {
	t.Helper()
	registry, err := carrier.NewRegistry(carriers...)
	require.NoError(t, err)

	orchestrator := shipping.NewOrchestrator(shipping.Deps{
		Registry:  registry,
		Selector:  shipping.NewSelector(nil, shipping.DefaultRegionalPreferences()),
		Store:     store.NewMemoryStore(),
		Publisher: &events.Recorder{},
	})
	return graphql.NewResolver(orchestrator, nil, nil)
}

// execute runs query with JSON-encoded variables, the way they arrive over HTTP.
func execute(t *testing.T, r *graphql.Resolver, query, variables string) *graphql.Response {
	t.Helper()
	req := graphql.Request{Query: query}
	if variables != "" {
		require.NoError(t, json.Unmarshal([]byte(variables), &req.Variables))
	}
	return r.Execute(context.Background(), req)
}

// data decodes the response data into dst through its JSON form.
func data(t *testing.T, resp *graphql.Response, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, dst))
}

func errorCodes(resp *graphql.Response) []string {
	codes := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		code, _ := e.Extensions["code"].(string)
		codes = append(codes, code)
	}
	return codes
}

const createShipmentMutation = `
mutation Book($orderId: String!) {
  createShipment(input: {
    orderId: $orderId
    orderDate: "2024-03-01"
    pickupPincode: "302001"
    deliveryPincode: "560001"
    weight: 500
    paymentType: PREPAID
    orderAmount: 1200
    customer: {
      name: "Asha Verma"
      phone: "9876543210"
      address1: "12 MG Road"
      city: "Bengaluru"
      state: "Karnataka"
    }
    items: [{name: "Bedsheet", sku: "BS-01", quantity: 1, price: 1200}]
  }) {
    success
    orderId
    trackingNumber
    trackingPending
    carrierType
    shippingCost
  }
}`
