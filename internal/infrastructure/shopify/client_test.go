package shopify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/shopify"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to the fake shop, whatever host go-shopify built
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func newTestSource(t *testing.T, handler http.HandlerFunc, timeout time.Duration) ports.ExternalDataSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return shopify.NewDataSourceWithOptions(shopify.Options{
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout, Transport: rewriteTransport{target: target}},
		Logger:     zerolog.Nop(),
	})
}

func testTenant() *domain.Tenant {
	return &domain.Tenant{ID: "t1", ShopDomain: "demo.myshopify.com", AccessToken: "shpat_test"}
}

func TestFetch_CustomersRequestShape(t *testing.T) {
	var gotPath, gotLimit, gotToken string
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"customers":[{"id":1,"email":"a@x.com","first_name":"Ann","last_name":"Lee","created_at":"2025-09-01T10:00:00-04:00"}]}`))
	}, time.Second)

	batch, err := source.Fetch(context.Background(), testTenant(), domain.ResourceCustomers)
	require.NoError(t, err)

	assert.Equal(t, "/admin/api/2023-10/customers.json", gotPath)
	assert.Equal(t, "50", gotLimit)
	assert.Equal(t, "shpat_test", gotToken)

	require.Len(t, batch.Customers, 1)
	c := batch.Customers[0]
	assert.Equal(t, int64(1), c.ID)
	require.NotNil(t, c.Email)
	assert.Equal(t, "a@x.com", *c.Email)
	require.NotNil(t, c.CreatedAt)
	_, offset := c.CreatedAt.Zone()
	assert.Equal(t, -4*3600, offset)
}

func TestFetch_OrdersDecodeMoneyAndLineItems(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders":[{"id":10,"total_price":"150.00","currency":"USD","created_at":"2025-09-01T10:00:00Z","customer":{"id":1},"line_items":[{"id":100,"title":"Mug","quantity":3,"price":"50.00","product_id":7}]}]}`))
	}, time.Second)

	batch, err := source.Fetch(context.Background(), testTenant(), domain.ResourceOrders)
	require.NoError(t, err)

	require.Len(t, batch.Orders, 1)
	o := batch.Orders[0]
	assert.Equal(t, domain.Money("150.00"), o.TotalPrice)
	require.NotNil(t, o.Customer)
	assert.Equal(t, int64(1), o.Customer.ID)
	require.Len(t, o.LineItems, 1)
	require.NotNil(t, o.LineItems[0].ProductID)
	assert.Equal(t, int64(7), *o.LineItems[0].ProductID)
	assert.Equal(t, 3, o.LineItems[0].Quantity)
}

func TestFetch_UpstreamStatusIsKept(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"errors":"upstream failure"}`))
		}, time.Second)

		_, err := source.Fetch(context.Background(), testTenant(), domain.ResourceProducts)
		require.Error(t, err)

		var fetchErr *domain.UpstreamFetchError
		require.True(t, errors.As(err, &fetchErr), "expected UpstreamFetchError, got %T", err)
		assert.Equal(t, status, fetchErr.Status)
		assert.Equal(t, domain.ResourceProducts, fetchErr.Resource)
	}
}

func TestFetch_TimeoutIsUpstreamFailure(t *testing.T) {
	release := make(chan struct{})
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := source.Fetch(context.Background(), testTenant(), domain.ResourceCustomers)
	require.Error(t, err)

	var fetchErr *domain.UpstreamFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 0, fetchErr.Status)
}
