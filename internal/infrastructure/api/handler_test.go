package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shopify-insights/internal/application"
	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/api"
	"shopify-insights/internal/infrastructure/lock"
	"shopify-insights/internal/infrastructure/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type stubSource struct {
	mu      sync.Mutex
	batches map[domain.ResourceType]*domain.ResourceBatch
	err     error
}

func (s *stubSource) Fetch(ctx context.Context, tenant *domain.Tenant, resource domain.ResourceType) (*domain.ResourceBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if b, ok := s.batches[resource]; ok {
		return b, nil
	}
	return &domain.ResourceBatch{}, nil
}

type server struct {
	t          *testing.T
	handler    http.Handler
	store      *memstore.Store
	source     *stubSource
	locker     *lock.LocalLocker
	reconciler *application.ReconciliationService
	tenants    *application.TenantService
}

func newServer(t *testing.T) *server {
	logger := zerolog.Nop()
	store := memstore.New()
	source := &stubSource{batches: map[domain.ResourceType]*domain.ResourceBatch{}}
	locker := lock.NewLocalLocker()
	reconciler := application.NewReconciliationService(store, nil, logger)
	tenants := application.NewTenantService(store.Tenants(), store.Customers(), logger)

	h := api.NewHandler(
		tenants,
		application.NewSyncService(store.Tenants(), source, reconciler, locker, logger),
		application.NewAggregationService(store, nil, logger),
		application.NewEventService(store.Tenants(), store.Events(), nil, logger),
		logger,
	)

	swagger := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(swagger, []byte(`{"swagger":"2.0"}`), 0o600))

	return &server{
		t:          t,
		handler:    api.NewRouter(api.RouterConfig{APIKey: testAPIKey, SwaggerFile: swagger}, h, logger),
		store:      store,
		source:     source,
		locker:     locker,
		reconciler: reconciler,
		tenants:    tenants,
	}
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	return s.doWithKey(method, path, body, testAPIKey)
}

func (s *server) doWithKey(method, path, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) tenant(shop string) *domain.Tenant {
	tenant, err := s.tenants.UpsertTenant(context.Background(), application.UpsertTenantInput{
		Name: shop, ShopDomain: shop, AccessToken: "shpat_" + shop,
	})
	require.NoError(s.t, err)
	return tenant
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func at(t *testing.T, s string) *time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return &ts
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.doWithKey(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.doWithKey(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doWithKey(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doWithKey(http.MethodGet, "/swagger/doc.json", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"swagger":"2.0"}`, rec.Body.String())
}

func TestProtectedRoutesRequireAPIKey(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/tenants", "/insights/x/summary", "/events/x"} {
		rec := s.doWithKey(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = s.doWithKey(http.MethodGet, path, "", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestTenants(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/tenants", `{"name":"Demo","shopDomain":"demo.myshopify.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "accessToken")

	rec = s.do(http.MethodPost, "/tenants", `{"name":"Demo",`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/tenants", `{"name":"Demo","shopDomain":"Demo.myshopify.com","accessToken":"shpat_secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "shpat_secret")

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "demo.myshopify.com", created["shopDomain"])
	assert.NotEmpty(t, created["id"])

	rec = s.do(http.MethodGet, "/tenants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created["id"], list[0]["id"])
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	tenant := s.tenant("a.myshopify.com")
	_, err := s.reconciler.ReconcileCustomers(context.Background(), tenant, []domain.CustomerRecord{
		{ID: 1, Email: strPtr("alice@test.com")},
	})
	require.NoError(t, err)

	rec := s.doWithKey(http.MethodPost, "/auth/login", `{"email":"ALICE@test.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Tenant domain.Tenant `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tenant.ID, body.Tenant.ID)

	rec = s.doWithKey(http.MethodPost, "/auth/login", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doWithKey(http.MethodPost, "/auth/login", `{"email":"nobody@test.com"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngest(t *testing.T) {
	s := newServer(t)
	tenant := s.tenant("a.myshopify.com")
	s.source.batches[domain.ResourceCustomers] = &domain.ResourceBatch{Customers: []domain.CustomerRecord{
		{ID: 1, Email: strPtr("a@test.com")},
		{ID: 0},
	}}

	t.Run("success", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/ingest/"+tenant.ID+"/customers", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body api.IngestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Report.Upserted)
		assert.Equal(t, 1, body.Report.Skipped)
		assert.Len(t, body.Report.Warnings, 1)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/ingest/missing/customers", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown resource", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/ingest/"+tenant.ID+"/inventory", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sync in progress", func(t *testing.T) {
		held, err := s.locker.TryLock(context.Background(), tenant.ID)
		require.NoError(t, err)
		defer held.Unlock(context.Background())

		rec := s.do(http.MethodPost, "/ingest/"+tenant.ID+"/orders", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s.source.err = &domain.UpstreamFetchError{Resource: domain.ResourceProducts, Status: http.StatusUnauthorized}
		defer func() { s.source.err = nil }()

		rec := s.do(http.MethodPost, "/ingest/"+tenant.ID+"/products", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decodeError(t, rec).Details, "401")
	})
}

func TestInsights(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	tenant := s.tenant("a.myshopify.com")

	_, err := s.reconciler.ReconcileCustomers(ctx, tenant, []domain.CustomerRecord{
		{ID: 1, Email: strPtr("c1@test.com"), FirstName: strPtr("C1")},
		{ID: 2, Email: strPtr("c2@test.com"), FirstName: strPtr("C2")},
	})
	require.NoError(t, err)
	_, err = s.reconciler.ReconcileOrders(ctx, tenant, []domain.OrderRecord{
		{ID: 1, TotalPrice: "100.00", CreatedAt: at(t, "2025-09-01T09:00:00Z"), Customer: &domain.CustomerRef{ID: 1}},
		{ID: 2, TotalPrice: "50.00", CreatedAt: at(t, "2025-09-01T15:00:00Z"), Customer: &domain.CustomerRef{ID: 2}},
		{ID: 3, TotalPrice: "200.00", CreatedAt: at(t, "2025-09-02T10:00:00Z"), Customer: &domain.CustomerRef{ID: 1}},
	})
	require.NoError(t, err)
	base := "/insights/" + tenant.ID

	t.Run("summary", func(t *testing.T) {
		rec := s.do(http.MethodGet, base+"/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var summary application.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, "350.00", summary.TotalRevenue)
		assert.Equal(t, int64(3), summary.TotalOrders)
	})

	t.Run("orders by date", func(t *testing.T) {
		rec := s.do(http.MethodGet, base+"/orders-by-date", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"2025-09-01":150,"2025-09-02":200}`, rec.Body.String())
		assert.Less(t, strings.Index(rec.Body.String(), "2025-09-01"), strings.Index(rec.Body.String(), "2025-09-02"))

		rec = s.do(http.MethodGet, base+"/orders-by-date?from=2025-09-02&to=2025-09-02", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"2025-09-02":200}`, rec.Body.String())

		rec = s.do(http.MethodGet, base+"/orders-by-date?from=last-week", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("top customers", func(t *testing.T) {
		rec := s.do(http.MethodGet, base+"/top-customers?limit=100", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []application.CustomerSpend
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "300.00", rows[0].TotalSpend)
		assert.Equal(t, "c1@test.com", rows[0].Email)

		rec = s.do(http.MethodGet, base+"/top-customers?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("top products empty", func(t *testing.T) {
		rec := s.do(http.MethodGet, base+"/top-products", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("unknown tenant", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/insights/missing/summary", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEvents(t *testing.T) {
	s := newServer(t)
	tenant := s.tenant("a.myshopify.com")
	path := "/events/" + tenant.ID

	rec := s.do(http.MethodPost, path, `{"type":"cart_updated"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "payload")

	rec = s.do(http.MethodPost, path, `{"type":"cart_updated","payload":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, path, `{"type":"cart_updated","payload":{"items":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created api.EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Event ingested", created.Message)
	assert.Equal(t, "cart_updated", created.Event.Type)

	rec = s.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"items":2}`, string(events[0].Payload))

	rec = s.do(http.MethodPost, "/events/missing", `{"type":"x","payload":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func strPtr(s string) *string { return &s }
