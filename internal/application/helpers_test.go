package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"shopify-insights/internal/application"
	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/lock"
	"shopify-insights/internal/infrastructure/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func strPtr(s string) *string        { return &s }
func int64Ptr(i int64) *int64        { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// fakeSource serves canned batches per shop and resource
type fakeSource struct {
	mu      sync.Mutex
	batches map[string]map[domain.ResourceType]*domain.ResourceBatch
	errs    map[string]error
	calls   map[string]int
	// block, when set, holds every Fetch until it is closed
	block chan struct{}
	// started receives one value per Fetch call that reached the block
	started chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		batches: make(map[string]map[domain.ResourceType]*domain.ResourceBatch),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeSource) set(shop string, resource domain.ResourceType, batch *domain.ResourceBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches[shop] == nil {
		f.batches[shop] = make(map[domain.ResourceType]*domain.ResourceBatch)
	}
	f.batches[shop][resource] = batch
}

func (f *fakeSource) fail(shop string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[shop] = err
}

func (f *fakeSource) callCount(shop string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[shop]
}

func (f *fakeSource) Fetch(ctx context.Context, tenant *domain.Tenant, resource domain.ResourceType) (*domain.ResourceBatch, error) {
	f.mu.Lock()
	f.calls[tenant.ShopDomain]++
	block, started := f.block, f.started
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- tenant.ID
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &domain.UpstreamFetchError{Resource: resource, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[tenant.ShopDomain]; ok {
		return nil, &domain.UpstreamFetchError{Resource: resource, Status: 503, Err: err}
	}
	if batch, ok := f.batches[tenant.ShopDomain][resource]; ok {
		return batch, nil
	}
	return &domain.ResourceBatch{}, nil
}

type fixture struct {
	store      *memstore.Store
	source     *fakeSource
	locker     *lock.LocalLocker
	reconciler *application.ReconciliationService
	syncer     *application.SyncService
	aggregator *application.AggregationService
	tenants    *application.TenantService
	events     *application.EventService
}

func newFixture() *fixture {
	logger := zerolog.Nop()
	clock := fixedClock{t: testNow}
	store := memstore.New()
	store.SetClock(clock.Now)
	source := newFakeSource()
	locker := lock.NewLocalLocker()
	reconciler := application.NewReconciliationService(store, clock, logger)

	return &fixture{
		store:      store,
		source:     source,
		locker:     locker,
		reconciler: reconciler,
		syncer:     application.NewSyncService(store.Tenants(), source, reconciler, locker, logger),
		aggregator: application.NewAggregationService(store, clock, logger),
		tenants:    application.NewTenantService(store.Tenants(), store.Customers(), logger),
		events:     application.NewEventService(store.Tenants(), store.Events(), clock, logger),
	}
}

func (f *fixture) tenant(t *testing.T, shop string) *domain.Tenant {
	t.Helper()
	tenant, err := f.tenants.UpsertTenant(context.Background(), application.UpsertTenantInput{
		Name:        shop,
		ShopDomain:  shop,
		AccessToken: "token-" + shop,
	})
	require.NoError(t, err)
	return tenant
}

// The dashboard fixture: two customers, two products, three orders over two days
func dashboardCustomers() []domain.CustomerRecord {
	return []domain.CustomerRecord{
		{ID: 1, Email: strPtr("a@test.com"), FirstName: strPtr("Alice"), LastName: strPtr("Smith")},
		{ID: 2, Email: strPtr("b@test.com"), FirstName: strPtr("Bob"), LastName: strPtr("Jones")},
	}
}

func dashboardProducts() []domain.ProductRecord {
	return []domain.ProductRecord{
		{ID: 11, Title: "Product 1", BodyHTML: strPtr("Desc 1"), Variants: []domain.VariantRecord{{ID: 111, Price: "50.00"}}},
		{ID: 12, Title: "Product 2", BodyHTML: strPtr("Desc 2"), Variants: []domain.VariantRecord{{ID: 121, Price: "100.00"}}},
	}
}

func dashboardOrders(t *testing.T) []domain.OrderRecord {
	return []domain.OrderRecord{
		{
			ID: 101, TotalPrice: "300.00", Currency: "USD",
			CreatedAt: timePtr(mustTime(t, "2025-09-01T09:00:00Z")),
			Customer:  &domain.CustomerRef{ID: 1},
			LineItems: []domain.LineItemRecord{{ID: 1001, Title: "Product 1", Quantity: 2, Price: "50.00", ProductID: int64Ptr(11)}},
		},
		{
			ID: 102, TotalPrice: "150.00", Currency: "USD",
			CreatedAt: timePtr(mustTime(t, "2025-09-02T10:00:00Z")),
			Customer:  &domain.CustomerRef{ID: 2},
			LineItems: []domain.LineItemRecord{{ID: 1002, Title: "Product 2", Quantity: 1, Price: "100.00", ProductID: int64Ptr(12)}},
		},
		{
			ID: 103, TotalPrice: "100.00", Currency: "USD",
			CreatedAt: timePtr(mustTime(t, "2025-09-02T18:00:00Z")),
			Customer:  &domain.CustomerRef{ID: 1},
			LineItems: []domain.LineItemRecord{{ID: 1003, Title: "Product 1", Quantity: 1, Price: "50.00", ProductID: int64Ptr(11)}},
		},
	}
}

// seedDashboard reconciles the dashboard fixture in dependency order
func (f *fixture) seedDashboard(t *testing.T, tenant *domain.Tenant) {
	t.Helper()
	ctx := context.Background()
	_, err := f.reconciler.ReconcileCustomers(ctx, tenant, dashboardCustomers())
	require.NoError(t, err)
	_, err = f.reconciler.ReconcileProducts(ctx, tenant, dashboardProducts())
	require.NoError(t, err)
	_, err = f.reconciler.ReconcileOrders(ctx, tenant, dashboardOrders(t))
	require.NoError(t, err)
}
