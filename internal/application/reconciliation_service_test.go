package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_IsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")

	f.seedDashboard(t, tenant)
	firstOrders, err := f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{})
	require.NoError(t, err)

	f.seedDashboard(t, tenant)

	customers, err := f.store.Customers().Count(ctx, tenant.ID)
	require.NoError(t, err)
	products, err := f.store.Products().Count(ctx, tenant.ID)
	require.NoError(t, err)
	orders, err := f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{})
	require.NoError(t, err)
	items, err := f.store.LineItems().List(ctx, tenant.ID, false)
	require.NoError(t, err)

	assert.Equal(t, int64(2), customers)
	assert.Equal(t, int64(2), products)
	assert.Len(t, items, 3)
	require.Len(t, orders, 3)
	for i := range orders {
		assert.Equal(t, firstOrders[i].ID, orders[i].ID, "ids are stable across re-syncs")
		assert.Equal(t, firstOrders[i].CustomerID, orders[i].CustomerID)
		assert.True(t, firstOrders[i].TotalPrice.Equal(orders[i].TotalPrice))
	}
}

func TestReconcileCustomers_UpdatesOnlyMutableFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")
	created := mustTime(t, "2025-08-01T00:00:00Z")

	_, err := f.reconciler.ReconcileCustomers(ctx, tenant, []domain.CustomerRecord{
		{ID: 1, Email: strPtr("old@x.com"), FirstName: strPtr("Ann"), CreatedAt: timePtr(created)},
	})
	require.NoError(t, err)

	report, err := f.reconciler.ReconcileCustomers(ctx, tenant, []domain.CustomerRecord{
		{ID: 1, Email: strPtr("new@x.com"), FirstName: strPtr("Anne"), LastName: strPtr("Lee"), CreatedAt: timePtr(created.Add(48 * time.Hour))},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upserted)

	c, err := f.store.Customers().FindFirstByEmail(ctx, "NEW@x.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Anne Lee", c.DisplayName())
	assert.True(t, created.Equal(c.CreatedAt), "createdAt is kept from the first insert")
}

func TestReconcileCustomers_CreatedAtDefaultsToIngestTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")

	_, err := f.reconciler.ReconcileCustomers(ctx, tenant, []domain.CustomerRecord{{ID: 7, Email: strPtr("x@x.com")}})
	require.NoError(t, err)

	c, err := f.store.Customers().FindFirstByEmail(ctx, "x@x.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, testNow.Equal(c.CreatedAt))
}

func TestReconcileProducts_PriceAndDescriptionDefaults(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")

	report, err := f.reconciler.ReconcileProducts(ctx, tenant, []domain.ProductRecord{
		{ID: 1, Title: "No variants"},
		{ID: 2, Title: "Two variants", Variants: []domain.VariantRecord{{Price: "9.99"}, {Price: "19.99"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Upserted)

	ids, err := f.store.Products().ResolveExternalIDs(ctx, tenant.ID, []int64{1, 2})
	require.NoError(t, err)
	products, err := f.store.Products().FindByIDs(ctx, tenant.ID, []string{ids[1], ids[2]})
	require.NoError(t, err)
	require.Len(t, products, 2)

	byTitle := map[string]*domain.Product{}
	for _, p := range products {
		byTitle[p.Title] = p
	}
	assert.True(t, byTitle["No variants"].Price.IsZero())
	assert.Equal(t, "", byTitle["No variants"].Description)
	assert.Equal(t, "9.99", domain.FormatMoney(byTitle["Two variants"].Price))
}

func TestReconcileOrders_LateLinkingAndRelink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")

	// orders arrive before the customers and products they reference
	report, err := f.reconciler.ReconcileOrders(ctx, tenant, dashboardOrders(t))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Upserted)
	assert.Equal(t, 0, report.Linked)
	assert.Equal(t, 6, report.Unlinked)

	linked, err := f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{LinkedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, linked)

	_, err = f.reconciler.ReconcileCustomers(ctx, tenant, dashboardCustomers())
	require.NoError(t, err)
	_, err = f.reconciler.ReconcileProducts(ctx, tenant, dashboardProducts())
	require.NoError(t, err)

	// no backfill until the orders themselves are reconciled again
	linked, err = f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{LinkedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, linked)

	report, err = f.reconciler.ReconcileOrders(ctx, tenant, dashboardOrders(t))
	require.NoError(t, err)
	assert.Equal(t, 6, report.Linked)
	assert.Equal(t, 0, report.Unlinked)

	linked, err = f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{LinkedOnly: true})
	require.NoError(t, err)
	assert.Len(t, linked, 3)
	items, err := f.store.LineItems().List(ctx, tenant.ID, true)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestReconcileOrders_SkipsMalformedRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")
	at := timePtr(mustTime(t, "2025-09-01T09:00:00Z"))

	report, err := f.reconciler.ReconcileOrders(ctx, tenant, []domain.OrderRecord{
		{ID: 0, TotalPrice: "10.00", CreatedAt: at},
		{ID: 2, TotalPrice: "ten", CreatedAt: at},
		{ID: 3, TotalPrice: "10.00"},
		{
			ID: 4, TotalPrice: "30.00", CreatedAt: at,
			LineItems: []domain.LineItemRecord{
				{ID: 41, Quantity: -1, Price: "5.00"},
				{ID: 42, Quantity: 1, Price: "abc"},
				{ID: 0, Quantity: 1, Price: "5.00"},
				{ID: 43, Quantity: 2, Price: "15.00"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 1, report.Upserted)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 4, report.LineItemsReceived)
	assert.Equal(t, 1, report.LineItemsUpserted)
	assert.Equal(t, 3, report.LineItemsSkipped)
	assert.Len(t, report.Warnings, 6)

	orders, err := f.store.Orders().List(ctx, tenant.ID, ports.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1, "a skipped line item does not skip its order")
	assert.Equal(t, int64(4), orders[0].ExternalID)

	items, err := f.store.LineItems().List(ctx, tenant.ID, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, orders[0].ID, items[0].OrderID)
	assert.True(t, decimal.RequireFromString("30").Equal(items[0].Revenue()))
}

func TestReconcile_StoreFailureAbortsBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.tenant(t, "a.myshopify.com")
	f.store.FailOn("customers.upsert", errors.New("disk full"))

	report, err := f.reconciler.ReconcileCustomers(ctx, tenant, dashboardCustomers())
	require.Error(t, err)

	var storeErr *domain.StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, 0, report.Upserted)
}

func TestReconcile_TenantsAreIsolated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.tenant(t, "a.myshopify.com")
	b := f.tenant(t, "b.myshopify.com")

	f.seedDashboard(t, a)
	f.seedDashboard(t, b)

	for _, tenant := range []*domain.Tenant{a, b} {
		n, err := f.store.Customers().Count(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	}

	ordersA, err := f.store.Orders().List(ctx, a.ID, ports.OrderFilter{LinkedOnly: true})
	require.NoError(t, err)
	customerIDsB, err := f.store.Customers().ResolveExternalIDs(ctx, b.ID, []int64{1, 2})
	require.NoError(t, err)
	for _, o := range ordersA {
		assert.NotContains(t, []string{customerIDsB[1], customerIDsB[2]}, *o.CustomerID)
	}
}
