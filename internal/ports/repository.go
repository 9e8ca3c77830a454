package ports

import (
	"context"
	"time"

	"shopify-insights/internal/domain"
)

// Store groups the per-entity repositories backed by one durable store
type Store interface {
	Tenants() TenantRepository
	Customers() CustomerRepository
	Products() ProductRepository
	Orders() OrderRepository
	LineItems() LineItemRepository
	Events() EventRepository
}

// TenantRepository defines the interface for tenant persistence
type TenantRepository interface {
	// UpsertByShopDomain creates or updates the tenant keyed by its shop domain and returns the stored row
	UpsertByShopDomain(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error)

	// GetByID returns nil, nil when the tenant does not exist
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)

	List(ctx context.Context) ([]*domain.Tenant, error)
}

// CustomerRepository defines the interface for customer persistence.
// Upsert is keyed by (TenantID, ExternalID); only email, names and UpdatedAt change on update.
type CustomerRepository interface {
	Upsert(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)

	// ResolveExternalIDs maps each known external id to the stored customer id. Unknown ids are absent.
	ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error)

	FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Customer, error)

	// FindFirstByEmail matches case-insensitively across all tenants. Returns nil, nil when absent.
	FindFirstByEmail(ctx context.Context, email string) (*domain.Customer, error)

	Count(ctx context.Context, tenantID string) (int64, error)
	CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
}

// ProductRepository defines the interface for product persistence, keyed by (TenantID, ExternalID)
type ProductRepository interface {
	Upsert(ctx context.Context, product *domain.Product) (*domain.Product, error)
	ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error)
	FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Product, error)
	Count(ctx context.Context, tenantID string) (int64, error)
}

// OrderFilter narrows an order scan. Nil bounds are open.
type OrderFilter struct {
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// LinkedOnly restricts the scan to orders with a resolved customer
	LinkedOnly bool
}

// OrderRepository defines the interface for order persistence, keyed by (TenantID, ExternalID)
type OrderRepository interface {
	Upsert(ctx context.Context, order *domain.Order) (*domain.Order, error)
	List(ctx context.Context, tenantID string, filter OrderFilter) ([]*domain.Order, error)
	Count(ctx context.Context, tenantID string) (int64, error)
}

// LineItemRepository defines the interface for line item persistence, keyed by (TenantID, ExternalID)
type LineItemRepository interface {
	Upsert(ctx context.Context, item *domain.LineItem) (*domain.LineItem, error)

	// List returns the tenant's line items; linkedOnly keeps only items with a resolved product
	List(ctx context.Context, tenantID string, linkedOnly bool) ([]*domain.LineItem, error)
}

// EventRepository defines the interface for the append-only event log
type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) (*domain.Event, error)

	// ListRecent returns at most limit events, newest first
	ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Event, error)
}
