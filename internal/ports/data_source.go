package ports

import (
	"context"
	"time"

	"shopify-insights/internal/domain"
)

// ExternalDataSource fetches one fixed-size page of a resource for a tenant.
// Failures are returned as *domain.UpstreamFetchError.
type ExternalDataSource interface {
	Fetch(ctx context.Context, tenant *domain.Tenant, resource domain.ResourceType) (*domain.ResourceBatch, error)
}

// TenantLocker guarantees that at most one sync runs per tenant at a time
type TenantLocker interface {
	// TryLock returns domain.ErrSyncInProgress when the tenant is already locked
	TryLock(ctx context.Context, tenantID string) (Unlocker, error)
}

// Unlocker releases a held tenant lock
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// Clock abstracts wall-clock time so schedules and "this week" windows can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }
