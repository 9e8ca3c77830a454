package application

import (
	"context"
	"errors"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/metrics"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sync triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// TenantSyncResult is the outcome of one tenant's sync.
// Status is one of the metrics status labels: success, partial, failed or skipped.
type TenantSyncResult struct {
	TenantID string             `json:"tenantId"`
	Status   string             `json:"status"`
	Reports  []*ReconcileReport `json:"reports,omitempty"`
	Error    string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration"`
	Err      error              `json:"-"`
}

// SyncService runs the fetch then reconcile path for one tenant under its sync lock
type SyncService struct {
	tenants    ports.TenantRepository
	source     ports.ExternalDataSource
	reconciler *ReconciliationService
	locker     ports.TenantLocker
	logger     zerolog.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(
	tenants ports.TenantRepository,
	source ports.ExternalDataSource,
	reconciler *ReconciliationService,
	locker ports.TenantLocker,
	logger zerolog.Logger,
) *SyncService {
	return &SyncService{
		tenants:    tenants,
		source:     source,
		reconciler: reconciler,
		locker:     locker,
		logger:     logger,
	}
}

// SyncTenant fetches all resources concurrently and reconciles them in dependency order.
// A fetch failure fails the tenant; a store failure on one resource leaves the others running.
func (s *SyncService) SyncTenant(ctx context.Context, tenant *domain.Tenant, trigger string) *TenantSyncResult {
	start := time.Now()
	result := &TenantSyncResult{TenantID: tenant.ID}
	defer func() {
		result.Duration = time.Since(start)
		if result.Err != nil {
			result.Error = result.Err.Error()
		}
		metrics.SyncRunsTotal.WithLabelValues(trigger, result.Status).Inc()
		if result.Status != metrics.StatusSkipped {
			metrics.SyncDuration.WithLabelValues(trigger).Observe(result.Duration.Seconds())
		}
	}()

	unlock, err := s.locker.TryLock(ctx, tenant.ID)
	if err != nil {
		result.Err = err
		if errors.Is(err, domain.ErrSyncInProgress) {
			result.Status = metrics.StatusSkipped
			s.logger.Info().Str("tenantId", tenant.ID).Str("trigger", trigger).Msg("Sync already in progress, skipping tenant")
			return result
		}
		result.Status = metrics.StatusFailed
		s.logger.Error().Err(err).Str("tenantId", tenant.ID).Msg("Failed to acquire sync lock")
		return result
	}
	defer s.release(tenant.ID, unlock)

	batches, err := s.fetchAll(ctx, tenant)
	if err != nil {
		result.Status = metrics.StatusFailed
		result.Err = err
		s.logger.Error().Err(err).Str("tenantId", tenant.ID).Str("shop", tenant.ShopDomain).Msg("Sync failed while fetching")
		return result
	}

	result.Status = metrics.StatusSuccess
	for _, resource := range domain.ResourceTypes {
		report, err := s.reconciler.Reconcile(ctx, tenant, resource, batches[resource])
		if report != nil {
			result.Reports = append(result.Reports, report)
		}
		if err != nil {
			result.Status = metrics.StatusPartial
			if result.Err == nil {
				result.Err = err
			}
			s.logger.Error().Err(err).Str("tenantId", tenant.ID).Str("resource", string(resource)).Msg("Failed to reconcile resource, continuing")
		}
	}

	s.logger.Info().
		Str("tenantId", tenant.ID).
		Str("trigger", trigger).
		Str("status", result.Status).
		Dur("elapsed", time.Since(start)).
		Msg("Sync completed for tenant")
	return result
}

// fetchAll fetches every resource type in parallel; the first failure cancels the rest
func (s *SyncService) fetchAll(ctx context.Context, tenant *domain.Tenant) (map[domain.ResourceType]*domain.ResourceBatch, error) {
	results := make([]*domain.ResourceBatch, len(domain.ResourceTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, resource := range domain.ResourceTypes {
		i, resource := i, resource
		g.Go(func() error {
			batch, err := s.source.Fetch(gctx, tenant, resource)
			if err != nil {
				return err
			}
			results[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batches := make(map[domain.ResourceType]*domain.ResourceBatch, len(results))
	for i, resource := range domain.ResourceTypes {
		batches[resource] = results[i]
	}
	return batches, nil
}

// SyncResource is the manual trigger: fetch and reconcile one resource of one tenant
func (s *SyncService) SyncResource(ctx context.Context, tenantID string, resource domain.ResourceType) (*ReconcileReport, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, &domain.NotFoundError{Entity: "tenant", ID: tenantID}
	}

	start := time.Now()
	status := metrics.StatusFailed
	defer func() {
		metrics.SyncRunsTotal.WithLabelValues(TriggerManual, status).Inc()
		if status != metrics.StatusSkipped {
			metrics.SyncDuration.WithLabelValues(TriggerManual).Observe(time.Since(start).Seconds())
		}
	}()

	unlock, err := s.locker.TryLock(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			status = metrics.StatusSkipped
		}
		return nil, err
	}
	defer s.release(tenant.ID, unlock)

	batch, err := s.source.Fetch(ctx, tenant, resource)
	if err != nil {
		return nil, err
	}

	report, err := s.reconciler.Reconcile(ctx, tenant, resource, batch)
	if err != nil {
		return report, err
	}
	status = metrics.StatusSuccess

	s.logger.Info().
		Str("tenantId", tenant.ID).
		Str("resource", string(resource)).
		Int("upserted", report.Upserted).
		Int("skipped", report.Skipped).
		Msg("Manual sync completed")
	return report, nil
}

// release unlocks with a fresh context so a cancelled sync still frees the tenant
func (s *SyncService) release(tenantID string, unlock ports.Unlocker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock.Unlock(ctx); err != nil {
		s.logger.Warn().Err(err).Str("tenantId", tenantID).Msg("Failed to release sync lock")
	}
}
