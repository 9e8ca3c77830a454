package application

import (
	"context"
	"fmt"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/metrics"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReconcileReport summarises one reconciled batch. Linked/Unlinked count orders and
// line items by whether their customer or product reference resolved.
type ReconcileReport struct {
	Resource          domain.ResourceType `json:"resource"`
	Received          int                 `json:"received"`
	Upserted          int                 `json:"upserted"`
	Skipped           int                 `json:"skipped"`
	LineItemsReceived int                 `json:"lineItemsReceived,omitempty"`
	LineItemsUpserted int                 `json:"lineItemsUpserted,omitempty"`
	LineItemsSkipped  int                 `json:"lineItemsSkipped,omitempty"`
	Linked            int                 `json:"linked"`
	Unlinked          int                 `json:"unlinked"`
	Warnings          []string            `json:"warnings,omitempty"`
}

func (r *ReconcileReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ReconciliationService turns upstream batches into keyed upserts. It makes no network calls.
type ReconciliationService struct {
	store  ports.Store
	clock  ports.Clock
	logger zerolog.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(store ports.Store, clock ports.Clock, logger zerolog.Logger) *ReconciliationService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &ReconciliationService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Reconcile dispatches a batch to the reconciler of its resource type
func (s *ReconciliationService) Reconcile(ctx context.Context, tenant *domain.Tenant, resource domain.ResourceType, batch *domain.ResourceBatch) (*ReconcileReport, error) {
	if batch == nil {
		batch = &domain.ResourceBatch{}
	}
	switch resource {
	case domain.ResourceCustomers:
		return s.ReconcileCustomers(ctx, tenant, batch.Customers)
	case domain.ResourceProducts:
		return s.ReconcileProducts(ctx, tenant, batch.Products)
	case domain.ResourceOrders:
		return s.ReconcileOrders(ctx, tenant, batch.Orders)
	default:
		return nil, &domain.ValidationError{Field: "resource", Reason: fmt.Sprintf("unsupported resource %q", resource)}
	}
}

// ReconcileCustomers upserts customers keyed by (tenant, external id)
func (s *ReconciliationService) ReconcileCustomers(ctx context.Context, tenant *domain.Tenant, records []domain.CustomerRecord) (*ReconcileReport, error) {
	report := &ReconcileReport{Resource: domain.ResourceCustomers, Received: len(records)}
	defer s.record(tenant, report)
	now := s.clock.Now()

	for i, rec := range records {
		if rec.ID == 0 {
			report.Skipped++
			report.warn("customers[%d]: missing id", i)
			continue
		}

		customer := &domain.Customer{
			TenantID:   tenant.ID,
			ExternalID: rec.ID,
			Email:      deref(rec.Email),
			FirstName:  deref(rec.FirstName),
			LastName:   deref(rec.LastName),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if rec.CreatedAt != nil {
			customer.CreatedAt = *rec.CreatedAt
		}
		if rec.UpdatedAt != nil {
			customer.UpdatedAt = *rec.UpdatedAt
		}

		if _, err := s.store.Customers().Upsert(ctx, customer); err != nil {
			return report, s.storeFailure(tenant, report, err)
		}
		report.Upserted++
	}
	return report, nil
}

// ReconcileProducts upserts products keyed by (tenant, external id). Price is the first
// variant's price, or zero.
func (s *ReconciliationService) ReconcileProducts(ctx context.Context, tenant *domain.Tenant, records []domain.ProductRecord) (*ReconcileReport, error) {
	report := &ReconcileReport{Resource: domain.ResourceProducts, Received: len(records)}
	defer s.record(tenant, report)

	for i, rec := range records {
		if rec.ID == 0 {
			report.Skipped++
			report.warn("products[%d]: missing id", i)
			continue
		}

		price := decimal.Zero
		if len(rec.Variants) > 0 {
			p, err := rec.Variants[0].Price.Decimal(decimal.Zero)
			if err != nil {
				report.Skipped++
				report.warn("products[%d] (id %d): %v", i, rec.ID, err)
				continue
			}
			price = p
		}

		product := &domain.Product{
			TenantID:    tenant.ID,
			ExternalID:  rec.ID,
			Title:       rec.Title,
			Description: deref(rec.BodyHTML),
			Price:       price,
		}
		if _, err := s.store.Products().Upsert(ctx, product); err != nil {
			return report, s.storeFailure(tenant, report, err)
		}
		report.Upserted++
	}
	return report, nil
}

// orderRefs holds the stored ids resolved for one order batch
type orderRefs struct {
	customers map[int64]string
	products  map[int64]string
}

// ReconcileOrders upserts orders and then their line items, linking each to the
// customer and product rows that already exist.
func (s *ReconciliationService) ReconcileOrders(ctx context.Context, tenant *domain.Tenant, records []domain.OrderRecord) (*ReconcileReport, error) {
	report := &ReconcileReport{Resource: domain.ResourceOrders, Received: len(records)}
	defer s.record(tenant, report)

	refs, err := s.resolveOrderRefs(ctx, tenant.ID, records)
	if err != nil {
		return report, s.storeFailure(tenant, report, err)
	}

	for i, rec := range records {
		order, ok := s.buildOrder(report, i, tenant.ID, rec, refs)
		if !ok {
			continue
		}

		stored, err := s.store.Orders().Upsert(ctx, order)
		if err != nil {
			return report, s.storeFailure(tenant, report, err)
		}
		report.Upserted++

		for j, item := range rec.LineItems {
			report.LineItemsReceived++
			li, ok := buildLineItem(report, i, j, tenant.ID, stored.ID, item, refs)
			if !ok {
				continue
			}
			if _, err := s.store.LineItems().Upsert(ctx, li); err != nil {
				return report, s.storeFailure(tenant, report, err)
			}
			report.LineItemsUpserted++
		}
	}
	return report, nil
}

// resolveOrderRefs looks up every customer and product the batch references in one call per type
func (s *ReconciliationService) resolveOrderRefs(ctx context.Context, tenantID string, records []domain.OrderRecord) (*orderRefs, error) {
	var customerIDs, productIDs []int64
	seenCustomers := make(map[int64]bool)
	seenProducts := make(map[int64]bool)

	for _, rec := range records {
		if rec.Customer != nil && rec.Customer.ID != 0 && !seenCustomers[rec.Customer.ID] {
			seenCustomers[rec.Customer.ID] = true
			customerIDs = append(customerIDs, rec.Customer.ID)
		}
		for _, item := range rec.LineItems {
			if item.ProductID != nil && *item.ProductID != 0 && !seenProducts[*item.ProductID] {
				seenProducts[*item.ProductID] = true
				productIDs = append(productIDs, *item.ProductID)
			}
		}
	}

	refs := &orderRefs{customers: map[int64]string{}, products: map[int64]string{}}
	if len(customerIDs) > 0 {
		resolved, err := s.store.Customers().ResolveExternalIDs(ctx, tenantID, customerIDs)
		if err != nil {
			return nil, err
		}
		refs.customers = resolved
	}
	if len(productIDs) > 0 {
		resolved, err := s.store.Products().ResolveExternalIDs(ctx, tenantID, productIDs)
		if err != nil {
			return nil, err
		}
		refs.products = resolved
	}
	return refs, nil
}

func (s *ReconciliationService) buildOrder(report *ReconcileReport, i int, tenantID string, rec domain.OrderRecord, refs *orderRefs) (*domain.Order, bool) {
	if rec.ID == 0 {
		report.Skipped++
		report.warn("orders[%d]: missing id", i)
		return nil, false
	}
	if rec.CreatedAt == nil {
		report.Skipped++
		report.warn("orders[%d] (id %d): missing created_at", i, rec.ID)
		return nil, false
	}
	total, err := rec.TotalPrice.Decimal(decimal.Zero)
	if err != nil {
		report.Skipped++
		report.warn("orders[%d] (id %d): %v", i, rec.ID, err)
		return nil, false
	}

	order := &domain.Order{
		TenantID:          tenantID,
		ExternalID:        rec.ID,
		TotalPrice:        total,
		Currency:          rec.Currency,
		ExternalCreatedAt: *rec.CreatedAt,
	}
	if rec.Customer != nil {
		if id, ok := refs.customers[rec.Customer.ID]; ok {
			order.CustomerID = &id
		}
	}
	if order.CustomerID != nil {
		report.Linked++
	} else {
		report.Unlinked++
	}
	return order, true
}

func buildLineItem(report *ReconcileReport, i, j int, tenantID, orderID string, item domain.LineItemRecord, refs *orderRefs) (*domain.LineItem, bool) {
	skip := func(reason string) (*domain.LineItem, bool) {
		report.LineItemsSkipped++
		report.warn("orders[%d].line_items[%d]: %s", i, j, reason)
		return nil, false
	}
	if item.ID == 0 {
		return skip("missing id")
	}
	if item.Quantity < 0 {
		return skip(fmt.Sprintf("negative quantity %d", item.Quantity))
	}
	price, err := item.Price.Decimal(decimal.Zero)
	if err != nil {
		return skip(err.Error())
	}

	li := &domain.LineItem{
		TenantID:   tenantID,
		OrderID:    orderID,
		ExternalID: item.ID,
		Title:      item.Title,
		Quantity:   item.Quantity,
		Price:      price,
	}
	if item.ProductID != nil {
		if id, ok := refs.products[*item.ProductID]; ok {
			li.ProductID = &id
		}
	}
	if li.ProductID != nil {
		report.Linked++
	} else {
		report.Unlinked++
	}
	return li, true
}

func (s *ReconciliationService) storeFailure(tenant *domain.Tenant, report *ReconcileReport, err error) error {
	err = domain.NewStoreError(string(report.Resource)+".reconcile", err)
	s.logger.Error().
		Err(err).
		Str("tenantId", tenant.ID).
		Str("resource", string(report.Resource)).
		Int("upserted", report.Upserted).
		Msg("Reconciliation aborted by store failure")
	return err
}

func (s *ReconciliationService) record(tenant *domain.Tenant, report *ReconcileReport) {
	resource := string(report.Resource)
	metrics.ReconciledRecordsTotal.WithLabelValues(resource, "upserted").Add(float64(report.Upserted + report.LineItemsUpserted))
	metrics.ReconciledRecordsTotal.WithLabelValues(resource, "skipped").Add(float64(report.Skipped + report.LineItemsSkipped))

	if len(report.Warnings) > 0 {
		s.logger.Warn().
			Str("tenantId", tenant.ID).
			Str("resource", resource).
			Int("skipped", report.Skipped+report.LineItemsSkipped).
			Strs("warnings", report.Warnings).
			Msg("Skipped malformed records")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
