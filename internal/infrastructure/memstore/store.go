// Package memstore is an in-process implementation of ports.Store. It honours the
// same keyed-upsert semantics as the MongoDB store and backs local runs and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/google/uuid"
)

type naturalKey struct {
	tenantID   string
	externalID int64
}

// Store keeps every entity in maps guarded by a single RWMutex
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	tenants        map[string]*domain.Tenant
	tenantByDomain map[string]string

	customers      map[string]*domain.Customer
	customerByKey  map[naturalKey]string
	products       map[string]*domain.Product
	productByKey   map[naturalKey]string
	orders         map[string]*domain.Order
	orderByKey     map[naturalKey]string
	lineItems      map[string]*domain.LineItem
	lineItemByKey  map[naturalKey]string
	events         []*domain.Event

	// failOn makes the named operation return a store error; used by tests
	failOn map[string]error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		now:            time.Now,
		tenants:        make(map[string]*domain.Tenant),
		tenantByDomain: make(map[string]string),
		customers:      make(map[string]*domain.Customer),
		customerByKey:  make(map[naturalKey]string),
		products:       make(map[string]*domain.Product),
		productByKey:   make(map[naturalKey]string),
		orders:         make(map[string]*domain.Order),
		orderByKey:     make(map[naturalKey]string),
		lineItems:      make(map[string]*domain.LineItem),
		lineItemByKey:  make(map[naturalKey]string),
		failOn:         make(map[string]error),
	}
}

// SetClock overrides the time source used for CreatedAt/UpdatedAt defaults
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every call of op ("customers.upsert", "orders.list", ...) fail with err.
// A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

func (s *Store) check(op string) error {
	if err, ok := s.failOn[op]; ok {
		return domain.NewStoreError(op, err)
	}
	return nil
}

func (s *Store) Tenants() ports.TenantRepository     { return tenantRepo{s} }
func (s *Store) Customers() ports.CustomerRepository { return customerRepo{s} }
func (s *Store) Products() ports.ProductRepository   { return productRepo{s} }
func (s *Store) Orders() ports.OrderRepository       { return orderRepo{s} }
func (s *Store) LineItems() ports.LineItemRepository { return lineItemRepo{s} }
func (s *Store) Events() ports.EventRepository       { return eventRepo{s} }

// Tenants

type tenantRepo struct{ s *Store }

func (r tenantRepo) UpsertByShopDomain(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("tenants.upsert"); err != nil {
		return nil, err
	}

	now := r.s.now()
	if id, ok := r.s.tenantByDomain[t.ShopDomain]; ok {
		existing := r.s.tenants[id]
		existing.Name = t.Name
		existing.AccessToken = t.AccessToken
		existing.APIKey = t.APIKey
		existing.APISecret = t.APISecret
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	row := *t
	row.ID = uuid.New().String()
	row.CreatedAt = now
	row.UpdatedAt = now
	r.s.tenants[row.ID] = &row
	r.s.tenantByDomain[row.ShopDomain] = row.ID
	out := row
	return &out, nil
}

func (r tenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("tenants.get"); err != nil {
		return nil, err
	}
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (r tenantRepo) List(ctx context.Context) ([]*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("tenants.list"); err != nil {
		return nil, err
	}
	out := make([]*domain.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID) })
	return out, nil
}

// Customers

type customerRepo struct{ s *Store }

func (r customerRepo) Upsert(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("customers.upsert"); err != nil {
		return nil, err
	}

	key := naturalKey{c.TenantID, c.ExternalID}
	if id, ok := r.s.customerByKey[key]; ok {
		existing := r.s.customers[id]
		existing.Email = c.Email
		existing.FirstName = c.FirstName
		existing.LastName = c.LastName
		existing.UpdatedAt = c.UpdatedAt
		out := *existing
		return &out, nil
	}

	row := *c
	row.ID = uuid.New().String()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.s.now()
	}
	r.s.customers[row.ID] = &row
	r.s.customerByKey[key] = row.ID
	out := row
	return &out, nil
}

func (r customerRepo) ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("customers.resolve"); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(externalIDs))
	for _, ext := range externalIDs {
		if id, ok := r.s.customerByKey[naturalKey{tenantID, ext}]; ok {
			out[ext] = id
		}
	}
	return out, nil
}

func (r customerRepo) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("customers.find"); err != nil {
		return nil, err
	}
	var out []*domain.Customer
	for _, id := range ids {
		if c, ok := r.s.customers[id]; ok && c.TenantID == tenantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r customerRepo) FindFirstByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("customers.find"); err != nil {
		return nil, err
	}
	var found *domain.Customer
	for _, c := range r.s.customers {
		if !strings.EqualFold(c.Email, email) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) || (c.CreatedAt.Equal(found.CreatedAt) && c.ID < found.ID) {
			found = c
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

func (r customerRepo) Count(ctx context.Context, tenantID string) (int64, error) {
	return r.countWhere(func(c *domain.Customer) bool { return c.TenantID == tenantID })
}

func (r customerRepo) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	return r.countWhere(func(c *domain.Customer) bool {
		return c.TenantID == tenantID && !c.CreatedAt.Before(since)
	})
}

func (r customerRepo) countWhere(match func(*domain.Customer) bool) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("customers.count"); err != nil {
		return 0, err
	}
	var n int64
	for _, c := range r.s.customers {
		if match(c) {
			n++
		}
	}
	return n, nil
}

// Products

type productRepo struct{ s *Store }

func (r productRepo) Upsert(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("products.upsert"); err != nil {
		return nil, err
	}

	key := naturalKey{p.TenantID, p.ExternalID}
	if id, ok := r.s.productByKey[key]; ok {
		existing := r.s.products[id]
		existing.Title = p.Title
		existing.Description = p.Description
		existing.Price = p.Price
		out := *existing
		return &out, nil
	}

	row := *p
	row.ID = uuid.New().String()
	r.s.products[row.ID] = &row
	r.s.productByKey[key] = row.ID
	out := row
	return &out, nil
}

func (r productRepo) ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("products.resolve"); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(externalIDs))
	for _, ext := range externalIDs {
		if id, ok := r.s.productByKey[naturalKey{tenantID, ext}]; ok {
			out[ext] = id
		}
	}
	return out, nil
}

func (r productRepo) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("products.find"); err != nil {
		return nil, err
	}
	var out []*domain.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r productRepo) Count(ctx context.Context, tenantID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("products.count"); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range r.s.products {
		if p.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// Orders

type orderRepo struct{ s *Store }

func (r orderRepo) Upsert(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.upsert"); err != nil {
		return nil, err
	}

	key := naturalKey{o.TenantID, o.ExternalID}
	if id, ok := r.s.orderByKey[key]; ok {
		existing := r.s.orders[id]
		existing.TotalPrice = o.TotalPrice
		existing.Currency = o.Currency
		existing.ExternalCreatedAt = o.ExternalCreatedAt
		existing.CustomerID = copyID(o.CustomerID)
		out := *existing
		return &out, nil
	}

	row := *o
	row.ID = uuid.New().String()
	row.CustomerID = copyID(o.CustomerID)
	r.s.orders[row.ID] = &row
	r.s.orderByKey[key] = row.ID
	out := row
	return &out, nil
}

func (r orderRepo) List(ctx context.Context, tenantID string, f ports.OrderFilter) ([]*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("orders.list"); err != nil {
		return nil, err
	}
	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.TenantID != tenantID {
			continue
		}
		if f.LinkedOnly && o.CustomerID == nil {
			continue
		}
		if f.CreatedFrom != nil && o.ExternalCreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && o.ExternalCreatedAt.After(*f.CreatedTo) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExternalCreatedAt.Equal(out[j].ExternalCreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExternalCreatedAt.Before(out[j].ExternalCreatedAt)
	})
	return out, nil
}

func (r orderRepo) Count(ctx context.Context, tenantID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("orders.count"); err != nil {
		return 0, err
	}
	var n int64
	for _, o := range r.s.orders {
		if o.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// Line items

type lineItemRepo struct{ s *Store }

func (r lineItemRepo) Upsert(ctx context.Context, li *domain.LineItem) (*domain.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("line_items.upsert"); err != nil {
		return nil, err
	}

	key := naturalKey{li.TenantID, li.ExternalID}
	if id, ok := r.s.lineItemByKey[key]; ok {
		existing := r.s.lineItems[id]
		existing.Title = li.Title
		existing.Quantity = li.Quantity
		existing.Price = li.Price
		existing.ProductID = copyID(li.ProductID)
		existing.OrderID = li.OrderID
		out := *existing
		return &out, nil
	}

	row := *li
	row.ID = uuid.New().String()
	row.ProductID = copyID(li.ProductID)
	r.s.lineItems[row.ID] = &row
	r.s.lineItemByKey[key] = row.ID
	out := row
	return &out, nil
}

func (r lineItemRepo) List(ctx context.Context, tenantID string, linkedOnly bool) ([]*domain.LineItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("line_items.list"); err != nil {
		return nil, err
	}
	var out []*domain.LineItem
	for _, li := range r.s.lineItems {
		if li.TenantID != tenantID || (linkedOnly && li.ProductID == nil) {
			continue
		}
		cp := *li
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Events

type eventRepo struct{ s *Store }

func (r eventRepo) Append(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("events.append"); err != nil {
		return nil, err
	}
	row := *e
	row.ID = uuid.New().String()
	if row.OccurredAt.IsZero() {
		row.OccurredAt = r.s.now()
	}
	r.s.events = append(r.s.events, &row)
	out := row
	return &out, nil
}

func (r eventRepo) ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check("events.list"); err != nil {
		return nil, err
	}
	var out []*domain.Event
	// newest first: walk the append log backwards
	for i := len(r.s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if e := r.s.events[i]; e.TenantID == tenantID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
