package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// DefaultTopLimit is used when a ranking is requested without a positive limit
	DefaultTopLimit = 5
	// MaxTopLimit caps the limit accepted over HTTP
	MaxTopLimit = 50
	// NewCustomerWindow is the "this week" window of the summary
	NewCustomerWindow = 7 * 24 * time.Hour
)

// maxUTCOffset widens instant filters so a calendar-day bound catches every store offset
const maxUTCOffset = 14 * time.Hour

// Summary is the dashboard headline for a tenant
type Summary struct {
	TotalCustomers       int64              `json:"totalCustomers"`
	TotalOrders          int64              `json:"totalOrders"`
	TotalRevenue         string             `json:"totalRevenue"`
	TotalProducts        int64              `json:"totalProducts"`
	TotalInventory       int64              `json:"totalInventory"`
	TopProduct           *TopProductSummary `json:"topProduct"`
	NewCustomersThisWeek int64              `json:"newCustomersThisWeek"`
}

// TopProductSummary is the best-selling product of the summary
type TopProductSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Revenue string `json:"revenue"`
}

// DailyRevenue is one point of the orders-by-date series
type DailyRevenue struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// CustomerSpend is one row of the top customers ranking
type CustomerSpend struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	TotalSpend string `json:"totalSpend"`
}

// ProductSales is one row of the top products ranking
type ProductSales struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	TotalRevenue  string `json:"totalRevenue"`
	TotalQuantity int64  `json:"totalQuantity"`
}

// DateBound is an inclusive orders-by-date bound. A calendar day is compared with each
// order's local date; an instant is compared with its creation time.
type DateBound struct {
	day string
	at  time.Time
}

// ParseDateBound accepts YYYY-MM-DD or RFC3339. An empty string is an open bound.
func ParseDateBound(field, s string) (*DateBound, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return &DateBound{day: t.Format(domain.DateLayout)}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &DateBound{at: t}, nil
	}
	return nil, &domain.ValidationError{Field: field, Reason: fmt.Sprintf("expected YYYY-MM-DD or RFC3339, got %q", s)}
}

// lower returns the earliest instant the bound can admit
func (b *DateBound) lower() time.Time {
	if b.day == "" {
		return b.at
	}
	t, _ := time.Parse(domain.DateLayout, b.day)
	return t.Add(-maxUTCOffset)
}

// upper returns the latest instant the bound can admit
func (b *DateBound) upper() time.Time {
	if b.day == "" {
		return b.at
	}
	t, _ := time.Parse(domain.DateLayout, b.day)
	return t.Add(24*time.Hour + maxUTCOffset - time.Nanosecond)
}

func (b *DateBound) admitsFrom(o *domain.Order) bool {
	if b.day == "" {
		return !o.ExternalCreatedAt.Before(b.at)
	}
	return o.LocalDate() >= b.day
}

func (b *DateBound) admitsTo(o *domain.Order) bool {
	if b.day == "" {
		return !o.ExternalCreatedAt.After(b.at)
	}
	return o.LocalDate() <= b.day
}

// AggregationService computes analytics on demand from the stored entities
type AggregationService struct {
	store  ports.Store
	clock  ports.Clock
	logger zerolog.Logger
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(store ports.Store, clock ports.Clock, logger zerolog.Logger) *AggregationService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &AggregationService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Summary returns tenant totals. Unlinked orders and line items count in every total.
func (s *AggregationService) Summary(ctx context.Context, tenantID string) (*Summary, error) {
	totalCustomers, err := s.store.Customers().Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalProducts, err := s.store.Products().Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalOrders, err := s.store.Orders().Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	newCustomers, err := s.store.Customers().CountCreatedSince(ctx, tenantID, s.clock.Now().Add(-NewCustomerWindow))
	if err != nil {
		return nil, err
	}

	orders, err := s.store.Orders().List(ctx, tenantID, ports.OrderFilter{})
	if err != nil {
		return nil, err
	}
	revenue := decimal.Zero
	for _, o := range orders {
		revenue = revenue.Add(o.TotalPrice)
	}

	items, err := s.store.LineItems().List(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	var inventory int64
	for _, li := range items {
		inventory += int64(li.Quantity)
	}

	summary := &Summary{
		TotalCustomers:       totalCustomers,
		TotalOrders:          totalOrders,
		TotalRevenue:         domain.FormatMoney(revenue),
		TotalProducts:        totalProducts,
		TotalInventory:       inventory,
		NewCustomersThisWeek: newCustomers,
	}

	top, err := s.TopProducts(ctx, tenantID, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		summary.TopProduct = &TopProductSummary{ID: top[0].ID, Title: top[0].Title, Revenue: top[0].TotalRevenue}
	}
	return summary, nil
}

// OrdersByDate returns revenue per local calendar day, ascending, within the inclusive bounds
func (s *AggregationService) OrdersByDate(ctx context.Context, tenantID string, from, to *DateBound) ([]DailyRevenue, error) {
	filter := ports.OrderFilter{}
	if from != nil {
		lo := from.lower()
		filter.CreatedFrom = &lo
	}
	if to != nil {
		hi := to.upper()
		filter.CreatedTo = &hi
	}

	orders, err := s.store.Orders().List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, o := range orders {
		if from != nil && !from.admitsFrom(o) {
			continue
		}
		if to != nil && !to.admitsTo(o) {
			continue
		}
		day := o.LocalDate()
		totals[day] = totals[day].Add(o.TotalPrice)
	}

	series := make([]DailyRevenue, 0, len(totals))
	for day, total := range totals {
		series = append(series, DailyRevenue{Date: day, Total: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series, nil
}

// TopCustomers ranks linked customers by total order spend
func (s *AggregationService) TopCustomers(ctx context.Context, tenantID string, limit int) ([]CustomerSpend, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	orders, err := s.store.Orders().List(ctx, tenantID, ports.OrderFilter{LinkedOnly: true})
	if err != nil {
		return nil, err
	}

	spend := make(map[string]decimal.Decimal)
	for _, o := range orders {
		if o.CustomerID == nil {
			continue
		}
		spend[*o.CustomerID] = spend[*o.CustomerID].Add(o.TotalPrice)
	}

	ids := rankByDecimal(spend, limit)
	customers, err := s.store.Customers().FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}

	rows := make([]CustomerSpend, 0, len(ids))
	for _, id := range ids {
		row := CustomerSpend{ID: id, TotalSpend: domain.FormatMoney(spend[id])}
		if c, ok := byID[id]; ok {
			row.Name = c.DisplayName()
			row.Email = c.Email
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TopProducts ranks linked products by revenue (price × quantity summed over line items)
func (s *AggregationService) TopProducts(ctx context.Context, tenantID string, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	items, err := s.store.LineItems().List(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}

	revenue := make(map[string]decimal.Decimal)
	quantity := make(map[string]int64)
	for _, li := range items {
		if li.ProductID == nil {
			continue
		}
		pid := *li.ProductID
		revenue[pid] = revenue[pid].Add(li.Revenue())
		quantity[pid] += int64(li.Quantity)
	}

	ids := rankByDecimal(revenue, limit)
	products, err := s.store.Products().FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	rows := make([]ProductSales, 0, len(ids))
	for _, id := range ids {
		row := ProductSales{ID: id, TotalRevenue: domain.FormatMoney(revenue[id]), TotalQuantity: quantity[id]}
		if p, ok := byID[id]; ok {
			row.Title = p.Title
			row.Description = p.Description
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rankByDecimal returns up to limit keys ordered by value descending, ties by key ascending
func rankByDecimal(values map[string]decimal.Decimal, limit int) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := values[keys[i]].Cmp(values[keys[j]]); c != 0 {
			return c > 0
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
