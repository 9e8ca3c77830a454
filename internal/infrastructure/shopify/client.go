package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/metrics"
	"shopify-insights/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIVersion is the Admin REST API version the sync targets
	DefaultAPIVersion = "2023-10"
	// DefaultTimeout bounds every upstream call
	DefaultTimeout = 10 * time.Second
	// PageSize is the fixed page size; only the first page is synced
	PageSize = 50
	// DefaultRequestsPerSecond and DefaultBurst mirror the Admin REST leaky bucket
	DefaultRequestsPerSecond = 2
	DefaultBurst             = 40
)

// Options configures a DataSource
type Options struct {
	APIVersion string
	Timeout    time.Duration
	// HTTPClient overrides the client built from Timeout; tests point it at a fake shop
	HTTPClient *http.Client
	// RequestsPerSecond and Burst configure one limiter per shop
	RequestsPerSecond float64
	Burst             int
	Logger            zerolog.Logger
}

type dataSource struct {
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
	limit      rate.Limit
	burst      int
	logger     zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDataSource creates a Shopify data source with default options
func NewDataSource(logger zerolog.Logger) ports.ExternalDataSource {
	return NewDataSourceWithOptions(Options{Logger: logger})
}

// NewDataSourceWithOptions creates a Shopify data source
func NewDataSourceWithOptions(opts Options) ports.ExternalDataSource {
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	return &dataSource{
		apiVersion: opts.APIVersion,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		limit:      rate.Limit(opts.RequestsPerSecond),
		burst:      opts.Burst,
		logger:     opts.Logger,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the shared limiter of a shop, creating it on first use
func (d *dataSource) limiterFor(shop string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[shop]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[shop] = l
	}
	return l
}

// createClient is a helper to create a goshopify client for one tenant
func (d *dataSource) createClient(tenant *domain.Tenant) (*goshopify.Client, error) {
	app := goshopify.App{
		ApiKey:    tenant.APIKey,
		ApiSecret: tenant.APISecret,
	}
	client, err := goshopify.NewClient(app, tenant.ShopDomain, tenant.AccessToken,
		goshopify.WithVersion(d.apiVersion),
		goshopify.WithHTTPClient(d.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// Fetch retrieves the first page of a resource for a tenant
func (d *dataSource) Fetch(ctx context.Context, tenant *domain.Tenant, resource domain.ResourceType) (*domain.ResourceBatch, error) {
	client, err := d.createClient(tenant)
	if err != nil {
		return nil, &domain.UpstreamFetchError{Resource: resource, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	batch := &domain.ResourceBatch{}
	var target interface{}
	switch resource {
	case domain.ResourceCustomers:
		target = &struct {
			Customers *[]domain.CustomerRecord `json:"customers"`
		}{&batch.Customers}
	case domain.ResourceProducts:
		target = &struct {
			Products *[]domain.ProductRecord `json:"products"`
		}{&batch.Products}
	case domain.ResourceOrders:
		target = &struct {
			Orders *[]domain.OrderRecord `json:"orders"`
		}{&batch.Orders}
	default:
		return nil, &domain.ValidationError{Field: "resource", Reason: fmt.Sprintf("unsupported resource %q", resource)}
	}

	waitStart := time.Now()
	if err := d.limiterFor(tenant.ShopDomain).Wait(ctx); err != nil {
		return nil, &domain.UpstreamFetchError{Resource: resource, Err: fmt.Errorf("rate limiter: %w", err)}
	}
	metrics.RateLimitWaitTime.Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	err = client.Get(ctx, fmt.Sprintf("%s.json", resource), target, goshopify.ListOptions{Limit: PageSize})
	metrics.UpstreamRequestDuration.WithLabelValues(string(resource)).Observe(time.Since(start).Seconds())
	if err != nil {
		fetchErr := toFetchError(resource, err)
		metrics.UpstreamRequestsTotal.WithLabelValues(string(resource), strconv.Itoa(fetchErr.Status)).Inc()
		d.logger.Error().
			Err(err).
			Str("tenantId", tenant.ID).
			Str("shop", tenant.ShopDomain).
			Str("resource", string(resource)).
			Int("status", fetchErr.Status).
			Msg("Failed to fetch resource from Shopify")
		return nil, fetchErr
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(string(resource), strconv.Itoa(http.StatusOK)).Inc()

	d.logger.Debug().
		Str("tenantId", tenant.ID).
		Str("resource", string(resource)).
		Int("records", batch.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched resource from Shopify")
	return batch, nil
}

// toFetchError keeps the HTTP status when the upstream answered
func toFetchError(resource domain.ResourceType, err error) *domain.UpstreamFetchError {
	fetchErr := &domain.UpstreamFetchError{Resource: resource, Err: err}

	var rateErr goshopify.RateLimitError
	var respErr goshopify.ResponseError
	var decodeErr goshopify.ResponseDecodingError
	switch {
	case errors.As(err, &rateErr):
		fetchErr.Status = rateErr.Status
	case errors.As(err, &respErr):
		fetchErr.Status = respErr.Status
	case errors.As(err, &decodeErr):
		fetchErr.Status = decodeErr.Status
	}
	return fetchErr
}
