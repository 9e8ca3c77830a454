package application

import (
	"context"
	"strings"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
)

// TenantService handles tenant onboarding and lookup
type TenantService struct {
	tenants   ports.TenantRepository
	customers ports.CustomerRepository
	logger    zerolog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenants ports.TenantRepository,
	customers ports.CustomerRepository,
	logger zerolog.Logger,
) *TenantService {
	return &TenantService{
		tenants:   tenants,
		customers: customers,
		logger:    logger,
	}
}

// UpsertTenantInput represents input for creating or updating a tenant
type UpsertTenantInput struct {
	Name        string
	ShopDomain  string
	AccessToken string
	APIKey      string
	APISecret   string
}

// UpsertTenant creates the tenant or updates the one with the same shop domain
func (s *TenantService) UpsertTenant(ctx context.Context, input UpsertTenantInput) (*domain.Tenant, error) {
	tenant, err := domain.NewTenant(input.Name, input.ShopDomain, input.AccessToken, input.APIKey, input.APISecret)
	if err != nil {
		return nil, err
	}

	stored, err := s.tenants.UpsertByShopDomain(ctx, tenant)
	if err != nil {
		s.logger.Error().Err(err).Str("shopDomain", tenant.ShopDomain).Msg("Failed to upsert tenant")
		return nil, err
	}

	s.logger.Info().
		Str("tenantId", stored.ID).
		Str("shopDomain", stored.ShopDomain).
		Msg("Tenant upserted")
	return stored, nil
}

// ListTenants returns every tenant
func (s *TenantService) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	if tenants == nil {
		tenants = []*domain.Tenant{}
	}
	return tenants, nil
}

// GetTenant returns the tenant or a NotFoundError
func (s *TenantService) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, &domain.NotFoundError{Entity: "tenant", ID: tenantID}
	}
	return tenant, nil
}

// LoginByEmail resolves the tenant of the oldest customer with that email, case-insensitively
func (s *TenantService) LoginByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &domain.ValidationError{Field: "email", Reason: "is required"}
	}

	customer, err := s.customers.FindFirstByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, &domain.NotFoundError{Entity: "customer", ID: email}
	}

	tenant, err := s.GetTenant(ctx, customer.TenantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenantId", tenant.ID).Msg("Login resolved tenant")
	return tenant, nil
}
