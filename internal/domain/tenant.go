package domain

import (
	"strings"
	"time"
)

// Tenant represents one onboarded Shopify store and the credentials used to sync it
type Tenant struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	ShopDomain  string    `json:"shopDomain" bson:"shopDomain"` // Unique, natural key for upstream identity
	AccessToken string    `json:"-" bson:"accessToken"`
	APIKey      string    `json:"-" bson:"apiKey"`
	APISecret   string    `json:"-" bson:"apiSecret"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewTenant creates a tenant after validating the required fields
func NewTenant(name, shopDomain, accessToken, apiKey, apiSecret string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	shopDomain = NormalizeShopDomain(shopDomain)
	accessToken = strings.TrimSpace(accessToken)

	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}
	if shopDomain == "" {
		return nil, &ValidationError{Field: "shopDomain", Reason: "is required"}
	}
	if accessToken == "" {
		return nil, &ValidationError{Field: "accessToken", Reason: "is required"}
	}

	return &Tenant{
		Name:        name,
		ShopDomain:  shopDomain,
		AccessToken: accessToken,
		APIKey:      strings.TrimSpace(apiKey),
		APISecret:   strings.TrimSpace(apiSecret),
	}, nil
}

// NormalizeShopDomain lowercases the domain and strips any scheme or trailing slash
func NormalizeShopDomain(shopDomain string) string {
	d := strings.ToLower(strings.TrimSpace(shopDomain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimSuffix(d, "/")
}
