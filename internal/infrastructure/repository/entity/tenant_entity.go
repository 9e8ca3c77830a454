package entity

import (
	"encoding/json"
	"time"

	"shopify-insights/internal/domain"
)

// MongoTenantDoc represents a tenant in MongoDB
type MongoTenantDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	ShopDomain  string    `bson:"shopDomain"`
	AccessToken string    `bson:"accessToken"`
	APIKey      string    `bson:"apiKey"`
	APISecret   string    `bson:"apiSecret"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoTenantDoc) ToDomain() *domain.Tenant {
	return &domain.Tenant{
		ID:          d.ID,
		Name:        d.Name,
		ShopDomain:  d.ShopDomain,
		AccessToken: d.AccessToken,
		APIKey:      d.APIKey,
		APISecret:   d.APISecret,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoEventDoc represents an appended event. The payload is kept as JSON text so it
// round-trips byte for byte.
type MongoEventDoc struct {
	ID         string    `bson:"_id"`
	TenantID   string    `bson:"tenantId"`
	Type       string    `bson:"type"`
	Payload    string    `bson:"payload"`
	OccurredAt time.Time `bson:"occurredAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoEventDoc) ToDomain() *domain.Event {
	return &domain.Event{
		ID:         d.ID,
		TenantID:   d.TenantID,
		Type:       d.Type,
		Payload:    json.RawMessage(d.Payload),
		OccurredAt: d.OccurredAt,
	}
}

// MongoEventDocFromDomain converts a domain entity to a MongoDB document
func MongoEventDocFromDomain(e *domain.Event) *MongoEventDoc {
	return &MongoEventDoc{
		ID:         e.ID,
		TenantID:   e.TenantID,
		Type:       e.Type,
		Payload:    string(e.Payload),
		OccurredAt: e.OccurredAt,
	}
}
