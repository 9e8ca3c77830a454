package repository

import (
	"context"
	"errors"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTenantRepository implements TenantRepository using MongoDB
type MongoTenantRepository struct {
	collection *mongo.Collection
}

// UpsertByShopDomain creates or updates a tenant keyed by shop domain
func (r *MongoTenantRepository) UpsertByShopDomain(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	now := time.Now()
	filter := bson.M{"shopDomain": tenant.ShopDomain}
	update := bson.M{
		"$set": bson.M{
			"name":        tenant.Name,
			"accessToken": tenant.AccessToken,
			"apiKey":      tenant.APIKey,
			"apiSecret":   tenant.APISecret,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"_id":       uuid.New().String(),
			"createdAt": now,
		},
	}

	var doc entity.MongoTenantDoc
	if err := upsertReturning(ctx, r.collection, filter, update, &doc); err != nil {
		return nil, domain.NewStoreError("tenants.upsert", err)
	}
	return doc.ToDomain(), nil
}

// GetByID retrieves a tenant by id
func (r *MongoTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var doc entity.MongoTenantDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError("tenants.get", err)
	}
	return doc.ToDomain(), nil
}

// List retrieves all tenants, oldest first
func (r *MongoTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, domain.NewStoreError("tenants.list", err)
	}
	defer cursor.Close(ctx)

	var tenants []*domain.Tenant
	for cursor.Next(ctx) {
		var doc entity.MongoTenantDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("tenants.list", err)
		}
		tenants = append(tenants, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("tenants.list", err)
	}
	return tenants, nil
}
