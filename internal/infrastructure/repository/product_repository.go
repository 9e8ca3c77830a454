package repository

import (
	"context"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoProductRepository implements ProductRepository using MongoDB
type MongoProductRepository struct {
	collection *mongo.Collection
}

// Upsert creates or updates a product keyed by (tenantId, externalId)
func (r *MongoProductRepository) Upsert(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	filter := bson.M{"tenantId": p.TenantID, "externalId": p.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"title":       p.Title,
			"description": p.Description,
			"price":       p.Price.String(),
		},
		"$setOnInsert": bson.M{"_id": uuid.New().String()},
	}

	var doc entity.MongoProductDoc
	if err := upsertReturning(ctx, r.collection, filter, update, &doc); err != nil {
		return nil, domain.NewStoreError("products.upsert", err)
	}
	product, err := doc.ToDomain()
	if err != nil {
		return nil, domain.NewStoreError("products.upsert", err)
	}
	return product, nil
}

// ResolveExternalIDs maps known external product ids to stored ids
func (r *MongoProductRepository) ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error) {
	out, err := resolveExternalIDs(ctx, r.collection, tenantID, externalIDs)
	if err != nil {
		return nil, domain.NewStoreError("products.resolve", err)
	}
	return out, nil
}

// FindByIDs retrieves the tenant's products with the given ids
func (r *MongoProductRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"tenantId": tenantID, "_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, domain.NewStoreError("products.find", err)
	}
	defer cursor.Close(ctx)

	var products []*domain.Product
	for cursor.Next(ctx) {
		var doc entity.MongoProductDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("products.find", err)
		}
		p, err := doc.ToDomain()
		if err != nil {
			return nil, domain.NewStoreError("products.find", err)
		}
		products = append(products, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("products.find", err)
	}
	return products, nil
}

// Count returns the number of products for a tenant
func (r *MongoProductRepository) Count(ctx context.Context, tenantID string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"tenantId": tenantID})
	if err != nil {
		return 0, domain.NewStoreError("products.count", err)
	}
	return n, nil
}
