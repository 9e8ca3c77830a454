package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCustomerRepository implements CustomerRepository using MongoDB
type MongoCustomerRepository struct {
	collection *mongo.Collection
}

// Upsert creates or updates a customer keyed by (tenantId, externalId)
func (r *MongoCustomerRepository) Upsert(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	filter := bson.M{"tenantId": c.TenantID, "externalId": c.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"email":     c.Email,
			"firstName": c.FirstName,
			"lastName":  c.LastName,
			"updatedAt": c.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":       uuid.New().String(),
			"createdAt": createdAt,
		},
	}

	var doc entity.MongoCustomerDoc
	if err := upsertReturning(ctx, r.collection, filter, update, &doc); err != nil {
		return nil, domain.NewStoreError("customers.upsert", err)
	}
	return doc.ToDomain(), nil
}

// ResolveExternalIDs maps known external customer ids to stored ids
func (r *MongoCustomerRepository) ResolveExternalIDs(ctx context.Context, tenantID string, externalIDs []int64) (map[int64]string, error) {
	out, err := resolveExternalIDs(ctx, r.collection, tenantID, externalIDs)
	if err != nil {
		return nil, domain.NewStoreError("customers.resolve", err)
	}
	return out, nil
}

// FindByIDs retrieves the tenant's customers with the given ids
func (r *MongoCustomerRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]*domain.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"tenantId": tenantID, "_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, domain.NewStoreError("customers.find", err)
	}
	defer cursor.Close(ctx)

	var customers []*domain.Customer
	for cursor.Next(ctx) {
		var doc entity.MongoCustomerDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("customers.find", err)
		}
		customers = append(customers, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("customers.find", err)
	}
	return customers, nil
}

// FindFirstByEmail retrieves the oldest customer whose email matches case-insensitively
func (r *MongoCustomerRepository) FindFirstByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	filter := bson.M{"email": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(email) + "$", Options: "i"}}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	var doc entity.MongoCustomerDoc
	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError("customers.find", err)
	}
	return doc.ToDomain(), nil
}

// Count returns the number of customers for a tenant
func (r *MongoCustomerRepository) Count(ctx context.Context, tenantID string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"tenantId": tenantID})
	if err != nil {
		return 0, domain.NewStoreError("customers.count", err)
	}
	return n, nil
}

// CountCreatedSince returns the number of customers created at or after since
func (r *MongoCustomerRepository) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"tenantId": tenantID, "createdAt": bson.M{"$gte": since}})
	if err != nil {
		return 0, domain.NewStoreError("customers.count", err)
	}
	return n, nil
}

// resolveExternalIDs is shared by customers and products: one $in scan projected to the keys
func resolveExternalIDs(ctx context.Context, coll *mongo.Collection, tenantID string, externalIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}

	filter := bson.M{"tenantId": tenantID, "externalId": bson.M{"$in": externalIDs}}
	opts := options.Find().SetProjection(bson.M{"_id": 1, "externalId": 1})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ID         string `bson:"_id"`
			ExternalID int64  `bson:"externalId"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ExternalID] = row.ID
	}
	return out, cursor.Err()
}
