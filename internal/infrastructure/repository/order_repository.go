package repository

import (
	"context"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/repository/entity"
	"shopify-insights/internal/ports"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderRepository implements OrderRepository using MongoDB
type MongoOrderRepository struct {
	collection *mongo.Collection
}

// Upsert creates or updates an order keyed by (tenantId, externalId)
func (r *MongoOrderRepository) Upsert(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	filter := bson.M{"tenantId": o.TenantID, "externalId": o.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"totalPrice":        o.TotalPrice.String(),
			"currency":          o.Currency,
			"externalCreatedAt": o.ExternalCreatedAt,
			"externalUtcOffset": entity.UTCOffset(o.ExternalCreatedAt),
			"customerId":        o.CustomerID,
		},
		"$setOnInsert": bson.M{"_id": uuid.New().String()},
	}

	var doc entity.MongoOrderDoc
	if err := upsertReturning(ctx, r.collection, filter, update, &doc); err != nil {
		return nil, domain.NewStoreError("orders.upsert", err)
	}
	order, err := doc.ToDomain()
	if err != nil {
		return nil, domain.NewStoreError("orders.upsert", err)
	}
	return order, nil
}

// List retrieves a tenant's orders matching the filter, oldest first
func (r *MongoOrderRepository) List(ctx context.Context, tenantID string, f ports.OrderFilter) ([]*domain.Order, error) {
	filter := bson.M{"tenantId": tenantID}
	if f.LinkedOnly {
		filter["customerId"] = bson.M{"$ne": nil}
	}
	created := bson.M{}
	if f.CreatedFrom != nil {
		created["$gte"] = *f.CreatedFrom
	}
	if f.CreatedTo != nil {
		created["$lte"] = *f.CreatedTo
	}
	if len(created) > 0 {
		filter["externalCreatedAt"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "externalCreatedAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.NewStoreError("orders.list", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	for cursor.Next(ctx) {
		var doc entity.MongoOrderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("orders.list", err)
		}
		o, err := doc.ToDomain()
		if err != nil {
			return nil, domain.NewStoreError("orders.list", err)
		}
		orders = append(orders, o)
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("orders.list", err)
	}
	return orders, nil
}

// Count returns the number of orders for a tenant
func (r *MongoOrderRepository) Count(ctx context.Context, tenantID string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"tenantId": tenantID})
	if err != nil {
		return 0, domain.NewStoreError("orders.count", err)
	}
	return n, nil
}

// MongoLineItemRepository implements LineItemRepository using MongoDB
type MongoLineItemRepository struct {
	collection *mongo.Collection
}

// Upsert creates or updates a line item keyed by (tenantId, externalId)
func (r *MongoLineItemRepository) Upsert(ctx context.Context, li *domain.LineItem) (*domain.LineItem, error) {
	filter := bson.M{"tenantId": li.TenantID, "externalId": li.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"orderId":   li.OrderID,
			"title":     li.Title,
			"quantity":  li.Quantity,
			"price":     li.Price.String(),
			"productId": li.ProductID,
		},
		"$setOnInsert": bson.M{"_id": uuid.New().String()},
	}

	var doc entity.MongoLineItemDoc
	if err := upsertReturning(ctx, r.collection, filter, update, &doc); err != nil {
		return nil, domain.NewStoreError("line_items.upsert", err)
	}
	item, err := doc.ToDomain()
	if err != nil {
		return nil, domain.NewStoreError("line_items.upsert", err)
	}
	return item, nil
}

// List retrieves a tenant's line items, optionally only those linked to a product
func (r *MongoLineItemRepository) List(ctx context.Context, tenantID string, linkedOnly bool) ([]*domain.LineItem, error) {
	filter := bson.M{"tenantId": tenantID}
	if linkedOnly {
		filter["productId"] = bson.M{"$ne": nil}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.NewStoreError("line_items.list", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.LineItem
	for cursor.Next(ctx) {
		var doc entity.MongoLineItemDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("line_items.list", err)
		}
		li, err := doc.ToDomain()
		if err != nil {
			return nil, domain.NewStoreError("line_items.list", err)
		}
		items = append(items, li)
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("line_items.list", err)
	}
	return items, nil
}
