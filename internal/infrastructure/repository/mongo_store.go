package repository

import (
	"context"
	"fmt"

	"shopify-insights/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	tenantsCollection   = "tenants"
	customersCollection = "customers"
	productsCollection  = "products"
	ordersCollection    = "orders"
	lineItemsCollection = "order_line_items"
	eventsCollection    = "events"
)

// MongoStore implements ports.Store using MongoDB. Every ingestion write is an
// UpdateOne/FindOneAndUpdate with upsert on a unique (tenantId, externalId) index.
type MongoStore struct {
	db        *mongo.Database
	tenants   *MongoTenantRepository
	customers *MongoCustomerRepository
	products  *MongoProductRepository
	orders    *MongoOrderRepository
	lineItems *MongoLineItemRepository
	events    *MongoEventRepository
}

// NewMongoStore creates a new MongoDB store
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:        db,
		tenants:   &MongoTenantRepository{collection: db.Collection(tenantsCollection)},
		customers: &MongoCustomerRepository{collection: db.Collection(customersCollection)},
		products:  &MongoProductRepository{collection: db.Collection(productsCollection)},
		orders:    &MongoOrderRepository{collection: db.Collection(ordersCollection)},
		lineItems: &MongoLineItemRepository{collection: db.Collection(lineItemsCollection)},
		events:    &MongoEventRepository{collection: db.Collection(eventsCollection)},
	}
}

func (s *MongoStore) Tenants() ports.TenantRepository     { return s.tenants }
func (s *MongoStore) Customers() ports.CustomerRepository { return s.customers }
func (s *MongoStore) Products() ports.ProductRepository   { return s.products }
func (s *MongoStore) Orders() ports.OrderRepository       { return s.orders }
func (s *MongoStore) LineItems() ports.LineItemRepository { return s.lineItems }
func (s *MongoStore) Events() ports.EventRepository       { return s.events }

// EnsureIndexes creates the unique natural-key indexes the upserts rely on, plus the
// scan indexes used by aggregation. It is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	naturalKey := func() mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_external_unique"),
		}
	}

	indexes := map[string][]mongo.IndexModel{
		tenantsCollection: {
			{Keys: bson.D{{Key: "shopDomain", Value: 1}}, Options: options.Index().SetUnique(true).SetName("shop_domain_unique")},
		},
		customersCollection: {
			naturalKey(),
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		productsCollection: {naturalKey()},
		ordersCollection: {
			naturalKey(),
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "externalCreatedAt", Value: 1}}},
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "customerId", Value: 1}}},
		},
		lineItemsCollection: {
			naturalKey(),
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "productId", Value: 1}}},
			{Keys: bson.D{{Key: "orderId", Value: 1}}},
		},
		eventsCollection: {
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "occurredAt", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// upsertReturning is the shared keyed upsert: apply update to the row matching filter,
// inserting it when absent, and decode the resulting document into out.
func upsertReturning(ctx context.Context, coll *mongo.Collection, filter, update bson.M, out interface{}) error {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	return coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
}
