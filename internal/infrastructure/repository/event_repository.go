package repository

import (
	"context"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/infrastructure/repository/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoEventRepository implements EventRepository using MongoDB
type MongoEventRepository struct {
	collection *mongo.Collection
}

// Append inserts a new event
func (r *MongoEventRepository) Append(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	row := *e
	row.ID = uuid.New().String()
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, entity.MongoEventDocFromDomain(&row)); err != nil {
		return nil, domain.NewStoreError("events.append", err)
	}
	return &row, nil
}

// ListRecent retrieves the newest events for a tenant
func (r *MongoEventRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"tenantId": tenantID}, opts)
	if err != nil {
		return nil, domain.NewStoreError("events.list", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.Event
	for cursor.Next(ctx) {
		var doc entity.MongoEventDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, domain.NewStoreError("events.list", err)
		}
		events = append(events, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, domain.NewStoreError("events.list", err)
	}
	return events, nil
}
