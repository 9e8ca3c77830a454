package entity

import (
	"fmt"
	"time"

	"shopify-insights/internal/domain"

	"github.com/shopspring/decimal"
)

// MongoCustomerDoc represents a customer in MongoDB
type MongoCustomerDoc struct {
	ID         string    `bson:"_id"`
	TenantID   string    `bson:"tenantId"`
	ExternalID int64     `bson:"externalId"`
	Email      string    `bson:"email"`
	FirstName  string    `bson:"firstName"`
	LastName   string    `bson:"lastName"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoCustomerDoc) ToDomain() *domain.Customer {
	return &domain.Customer{
		ID:         d.ID,
		TenantID:   d.TenantID,
		ExternalID: d.ExternalID,
		Email:      d.Email,
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MongoProductDoc represents a product in MongoDB; price is a decimal string
type MongoProductDoc struct {
	ID          string `bson:"_id"`
	TenantID    string `bson:"tenantId"`
	ExternalID  int64  `bson:"externalId"`
	Title       string `bson:"title"`
	Description string `bson:"description"`
	Price       string `bson:"price"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoProductDoc) ToDomain() (*domain.Product, error) {
	price, err := parseMoney("product.price", d.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:          d.ID,
		TenantID:    d.TenantID,
		ExternalID:  d.ExternalID,
		Title:       d.Title,
		Description: d.Description,
		Price:       price,
	}, nil
}

// MongoOrderDoc represents an order in MongoDB. BSON dates are UTC, so the store's
// UTC offset is kept alongside to rebuild the local calendar day.
type MongoOrderDoc struct {
	ID                string    `bson:"_id"`
	TenantID          string    `bson:"tenantId"`
	ExternalID        int64     `bson:"externalId"`
	TotalPrice        string    `bson:"totalPrice"`
	Currency          string    `bson:"currency"`
	ExternalCreatedAt time.Time `bson:"externalCreatedAt"`
	UTCOffsetSeconds  int       `bson:"externalUtcOffset"`
	CustomerID        *string   `bson:"customerId"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoOrderDoc) ToDomain() (*domain.Order, error) {
	total, err := parseMoney("order.totalPrice", d.TotalPrice)
	if err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:                d.ID,
		TenantID:          d.TenantID,
		ExternalID:        d.ExternalID,
		TotalPrice:        total,
		Currency:          d.Currency,
		ExternalCreatedAt: d.ExternalCreatedAt.In(time.FixedZone("", d.UTCOffsetSeconds)),
		CustomerID:        d.CustomerID,
	}, nil
}

// UTCOffset returns the offset in seconds of t's location
func UTCOffset(t time.Time) int {
	_, off := t.Zone()
	return off
}

// MongoLineItemDoc represents an order line item in MongoDB
type MongoLineItemDoc struct {
	ID         string  `bson:"_id"`
	TenantID   string  `bson:"tenantId"`
	OrderID    string  `bson:"orderId"`
	ExternalID int64   `bson:"externalId"`
	Title      string  `bson:"title"`
	Quantity   int     `bson:"quantity"`
	Price      string  `bson:"price"`
	ProductID  *string `bson:"productId"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoLineItemDoc) ToDomain() (*domain.LineItem, error) {
	price, err := parseMoney("lineItem.price", d.Price)
	if err != nil {
		return nil, err
	}
	return &domain.LineItem{
		ID:         d.ID,
		TenantID:   d.TenantID,
		OrderID:    d.OrderID,
		ExternalID: d.ExternalID,
		Title:      d.Title,
		Quantity:   d.Quantity,
		Price:      price,
		ProductID:  d.ProductID,
	}, nil
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", field, s, err)
	}
	return d, nil
}
