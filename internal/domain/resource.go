package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ResourceType is one of the upstream resource collections that can be synced
type ResourceType string

const (
	ResourceCustomers ResourceType = "customers"
	ResourceProducts  ResourceType = "products"
	ResourceOrders    ResourceType = "orders"
)

// ResourceTypes lists resources in reconciliation order: orders link to customers and products
var ResourceTypes = []ResourceType{ResourceCustomers, ResourceProducts, ResourceOrders}

// ParseResourceType validates a resource name coming from a request path
func ParseResourceType(s string) (ResourceType, error) {
	switch r := ResourceType(strings.ToLower(strings.TrimSpace(s))); r {
	case ResourceCustomers, ResourceProducts, ResourceOrders:
		return r, nil
	default:
		return "", &ValidationError{Field: "resource", Reason: fmt.Sprintf("unsupported resource %q", s)}
	}
}

// ResourceBatch is one page of upstream records. Only the slice matching the
// fetched resource is populated.
type ResourceBatch struct {
	Customers []CustomerRecord `json:"customers,omitempty"`
	Products  []ProductRecord  `json:"products,omitempty"`
	Orders    []OrderRecord    `json:"orders,omitempty"`
}

// Len returns the number of records in the batch
func (b *ResourceBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Customers) + len(b.Products) + len(b.Orders)
}

// CustomerRecord is a customer as returned by the Shopify Admin API
type CustomerRecord struct {
	ID        int64      `json:"id"`
	Email     *string    `json:"email"`
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// ProductRecord is a product as returned by the Shopify Admin API
type ProductRecord struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	BodyHTML *string         `json:"body_html"`
	Variants []VariantRecord `json:"variants"`
}

// VariantRecord carries the only variant field the sync uses
type VariantRecord struct {
	ID    int64 `json:"id"`
	Price Money `json:"price"`
}

// OrderRecord is an order as returned by the Shopify Admin API
type OrderRecord struct {
	ID         int64            `json:"id"`
	TotalPrice Money            `json:"total_price"`
	Currency   string           `json:"currency"`
	CreatedAt  *time.Time       `json:"created_at"`
	Customer   *CustomerRef     `json:"customer"`
	LineItems  []LineItemRecord `json:"line_items"`
}

// CustomerRef is the customer stub embedded in an order
type CustomerRef struct {
	ID int64 `json:"id"`
}

// LineItemRecord is a line item embedded in an order
type LineItemRecord struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Price     Money  `json:"price"`
	ProductID *int64 `json:"product_id"`
}

// Money holds a decimal amount exactly as sent upstream. Shopify sends money as
// strings, but bare JSON numbers and null are accepted too.
type Money string

// UnmarshalJSON accepts "12.50", 12.50 and null
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Money(strings.TrimSpace(s))
		return nil
	}
	*m = Money(data)
	return nil
}

// Decimal parses the amount. An empty amount yields fallback.
func (m Money) Decimal(fallback decimal.Decimal) (decimal.Decimal, error) {
	if m == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(string(m))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "money", Reason: fmt.Sprintf("unparsable amount %q", string(m))}
	}
	return d, nil
}
