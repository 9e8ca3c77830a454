package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a store customer, unique per (TenantID, ExternalID)
type Customer struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ExternalID int64     `json:"externalCustomerId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DisplayName joins first and last name, trimmed
func (c *Customer) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Product is a store product, unique per (TenantID, ExternalID)
type Product struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	ExternalID  int64           `json:"externalProductId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// Order is a store order. CustomerID is nil when the customer had not been ingested
// at the time the order was last upserted.
type Order struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenantId"`
	ExternalID        int64           `json:"externalOrderId"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	Currency          string          `json:"currency"`
	ExternalCreatedAt time.Time       `json:"externalCreatedAt"`
	CustomerID        *string         `json:"customerId"`
}

// LocalDate is the calendar day of the order in the store's own UTC offset
func (o *Order) LocalDate() string {
	return o.ExternalCreatedAt.Format(DateLayout)
}

// LineItem belongs to exactly one Order. ProductID is nil when the product had not
// been ingested at the time the item was last upserted.
type LineItem struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	OrderID    string          `json:"orderId"`
	ExternalID int64           `json:"externalItemId"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ProductID  *string         `json:"productId"`
}

// Revenue is price × quantity
func (li *LineItem) Revenue() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// DateLayout is the ISO calendar-date layout used for daily aggregation
const DateLayout = "2006-01-02"

// FormatMoney renders a decimal with exactly two fractional digits
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
