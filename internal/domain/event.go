package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// RecentEventsLimit caps how many events are returned when listing a tenant's events
const RecentEventsLimit = 20

// Event is a free-form, append-only record attached to a tenant (cart updates, checkouts, ...)
type Event struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent validates the type and payload of an incoming event
func NewEvent(tenantID, eventType string, payload json.RawMessage) (*Event, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, &ValidationError{Field: "type", Reason: "is required"}
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil, &ValidationError{Field: "payload", Reason: "is required"}
	}
	if !json.Valid(payload) {
		return nil, &ValidationError{Field: "payload", Reason: "must be a JSON document"}
	}

	return &Event{
		TenantID: tenantID,
		Type:     eventType,
		Payload:  payload,
	}, nil
}
