package application

import (
	"context"
	"encoding/json"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
)

// EventService appends and lists free-form tenant events
type EventService struct {
	tenants ports.TenantRepository
	events  ports.EventRepository
	clock   ports.Clock
	logger  zerolog.Logger
}

// NewEventService creates a new event service
func NewEventService(tenants ports.TenantRepository, events ports.EventRepository, clock ports.Clock, logger zerolog.Logger) *EventService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &EventService{
		tenants: tenants,
		events:  events,
		clock:   clock,
		logger:  logger,
	}
}

// Append validates and stores an event for an existing tenant
func (s *EventService) Append(ctx context.Context, tenantID, eventType string, payload json.RawMessage) (*domain.Event, error) {
	event, err := domain.NewEvent(tenantID, eventType, payload)
	if err != nil {
		return nil, err
	}
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	event.OccurredAt = s.clock.Now()
	stored, err := s.events.Append(ctx, event)
	if err != nil {
		s.logger.Error().Err(err).Str("tenantId", tenantID).Str("type", event.Type).Msg("Failed to append event")
		return nil, err
	}

	s.logger.Debug().Str("tenantId", tenantID).Str("type", stored.Type).Str("eventId", stored.ID).Msg("Event ingested")
	return stored, nil
}

// ListRecent returns the tenant's most recent events, newest first
func (s *EventService) ListRecent(ctx context.Context, tenantID string) ([]*domain.Event, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	events, err := s.events.ListRecent(ctx, tenantID, domain.RecentEventsLimit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

func (s *EventService) requireTenant(ctx context.Context, tenantID string) error {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return &domain.NotFoundError{Entity: "tenant", ID: tenantID}
	}
	return nil
}
