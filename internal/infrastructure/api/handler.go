package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"shopify-insights/internal/application"
	"shopify-insights/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type loginRequest struct {
	Email string `json:"email" validate:"required"`
}

type upsertTenantRequest struct {
	Name        string `json:"name" validate:"required"`
	ShopDomain  string `json:"shopDomain" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
	APIKey      string `json:"apiKey"`
	APISecret   string `json:"apiSecret"`
}

type eventRequest struct {
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// IngestResponse is returned by a manual sync
type IngestResponse struct {
	Message string                       `json:"message"`
	Report  *application.ReconcileReport `json:"report"`
}

// EventResponse is returned when an event is appended
type EventResponse struct {
	Message string        `json:"message"`
	Event   *domain.Event `json:"event"`
}

// Handler serves the REST endpoints
type Handler struct {
	tenants    *application.TenantService
	syncer     *application.SyncService
	aggregator *application.AggregationService
	events     *application.EventService
	logger     zerolog.Logger
}

// NewHandler creates a new REST handler
func NewHandler(
	tenants *application.TenantService,
	syncer *application.SyncService,
	aggregator *application.AggregationService,
	events *application.EventService,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		tenants:    tenants,
		syncer:     syncer,
		aggregator: aggregator,
		events:     events,
		logger:     logger,
	}
}

// Login resolves the tenant of a customer email
// @Summary Log in by customer email
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]domain.Tenant
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[loginRequest](r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	tenant, err := h.tenants.LoginByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*domain.Tenant{"tenant": tenant})
}

// UpsertTenant creates a tenant or updates the one with the same shop domain
// @Summary Create or update a tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Success 200 {object} domain.Tenant
// @Failure 400 {object} ErrorResponse
// @Router /tenants [post]
func (h *Handler) UpsertTenant(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[upsertTenantRequest](r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	tenant, err := h.tenants.UpsertTenant(r.Context(), application.UpsertTenantInput{
		Name:        req.Name,
		ShopDomain:  req.ShopDomain,
		AccessToken: req.AccessToken,
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// ListTenants returns every tenant without credentials
// @Summary List tenants
// @Tags tenants
// @Produce json
// @Success 200 {array} domain.Tenant
// @Router /tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.ListTenants(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// Ingest runs a manual sync of one resource for one tenant
// @Summary Sync one resource now
// @Tags ingest
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param resource path string true "customers, products or orders"
// @Success 200 {object} IngestResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /ingest/{tenantId}/{resource} [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	resource, err := domain.ParseResourceType(chi.URLParam(r, "resource"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	report, err := h.syncer.SyncResource(r.Context(), chi.URLParam(r, "tenantId"), resource)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		Message: string(resource) + " ingested",
		Report:  report,
	})
}

// Summary returns the dashboard totals
// @Summary Tenant summary
// @Tags insights
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {object} application.Summary
// @Router /insights/{tenantId}/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	summary, err := h.aggregator.Summary(r.Context(), tenantID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// OrdersByDate returns revenue per local calendar day as {"YYYY-MM-DD": total}
// @Summary Revenue per day
// @Tags insights
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param from query string false "YYYY-MM-DD or RFC3339, inclusive"
// @Param to query string false "YYYY-MM-DD or RFC3339, inclusive"
// @Success 200 {object} map[string]number
// @Router /insights/{tenantId}/orders-by-date [get]
func (h *Handler) OrdersByDate(w http.ResponseWriter, r *http.Request) {
	from, err := application.ParseDateBound("from", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	to, err := application.ParseDateBound("to", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	series, err := h.aggregator.OrdersByDate(r.Context(), tenantID, from, to)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	// encoding/json sorts map keys, so days come out ascending
	body := make(map[string]json.Number, len(series))
	for _, p := range series {
		body[p.Date] = json.Number(p.Total.String())
	}
	writeJSON(w, http.StatusOK, body)
}

// TopCustomers ranks customers by spend
// @Summary Top customers
// @Tags insights
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param limit query int false "1-50, default 5"
// @Success 200 {array} application.CustomerSpend
// @Router /insights/{tenantId}/top-customers [get]
func (h *Handler) TopCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	rows, err := h.aggregator.TopCustomers(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// TopProducts ranks products by revenue
// @Summary Top products
// @Tags insights
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param limit query int false "1-50, default 5"
// @Success 200 {array} application.ProductSales
// @Router /insights/{tenantId}/top-products [get]
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	rows, err := h.aggregator.TopProducts(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// AppendEvent stores a free-form tenant event
// @Summary Append an event
// @Tags events
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {object} EventResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /events/{tenantId} [post]
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[eventRequest](r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	event, err := h.events.Append(r.Context(), chi.URLParam(r, "tenantId"), req.Type, req.Payload)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{Message: "Event ingested", Event: event})
}

// ListEvents returns the most recent events, newest first
// @Summary Recent events
// @Tags events
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {array} domain.Event
// @Router /events/{tenantId} [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListRecent(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant, err := h.tenants.GetTenant(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return "", false
	}
	return tenant.ID, true
}

// parseLimit reads ?limit; absent means the default, larger than MaxTopLimit is capped
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return application.DefaultTopLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	}
	if limit > application.MaxTopLimit {
		limit = application.MaxTopLimit
	}
	return limit, nil
}
