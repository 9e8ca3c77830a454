package api

import (
	"net/http"

	securitymiddleware "shopify-insights/internal/infrastructure/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	APIKey      string
	CORSOrigins []string
	// SwaggerFile is served at /swagger/doc.json
	SwaggerFile string
}

// publicPaths skip the API key check
var publicPaths = []string{"/", "/health", "/metrics", "/swagger/", "/auth/login"}

// NewRouter builds the chi router with the full middleware stack
func NewRouter(cfg RouterConfig, h *Handler, logger zerolog.Logger) http.Handler {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.SwaggerFile == "" {
		cfg.SwaggerFile = "./docs/swagger.json"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(securitymiddleware.AuditLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(securitymiddleware.SecurityHeadersMiddleware())
	r.Use(securitymiddleware.InputValidationMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", securitymiddleware.APIKeyHeader},
	}))
	r.Use(securitymiddleware.APIKeyMiddleware(cfg.APIKey, logger, publicPaths...))

	// Public routes
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Shopify Insights Backend is running"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, cfg.SwaggerFile)
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Post("/auth/login", h.Login)

	// Routes requiring the API key
	r.Route("/tenants", func(r chi.Router) {
		r.Post("/", h.UpsertTenant)
		r.Get("/", h.ListTenants)
	})
	r.Post("/ingest/{tenantId}/{resource}", h.Ingest)
	r.Route("/insights/{tenantId}", func(r chi.Router) {
		r.Get("/summary", h.Summary)
		r.Get("/orders-by-date", h.OrdersByDate)
		r.Get("/top-customers", h.TopCustomers)
		r.Get("/top-products", h.TopProducts)
	})
	r.Route("/events/{tenantId}", func(r chi.Router) {
		r.Post("/", h.AppendEvent)
		r.Get("/", h.ListEvents)
	})

	return r
}
