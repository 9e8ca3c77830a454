// Package api exposes the tenant, ingestion, insight and event endpoints over chi.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"shopify-insights/internal/domain"

	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps typed domain errors onto status codes
func writeError(w http.ResponseWriter, logger zerolog.Logger, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		upstream   *domain.UpstreamFetchError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("%s not found", notFound.Entity), Details: notFound.ID})
	case errors.Is(err, domain.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "sync already in progress", Details: err.Error()})
	case errors.As(err, &upstream):
		logger.Warn().Err(err).Str("path", r.URL.Path).Int("upstreamStatus", upstream.Status).Msg("Upstream fetch failed")
		details := err.Error()
		if upstream.Status > 0 {
			details = fmt.Sprintf("upstream status %d: %s", upstream.Status, err.Error())
		}
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream fetch failed", Details: details})
	default:
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Details: err.Error()})
	}
}
