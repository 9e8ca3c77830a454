// Package middleware holds the chi middlewares shared by every route.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// MaxBodyBytes caps request bodies accepted by InputValidationMiddleware
const MaxBodyBytes = 1 << 20

// APIKeyHeader carries the shared API key
const APIKeyHeader = "x-api-key"

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "details": details})
}

// SecurityHeadersMiddleware sets conservative response headers for a JSON API
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// InputValidationMiddleware limits body size and requires JSON on requests that carry a body
func InputValidationMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength != 0 && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || mediaType != "application/json" {
					logger.Warn().
						Str("path", r.URL.Path).
						Str("contentType", r.Header.Get("Content-Type")).
						Msg("Rejected non-JSON request body")
					writeError(w, http.StatusUnsupportedMediaType, "unsupported content type", "expected application/json")
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware rejects requests whose x-api-key header does not match apiKey.
// Paths in public, or under a public prefix ending in "/", skip the check. "/" alone
// matches only the root.
func APIKeyMiddleware(apiKey string, logger zerolog.Logger, public ...string) func(http.Handler) http.Handler {
	isPublic := func(path string) bool {
		for _, p := range public {
			if path == p || (len(p) > 1 && strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+APIKeyHeader+" header")
				return
			}
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn().Str("path", r.URL.Path).Str("remoteAddr", r.RemoteAddr).Msg("Rejected invalid API key")
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
