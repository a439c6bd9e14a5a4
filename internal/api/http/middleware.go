// Package http serves arkdb tables, snapshots and statistics as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/arkdb/internal/api"
	arkerrors "github.com/arkilian/arkdb/internal/errors"
)

// Context keys for request metadata.
type contextKey string

const (
	// requestIDKey is the context key for the request ID.
	requestIDKey contextKey = "request_id"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Category  string                 `json:"category,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// RequestIDMiddleware adds a unique request_id to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if request_id is provided in header, otherwise generate one
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and latency of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http: %s %s %d %s request_id=%s", r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(r.Context())
				log.Printf("[WARN] http: panic serving %s request_id=%s: %v", r.URL.Path, requestID, err)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", RequestID: requestID})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware() func(http.Handler) http.Handler {
	return ChainMiddleware(
		RequestIDMiddleware,
		LoggingMiddleware,
		RecoveryMiddleware,
	)
}

// writeError writes err with the status its category maps to.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error(), RequestID: GetRequestID(r.Context())}
	var ae *arkerrors.ArkError
	if errors.As(err, &ae) {
		resp.Category = string(ae.Category)
		resp.Code = ae.Code
		resp.Details = ae.Details
	}
	writeJSON(w, api.HTTPStatus(err), resp)
}

// writeBadRequest reports a malformed request.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, RequestID: GetRequestID(r.Context())})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
