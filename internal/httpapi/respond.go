// Package httpapi holds the JSON response and request helpers shared by the
// HTTP handlers.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"success":false,"message":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// RespondWithAppError maps err onto its HTTP status. Internal failures are
// logged and answered with a generic message.
func RespondWithAppError(w http.ResponseWriter, logger *logrus.Logger, err error, action string) {
	code := apperrors.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		logger.WithError(err).Error("Failed to " + action)
		RespondWithError(w, code, "Failed to "+action)
		return
	}
	logger.WithError(err).WithField("status", code).Warn("Request rejected")
	RespondWithError(w, code, err.Error())
}

// DecodeJSON reads a single JSON object, rejecting unknown fields and
// trailing data.
func DecodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return apperrors.Validation("invalid request body: %v", err)
	}
	if dec.More() {
		return apperrors.Validation("invalid request body: unexpected trailing data")
	}
	return nil
}

// LoggingMiddleware logs each request with its status and duration.
func LoggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"status":   rec.status,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through so /ws can upgrade behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// CORSMiddleware answers preflight requests and sets CORS headers for
// allowedOrigin. Empty or "*" allows any origin. It wraps the router as a
// whole since mux middleware does not run for unmatched OPTIONS requests.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if allowedOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
