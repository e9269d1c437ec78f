// Package http exposes the ledger over a JSON API. Every response uses the
// same envelope: {"success":true,"data":...} on success and
// {"success":false,"error":"..."} on failure.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"moneta/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewResponse creates a response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the success payload.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.payload = envelope{Success: true, Data: data}
	return b
}

// Error sets a failure payload.
func (b *ResponseBuilder) Error(message string) *ResponseBuilder {
	b.payload = envelope{Success: false, Error: message}
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.payload != nil {
		if err := json.NewEncoder(w).Encode(b.payload); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	NewResponse().Status(status).Data(data).Write(w)
}

// writeError maps the engine's error kinds onto HTTP statuses. Anything
// unclassified is a 500 with a generic message so store internals never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = "internal error"
	}
	NewResponse().Status(status).Error(message).Write(w)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrCannotDelete):
		return http.StatusConflict
	case errors.Is(err, core.ErrRateUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
