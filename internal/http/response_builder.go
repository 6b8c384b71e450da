// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and maps ledger
// error kinds onto HTTP status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/middleware/trace"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"encoding_failed","message":"response could not be encoded"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates an error response with a stable code.
func ErrorResponse(r *http.Request, statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorResponse{Error: errorDetail{
			Code:      code,
			Message:   message,
			RequestID: trace.GetRequestID(r.Context()),
		}})
}

// BadRequestError reports a request the server could not decode.
func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, "malformed_request", message)
}

// TooManyRequestsError reports a rate-limited mutation.
func TooManyRequestsError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusTooManyRequests, "rate_limited", "too many mutations, retry later")
}

// StatusForError maps a ledger error onto an HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		// The client went away; nginx's non-standard code keeps it out of
		// the 5xx error budget.
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch core.KindOf(err) {
	case core.KindValidation, core.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// LedgerError builds the response for an error returned by the ledger.
// Storage failures are logged and their details withheld from the caller.
func LedgerError(r *http.Request, err error) *JSONResponseBuilder {
	status := StatusForError(err)
	detail := errorDetail{
		Code:      core.CodeOf(err),
		Message:   err.Error(),
		Kind:      string(core.KindOf(err)),
		RequestID: trace.GetRequestID(r.Context()),
	}

	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger request failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorType(err),
			"path", r.URL.Path)
		detail.Message = "internal error"
	}

	return NewJSONResponse().Status(status).Body(errorResponse{Error: detail})
}
