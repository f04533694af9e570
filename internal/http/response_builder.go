// Package http exposes the ledger as a JSON API.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/report"
	"github.com/zoeplatform/zoefinan/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewResponse creates a builder with a 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the JSON payload.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the response. A nil payload writes no body.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse creates an error response with a machine code and a message.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		Data(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").
		Header("Allow", allowedMethods)
}

var badRequestErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrEmptyCreditor,
	core.ErrInvalidInstallment,
	core.ErrInvalidMonthKey,
	services.ErrInvalidReduction,
	report.ErrUnsupportedFormat,
	auth.ErrInvalidEmail,
	auth.ErrPasswordTooShort,
	auth.ErrPasswordMismatch,
}

// errorResponseFor maps err to a response. Unknown errors become a 500 whose
// message does not leak internals.
func errorResponseFor(err error) *ResponseBuilder {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return NewResponse().
			Status(http.StatusBadRequest).
			Data(ErrorBody{Error: ErrorDetail{Code: "validation_error", Message: verr.Err.Error(), Field: verr.Field}})
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return ErrorResponse(http.StatusBadRequest, "validation_error", err.Error())
		}
	}

	switch {
	case errors.Is(err, services.ErrNoUserDocument):
		return ErrorResponse(http.StatusNotFound, "no_document", err.Error())
	case errors.Is(err, core.ErrEntryNotFound):
		return ErrorResponse(http.StatusNotFound, "entry_not_found", err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		return ErrorResponse(http.StatusUnauthorized, "invalid_token", err.Error()).
			Header("WWW-Authenticate", `Bearer realm="zoefinan"`)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ErrorResponse(http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrEmailInUse):
		return ErrorResponse(http.StatusConflict, "email_in_use", err.Error())
	case errors.Is(err, auth.ErrUnsupported):
		return ErrorResponse(http.StatusNotImplemented, "unsupported", err.Error())
	}
	return ErrorResponse(http.StatusInternalServerError, "internal_error", "erro interno, tente novamente")
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	b := errorResponseFor(err)
	logger := log.FromContext(r.Context())
	if b.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err,
			"error_type", log.ErrorTypeInternal)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, b.statusCode,
			log.FieldError, err)
	}
	b.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).Data(v).Write(w)
}
