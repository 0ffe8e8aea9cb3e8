// Package handler contains the HTTP request handlers of the judge API.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business rules. Validation, clamping and verdicts live in
// the service and judge packages; handlers only translate between JSON and Go.
package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "problem not found with id abc123"}
//
// Infrastructure failures are the exception to "message": clients get a
// generic text and the cause goes to the log.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/cjudge/internal/apperror"
)

// maxBodyBytes caps request bodies. Code is limited to CODE_MAX_LENGTH
// characters by the service; test case lists make judge bodies larger.
const maxBodyBytes = 4 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE writing the body. Once
// Encode writes, the headers are gone and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// If encoding fails, the headers are already sent; we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.Is() walks the whole chain, so a service returning
// fmt.Errorf("creating problem: %w", apperror.Conflict(...)) still maps to 409.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeAppError(w, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, apperror.ErrNotFound):
		writeAppError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperror.ErrForbidden):
		writeAppError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, apperror.ErrConflict):
		writeAppError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, apperror.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeAppError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		// Raw messages here may carry SQL, file paths or Docker daemon
		// output. NEVER send them to the client.
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
	}
}

func writeAppError(w http.ResponseWriter, status int, errorType string, err error) {
	resp := ErrorResponse{Error: errorType, Message: err.Error()}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a size-limited JSON body into dst. Malformed bodies come
// back as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be %d bytes or less", tooLarge.Limit))
		}
		return apperror.ValidationFailed("body", "invalid JSON request body")
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when
// it is absent or malformed. The services clamp the result.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
