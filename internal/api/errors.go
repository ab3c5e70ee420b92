package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/roomgate/internal/gateway"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// partialError is the 207 body: the error plus which fields landed.
type partialError struct {
	Error
	Written []gateway.Field `json:"written"`
	Failed  []gateway.Field `json:"failed"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeMaintenance     = "maintenance"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeUpstreamPartial = "upstream_partial"
)

// retryAfterSeconds is advertised while the kill switch is engaged.
const retryAfterSeconds = "300"

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeGatewayError maps a gateway verdict to its response. Denials carry a
// generic message; upstream details stay in the log.
func (s *Server) writeGatewayError(w http.ResponseWriter, err error, res gateway.Result) {
	switch {
	case errors.Is(err, gateway.ErrUnavailable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, ErrCodeMaintenance, "service is in maintenance mode")
	case errors.Is(err, gateway.ErrAuthDenied):
		writeUnauthorized(w, "access denied")
	case errors.Is(err, gateway.ErrMalformedRequest):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
	case errors.Is(err, gateway.ErrUpstreamPartial):
		writeJSON(w, http.StatusMultiStatus, partialError{
			Error: Error{
				Status:  http.StatusMultiStatus,
				Code:    ErrCodeUpstreamPartial,
				Message: "some optional fields were not stored",
			},
			Written: res.Written,
			Failed:  res.Failed,
		})
	case errors.Is(err, gateway.ErrUpstreamFailure):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "failed to reach the store")
	default:
		s.logger.Error("unmapped gateway error", "error", err)
		writeInternalError(w, "internal server error")
	}
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	if msg, ok := strings.CutPrefix(err.Error(), gateway.ErrMalformedRequest.Error()+": "); ok {
		return msg
	}
	return err.Error()
}
