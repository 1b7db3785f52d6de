package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error             string `json:"error"`             // Machine-readable error code
	Message           string `json:"message"`           // Human-readable message
	Details           string `json:"details,omitempty"` // Optional additional context
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfter        int64  `json:"retry_after,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message, Details: details})
}

// WriteAuthFailure reports a rejected credential. The body never says which
// check failed, only how many attempts are left before the account locks.
func WriteAuthFailure(w http.ResponseWriter, remaining int) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:             "authentication_failed",
		Message:           "Authentication failed",
		RemainingAttempts: &remaining,
	})
}

// WriteLocked reports a locked account with a Retry-After header
func WriteLocked(w http.ResponseWriter, retryAfter int64) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	}
	zero := 0
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:             "rate_limit_exceeded",
		Message:           "Too many failed attempts. Please try again later.",
		RemainingAttempts: &zero,
		RetryAfter:        retryAfter,
	})
}

// WriteCredentialCompromised reports a passkey whose signature counter went
// backwards, which indicates a cloned authenticator
func WriteCredentialCompromised(w http.ResponseWriter) {
	WriteError(w, http.StatusConflict, "credential_compromised",
		"This passkey may have been cloned. Sign in another way and review your security settings.")
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
