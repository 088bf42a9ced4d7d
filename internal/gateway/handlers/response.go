// Package handlers holds the plain HTTP endpoints served next to the
// evaluator websocket.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"parley/internal/provider"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the provider error code when there is one.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Gateway-level codes; provider failures reuse provider.ErrorCode values.
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an error response.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// SendProviderError maps a provider failure onto an HTTP status: timeouts
// become 504, bad requests 400, everything else 503.
func SendProviderError(w http.ResponseWriter, err error) {
	code := provider.ErrorCodeOf(err)
	status := http.StatusServiceUnavailable
	switch code {
	case provider.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case provider.ErrCodeInvalidRequest:
		status = http.StatusBadRequest
	}

	msg := err.Error()
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	SendJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      string(code),
		Message:   msg,
		Retryable: provider.IsRetryable(err),
	}})
}
