package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode defines Provider error codes
type ErrorCode string

const (
	// Service availability
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // Evaluator unreachable or closed

	// Network and request
	ErrCodeNetworkError          ErrorCode = "NETWORK_ERROR"           // Network connectivity issues
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"         // Malformed request
	ErrCodeTimeout               ErrorCode = "TIMEOUT"                 // Request timeout
	ErrCodeContextWindowExceeded ErrorCode = "CONTEXT_WINDOW_EXCEEDED" // Batch would overflow the context window

	// Model state
	ErrCodeEvalFailed       ErrorCode = "EVAL_FAILED"       // Evaluation failed inside the model
	ErrCodeTokenizeFailed   ErrorCode = "TOKENIZE_FAILED"   // Text could not be tokenized
	ErrCodePieceFailed      ErrorCode = "PIECE_FAILED"      // Token has no text piece
	ErrCodeStateUnsupported ErrorCode = "STATE_UNSUPPORTED" // Snapshot/restore not available
	ErrCodeStateMismatch    ErrorCode = "STATE_MISMATCH"    // Snapshot belongs to another model

	// Unknown
	ErrCodeUnknown ErrorCode = "UNKNOWN" // Unclassified error
)

// ProviderError is a structured error for Provider operations
type ProviderError struct {
	Code      ErrorCode `json:"code" cbor:"code"`
	Message   string    `json:"message" cbor:"message"`
	Provider  string    `json:"provider" cbor:"provider"`
	Retryable bool      `json:"retryable" cbor:"retryable"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new ProviderError
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// ErrorCodeOf returns the code of the first ProviderError in err's chain.
func ErrorCodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeUnknown
}

// IsContextWindowExceeded checks if the error indicates that the input
// exceeded the model's context window limit.  It first checks for a typed
// ProviderError with ErrCodeContextWindowExceeded, then falls back to
// keyword matching on the error message for untyped errors.
func IsContextWindowExceeded(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeContextWindowExceeded
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context window") ||
		strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "too many tokens")
}

// IsRetryable checks if the error is a transient provider error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
